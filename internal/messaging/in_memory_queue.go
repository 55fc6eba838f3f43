package messaging

import (
	"context"

	"exam-gateway/pkg/models"
)

// InMemoryQueue is a process-local Publisher for tests and local runs.
type InMemoryQueue struct {
	events chan models.ExamEvent
}

var _ Publisher = (*InMemoryQueue)(nil)

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		events: make(chan models.ExamEvent, 100),
	}
}

func (q *InMemoryQueue) PublishExamEvent(ctx context.Context, event models.ExamEvent) error {
	select {
	case q.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Events() <-chan models.ExamEvent {
	return q.events
}

func (q *InMemoryQueue) Close() {
	if q.events != nil {
		close(q.events)
		q.events = nil
	}
}
