package messaging

import (
	"context"
	"time"

	"exam-gateway/pkg/models"
)

const (
	ExamEventQueue  = "exam_events"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

// Publisher announces stored exams to downstream consumers. PublishExamEvent
// returns only after the broker acknowledges delivery; a nil error is the
// pipeline's permission to report Published.
type Publisher interface {
	PublishExamEvent(ctx context.Context, event models.ExamEvent) error

	Close()
}
