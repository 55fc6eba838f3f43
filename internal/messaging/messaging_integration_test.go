//go:build integration
// +build integration

// The build tag 'integration' allows separating integration tests from unit tests.
// Run unit tests with: go test ./...
// Run integration tests with: go test -tags=integration ./...

package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"exam-gateway/pkg/models"
)

func setupRabbitMQContainer(t *testing.T, ctx context.Context) string {
	t.Helper()

	rabbitmqContainer, err := rabbitmq.Run(ctx, "rabbitmq:3.11-management")
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		if err := rabbitmqContainer.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate RabbitMQ container: %v", err)
		}
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")

	return connStr
}

func TestRabbitMQPublisher(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	connStr := setupRabbitMQContainer(t, ctx)

	publisher, err := NewRabbitMQPublisher(connStr, ExamEventQueue)
	require.NoError(t, err, "Failed to create exam event publisher")
	defer publisher.Close()

	event := models.ExamEvent{
		ExamId:      uuid.New(),
		HospitalId:  "hospital-1",
		ExamType:    "ecg",
		Bucket:      "exams",
		Key:         "ecg/hospital-1/some-exam/artifact.parquet",
		Format:      "parquet",
		SizeBytes:   128,
		Checksum:    "abc123",
		ProcessedAt: time.Now().UTC().Truncate(time.Second),
	}

	// A nil error here means the broker confirmed the publish, not just that
	// the frame was written.
	require.NoError(t, publisher.PublishExamEvent(ctx, event))

	// Consume over a separate connection and verify the event round-trips.
	conn, err := connectToRabbitMQ(connStr)
	require.NoError(t, err)
	defer conn.Close()

	channel, err := conn.Channel()
	require.NoError(t, err)
	defer channel.Close()

	msgs, err := channel.Consume(ExamEventQueue, "test-consumer", false, false, false, false, nil)
	require.NoError(t, err)

	select {
	case d, ok := <-msgs:
		require.True(t, ok, "delivery channel closed unexpectedly")

		var received models.ExamEvent
		require.NoError(t, json.Unmarshal(d.Body, &received))
		assert.Equal(t, event, received)
		assert.Equal(t, "application/json", d.ContentType)

		require.NoError(t, d.Ack(false))
	case <-time.After(10 * time.Second):
		t.Fatal("Timed out waiting for exam event")
	}

	// The confirm channel survives the first publish; a second event must ack
	// on the same channel.
	event.ExamId = uuid.New()
	require.NoError(t, publisher.PublishExamEvent(ctx, event))
}
