package models

import (
	"time"

	"github.com/google/uuid"
)

// ExamEvent is the message-bus payload announcing a stored exam. It is never
// published before the referenced object is confirmed durable.
type ExamEvent struct {
	ExamId      uuid.UUID `json:"exam_id"`
	HospitalId  string    `json:"hospital_id"`
	ExamType    string    `json:"exam_type"`
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	Format      string    `json:"format"`
	SizeBytes   int64     `json:"size_bytes"`
	Checksum    string    `json:"checksum"`
	ProcessedAt time.Time `json:"processed_at"`
}
