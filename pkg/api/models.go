package api

import (
	"time"

	"github.com/google/uuid"
)

// SubmitExamResponse is returned only after the exam is durably stored and
// its availability event is acknowledged by the message bus.
type SubmitExamResponse struct {
	ExamId uuid.UUID `json:"exam_id"`
	Bucket string    `json:"bucket"`
	Key    string    `json:"key"`
}

// Error is the structured body for every non-success outcome. Stage and
// ReasonCode are transport-independent; HTTP status mapping happens in the
// handler layer.
type Error struct {
	Stage      string `json:"stage"`
	ReasonCode string `json:"reason_code"`
	Message    string `json:"message"`
}

// EcgLead is one electrode trace of an ECG recording.
type EcgLead struct {
	Name    string    `json:"name"`
	Samples []float32 `json:"samples"`
}

// EcgPayload is the wire format for ECG submissions. Lead order is
// significant and preserved through canonical encoding.
type EcgPayload struct {
	PatientId       string    `json:"patient_id"`
	SampleRateHz    float64   `json:"sample_rate_hz"`
	DurationSeconds float64   `json:"duration_seconds"`
	LeadCount       int       `json:"lead_count"`
	Leads           []EcgLead `json:"leads"`
}

// PendingPublication describes a stored-but-not-announced exam awaiting the
// reconciliation collaborator.
type PendingPublication struct {
	ExamId       uuid.UUID `json:"exam_id"`
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Attempts     int       `json:"attempts"`
	CreationTime time.Time `json:"creation_time"`
}
