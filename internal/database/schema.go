package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	// ExamStoring: artifact upload in progress.
	ExamStoring string = "STORING"
	// ExamCompleted: stored and announced; the terminal success state.
	ExamCompleted string = "COMPLETED"
	// ExamStoredNotPublished: durable object exists but the availability
	// event was never acknowledged; awaiting reconciliation.
	ExamStoredNotPublished string = "STORED_NOT_PUBLISHED"
	// ExamFailed: upload failed, no durable object exists.
	ExamFailed string = "FAILED"
	// ExamAbandoned: reconciliation gave up and deleted the orphaned object.
	ExamAbandoned string = "ABANDONED"
)

// Exam is the gateway's durable record of a submission that reached the
// storage stage. Raw payloads are never persisted here.
type Exam struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	HospitalId string `gorm:"size:64;not null;index"`
	ExamType   string `gorm:"size:20;not null"`
	Status     string `gorm:"size:30;not null"`

	Bucket    string `gorm:"not null"`
	ObjectKey string `gorm:"not null"`

	Format    string `gorm:"size:20"`
	SizeBytes int64
	Checksum  string `gorm:"size:64"`

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

// PendingPublication is the durable side channel for stored-but-not-announced
// exams. The reconciliation collaborator consumes these rows: it either
// republishes the embedded event or deletes the orphaned object.
type PendingPublication struct {
	ExamId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Exam   *Exam     `gorm:"foreignKey:ExamId;constraint:OnDelete:CASCADE"`

	Bucket    string `gorm:"not null"`
	ObjectKey string `gorm:"not null"`

	Event datatypes.JSON `gorm:"not null"`

	Attempts     int `gorm:"default:0"`
	CreationTime time.Time
}
