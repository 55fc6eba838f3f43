package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"exam-gateway/internal/database"
	"exam-gateway/internal/exam"
	"exam-gateway/internal/messaging"
	"exam-gateway/internal/ratelimit"
	"exam-gateway/internal/scanner"
	"exam-gateway/internal/storage"
	"exam-gateway/pkg/models"
)

// Object keys embed a millisecond timestamp alongside the exam id, so keys
// stay unique and readable without depending on payload content.
const keyTimestampFormat = "2006-01-02T150405.000Z"

type Config struct {
	Bucket string

	UploadTimeout  time.Duration
	PublishTimeout time.Duration

	// MaxInfraRetries bounds retry attempts for the storage and publish
	// stages only; admission, scan, validate and transform never retry.
	MaxInfraRetries     uint64
	RetryInitialBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		UploadTimeout:       30 * time.Second,
		PublishTimeout:      10 * time.Second,
		MaxInfraRetries:     3,
		RetryInitialBackoff: 200 * time.Millisecond,
	}
}

// Pipeline drives one submission through admission, scanning, validation,
// transformation, upload and publication. Each invocation is sequential and
// owns its submission exclusively; many invocations run concurrently.
type Pipeline struct {
	limiter   *ratelimit.HospitalLimiter
	scanner   scanner.Scanner
	registry  *exam.Registry
	store     storage.ObjectStore
	publisher messaging.Publisher
	db        *gorm.DB
	cfg       Config
}

func New(
	limiter *ratelimit.HospitalLimiter,
	scan scanner.Scanner,
	registry *exam.Registry,
	store storage.ObjectStore,
	publisher messaging.Publisher,
	db *gorm.DB,
	cfg Config,
) *Pipeline {
	defaults := DefaultConfig()
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaults.UploadTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}
	if cfg.MaxInfraRetries == 0 {
		cfg.MaxInfraRetries = defaults.MaxInfraRetries
	}
	if cfg.RetryInitialBackoff <= 0 {
		cfg.RetryInitialBackoff = defaults.RetryInitialBackoff
	}

	return &Pipeline{
		limiter:   limiter,
		scanner:   scan,
		registry:  registry,
		store:     store,
		publisher: publisher,
		db:        db,
		cfg:       cfg,
	}
}

// Receipt is the success outcome: returned only after the artifact is durable
// and its event is acknowledged.
type Receipt struct {
	ExamId uuid.UUID
	Ref    exam.StorageReference
}

// Process runs the full pipeline for one submission. The returned error, if
// any, is always a *exam.PipelineError naming the failing stage.
func (p *Pipeline) Process(ctx context.Context, sub exam.Submission) (*Receipt, error) {
	// Admission first: a denied hospital must cost nothing downstream.
	if !p.limiter.Allow(sub.HospitalId, time.Now()) {
		return nil, exam.Reject(exam.StageAdmission, exam.CodeAdmissionDenied, "submission quota exceeded")
	}

	switch result := p.scanner.Scan(ctx, sub.Raw); result.Verdict {
	case scanner.VerdictClean:
	case scanner.VerdictInfected:
		slog.Warn("rejecting infected submission", "hospital_id", sub.HospitalId, "signature", result.Signature)
		return nil, exam.Reject(exam.StageScan, exam.CodeContentUnsafe, "payload failed malware screening")
	default:
		// Fail closed: an unanswerable scan is a rejection, not a pass.
		return nil, exam.Reject(exam.StageScan, exam.CodeScanUnavailable, "scanning engine unavailable")
	}

	handler, ok := p.registry.Handler(sub.ExamType)
	if !ok {
		return nil, exam.Reject(exam.StageValidation, exam.CodeUnsupportedExamType,
			fmt.Sprintf("exam type %q has no registered handler", sub.ExamType))
	}

	payload, err := handler.Validator.Validate(sub)
	if err != nil {
		var verr *exam.ValidationError
		if errors.As(err, &verr) {
			return nil, exam.RejectErr(exam.StageValidation, exam.CodeValidationFailed, verr.Reason, err)
		}
		return nil, exam.RejectErr(exam.StageValidation, exam.CodeValidationFailed, "invalid-payload", err)
	}

	artifact, err := handler.Transformer.Transform(payload)
	if err != nil {
		var terr *exam.TransformError
		if errors.As(err, &terr) {
			return nil, exam.RejectErr(exam.StageTransform, exam.CodeTransformationFailed, terr.Reason, err)
		}
		return nil, exam.RejectErr(exam.StageTransform, exam.CodeTransformationFailed, "untransformable-payload", err)
	}

	examId := uuid.New()
	now := time.Now().UTC()
	key := objectKey(sub, examId, artifact.Format, now)
	ref := exam.StorageReference{Bucket: p.cfg.Bucket, Key: key}

	record := &database.Exam{
		Id:           examId,
		HospitalId:   sub.HospitalId,
		ExamType:     string(sub.ExamType),
		Status:       database.ExamStoring,
		Bucket:       ref.Bucket,
		ObjectKey:    ref.Key,
		Format:       artifact.Format,
		SizeBytes:    artifact.SizeBytes,
		Checksum:     artifact.Checksum,
		CreationTime: now,
	}
	if err := p.db.WithContext(ctx).Create(record).Error; err != nil {
		slog.Error("error creating exam record", "exam_id", examId, "error", err)
		return nil, exam.RejectErr(exam.StageStorage, exam.CodeStorageFailure, "exam-record-create-failed", err)
	}

	// Infrastructure writes run on a detached context: a client disconnect
	// must not abort a durable write mid-flight, only stop future stages.
	infraCtx := context.WithoutCancel(ctx)

	if err := p.upload(infraCtx, artifact, ref); err != nil {
		_ = database.UpdateExamStatus(infraCtx, p.db, examId, database.ExamFailed)
		return nil, exam.RejectErr(exam.StageStorage, exam.CodeStorageFailure, "artifact-upload-failed", err)
	}

	event := models.ExamEvent{
		ExamId:      examId,
		HospitalId:  sub.HospitalId,
		ExamType:    string(sub.ExamType),
		Bucket:      ref.Bucket,
		Key:         ref.Key,
		Format:      artifact.Format,
		SizeBytes:   artifact.SizeBytes,
		Checksum:    artifact.Checksum,
		ProcessedAt: now,
	}

	if err := p.publish(infraCtx, event); err != nil {
		// The artifact is durable but downstream never heard about it. Record
		// the event durably for the reconciliation collaborator and surface
		// the partial completion; this path must never look like success.
		_ = database.UpdateExamStatus(infraCtx, p.db, examId, database.ExamStoredNotPublished)
		if recordErr := p.recordPendingPublication(infraCtx, examId, ref, event); recordErr != nil {
			// Without the record no sweeper will ever retry this exam, so the
			// stored-not-published contract does not hold.
			slog.Error("failed to record pending publication", "exam_id", examId, "error", recordErr)
			return nil, exam.RejectErr(exam.StagePublish, exam.CodePublishFailure,
				"artifact stored but availability event could not be queued for reconciliation", err)
		}
		return nil, exam.RejectErr(exam.StagePublish, exam.CodeStoredNotPublished,
			"artifact stored but availability event not acknowledged", err)
	}

	if err := database.UpdateExamStatus(infraCtx, p.db, examId, database.ExamCompleted); err != nil {
		slog.Warn("exam completed but status update failed", "exam_id", examId, "error", err)
	}

	return &Receipt{ExamId: examId, Ref: ref}, nil
}

func objectKey(sub exam.Submission, examId uuid.UUID, format string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s.%s",
		sub.ExamType, sub.HospitalId, examId, now.Format(keyTimestampFormat), format)
}

func (p *Pipeline) upload(ctx context.Context, artifact exam.CanonicalArtifact, ref exam.StorageReference) error {
	return p.retryInfra(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.UploadTimeout)
		defer cancel()
		return p.store.PutObject(attemptCtx, ref.Bucket, ref.Key, bytes.NewReader(artifact.Data))
	})
}

func (p *Pipeline) publish(ctx context.Context, event models.ExamEvent) error {
	return p.retryInfra(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
		defer cancel()
		return p.publisher.PublishExamEvent(attemptCtx, event)
	})
}

// retryInfra retries transient infrastructure errors with exponential backoff
// up to the configured attempt cap. Client-fault API errors (bad credentials,
// nonexistent bucket) are permanent and surface immediately.
func (p *Pipeline) retryInfra(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.cfg.RetryInitialBackoff

	return backoff.Retry(func() error {
		err := op()
		if err != nil && isPermanentInfraError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, p.cfg.MaxInfraRetries), ctx))
}

func isPermanentInfraError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorFault() == smithy.FaultClient
	}
	return false
}

func (p *Pipeline) recordPendingPublication(ctx context.Context, examId uuid.UUID, ref exam.StorageReference, event models.ExamEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal pending event: %w", err)
	}

	return database.CreatePendingPublication(ctx, p.db, &database.PendingPublication{
		ExamId:       examId,
		Bucket:       ref.Bucket,
		ObjectKey:    ref.Key,
		Event:        body,
		CreationTime: time.Now().UTC(),
	})
}
