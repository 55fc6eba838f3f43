package reconciler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"exam-gateway/internal/database"
	"exam-gateway/internal/messaging"
	"exam-gateway/internal/storage"
	"exam-gateway/pkg/models"
)

type Config struct {
	Interval       time.Duration
	BatchSize      int
	PublishTimeout time.Duration

	// MaxAttempts bounds republication tries per exam. Once exhausted the
	// stored artifact is removed and the exam is marked abandoned, so the
	// object store cannot accumulate orphans forever.
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		Interval:       30 * time.Second,
		BatchSize:      100,
		PublishTimeout: 10 * time.Second,
		MaxAttempts:    10,
	}
}

// Reconciler drains pending publication records left behind when an exam was
// stored but its availability event never got acknowledged.
type Reconciler struct {
	db        *gorm.DB
	store     storage.ObjectStore
	publisher messaging.Publisher
	cfg       Config
}

func New(db *gorm.DB, store storage.ObjectStore, publisher messaging.Publisher, cfg Config) *Reconciler {
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}

	return &Reconciler{db: db, store: store, publisher: publisher, cfg: cfg}
}

// Run sweeps on a timer until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				slog.Error("reconciliation sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sweep processes one batch of pending publications, oldest first. Each record
// is resolved independently so one poisoned entry cannot block the rest.
func (r *Reconciler) Sweep(ctx context.Context) error {
	pending, err := database.ListPendingPublications(ctx, r.db, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.resolve(ctx, p)
	}
	return nil
}

func (r *Reconciler) resolve(ctx context.Context, p database.PendingPublication) {
	var event models.ExamEvent
	if err := json.Unmarshal(p.Event, &event); err != nil {
		// A record we cannot decode will never publish; treat it like an
		// exhausted one instead of retrying it every sweep.
		slog.Error("dropping undecodable pending publication", "exam_id", p.ExamId, "error", err)
		r.abandon(ctx, p)
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	err := r.publisher.PublishExamEvent(publishCtx, event)
	cancel()
	if err == nil {
		if err := database.DeletePendingPublication(ctx, r.db, p.ExamId); err != nil {
			slog.Error("error deleting resolved pending publication", "exam_id", p.ExamId, "error", err)
			return
		}
		if err := database.UpdateExamStatus(ctx, r.db, p.ExamId, database.ExamCompleted); err != nil {
			slog.Error("error completing reconciled exam", "exam_id", p.ExamId, "error", err)
		}
		slog.Info("republished exam event", "exam_id", p.ExamId, "attempts", p.Attempts+1)
		return
	}

	slog.Warn("republish attempt failed", "exam_id", p.ExamId, "attempts", p.Attempts+1, "error", err)

	if p.Attempts+1 >= r.cfg.MaxAttempts {
		r.abandon(ctx, p)
		return
	}

	if err := database.IncrementPublicationAttempts(ctx, r.db, p.ExamId); err != nil {
		slog.Error("error incrementing publication attempts", "exam_id", p.ExamId, "error", err)
	}
}

// abandon removes the stored artifact and retires the record once an exam can
// no longer be announced.
func (r *Reconciler) abandon(ctx context.Context, p database.PendingPublication) {
	if err := r.store.DeleteObject(ctx, p.Bucket, p.ObjectKey); err != nil {
		// Keep the record so a later sweep retries the delete.
		slog.Error("error deleting abandoned artifact", "exam_id", p.ExamId, "key", p.ObjectKey, "error", err)
		return
	}
	if err := database.DeletePendingPublication(ctx, r.db, p.ExamId); err != nil {
		slog.Error("error deleting abandoned pending publication", "exam_id", p.ExamId, "error", err)
		return
	}
	if err := database.UpdateExamStatus(ctx, r.db, p.ExamId, database.ExamAbandoned); err != nil {
		slog.Error("error marking exam abandoned", "exam_id", p.ExamId, "error", err)
	}
	slog.Warn("abandoned unpublishable exam", "exam_id", p.ExamId, "attempts", p.Attempts+1)
}
