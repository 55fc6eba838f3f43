package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func UpdateExamStatus(ctx context.Context, txn *gorm.DB, examId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == ExamCompleted || status == ExamFailed || status == ExamAbandoned {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&Exam{Id: examId}).Updates(updates).Error; err != nil {
		slog.Error("error updating exam status", "exam_id", examId, "status", status, "error", err)
		return err
	}
	return nil
}

func CreatePendingPublication(ctx context.Context, txn *gorm.DB, pending *PendingPublication) error {
	if err := txn.WithContext(ctx).Create(pending).Error; err != nil {
		slog.Error("error recording pending publication", "exam_id", pending.ExamId, "error", err)
		return err
	}
	return nil
}

func ListPendingPublications(ctx context.Context, txn *gorm.DB, limit int) ([]PendingPublication, error) {
	var pending []PendingPublication
	query := txn.WithContext(ctx).Order("creation_time asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&pending).Error; err != nil {
		return nil, err
	}
	return pending, nil
}

func DeletePendingPublication(ctx context.Context, txn *gorm.DB, examId uuid.UUID) error {
	return txn.WithContext(ctx).Delete(&PendingPublication{ExamId: examId}).Error
}

func IncrementPublicationAttempts(ctx context.Context, txn *gorm.DB, examId uuid.UUID) error {
	return txn.WithContext(ctx).
		Model(&PendingPublication{ExamId: examId}).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}
