// Package repo – outbound WhatsApp queue
//
// Repository helpers for bulk-send batches and their queued messages. A
// batch is created with every row pending, workers flip rows to sent or
// failed, and the batch status follows the overall run.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/geniality/event-chat-backend/internal/domain"
)

// CreateBatch inserts a batch and its queued messages in one transaction.
func CreateBatch(ctx context.Context, db *gorm.DB, fileName string, rows []domain.OutboundMessage) (*domain.SendBatch, error) {
	now := time.Now().UTC()
	batch := &domain.SendBatch{
		ID:        uuid.NewString(),
		FileName:  fileName,
		Status:    domain.BatchPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].ID = uuid.NewString()
			rows[i].BatchID = batch.ID
			rows[i].Status = domain.OutboundPending
			rows[i].CreatedAt = now
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// GetBatch fetches one batch by ID or ErrNotFound.
func GetBatch(ctx context.Context, db *gorm.DB, id string) (*domain.SendBatch, error) {
	var b domain.SendBatch
	err := db.WithContext(ctx).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBatches returns all batches, newest first.
func ListBatches(ctx context.Context, db *gorm.DB) ([]domain.SendBatch, error) {
	var out []domain.SendBatch
	err := db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// UpdateBatchStatus transitions a batch and bumps its updated_at.
func UpdateBatchStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).Model(&domain.SendBatch{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBatchMessages returns a batch's queued messages in insertion order.
func ListBatchMessages(ctx context.Context, db *gorm.DB, batchID string) ([]domain.OutboundMessage, error) {
	var out []domain.OutboundMessage
	err := db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// MarkMessageSent flips one queued message to sent with its delivery time.
func MarkMessageSent(ctx context.Context, db *gorm.DB, id string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&domain.OutboundMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": domain.OutboundSent, "sent_at": &now, "error": ""}).Error
}

// MarkMessageFailed flips one queued message to failed with the gateway error.
func MarkMessageFailed(ctx context.Context, db *gorm.DB, id, gatewayErr string) error {
	return db.WithContext(ctx).Model(&domain.OutboundMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": domain.OutboundFailed, "error": gatewayErr}).Error
}
