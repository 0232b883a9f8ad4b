package lib

import (
	"context"
	"time"

	"github.com/chapterbase/updatewatch/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultDueLimit = 100

// DeliveryQueue is the durable holding area for compiled digests awaiting
// dispatch.
type DeliveryQueue struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewDeliveryQueue(db *gorm.DB, log *zap.Logger) *DeliveryQueue {
	return &DeliveryQueue{db, log}
}

// Enqueue inserts the digest as pending and stamps the owning subscription's
// last_notification_sent. The stamp happens at enqueue time, not delivery
// time; that is the contract partners' windows are computed against.
func (q *DeliveryQueue) Enqueue(ctx context.Context, digest *models.NotificationDigest) error {
	digest.Status = models.DigestStatusPending

	tx := q.db.WithContext(ctx).Clauses(clause.Returning{}).Create(digest)
	if err := tx.Error; err != nil {
		return err
	}

	tx = q.db.WithContext(ctx).
		Model(&models.PartnerSubscription{}).
		Where("id = ?", digest.PartnerSubscriptionID).
		Update("last_notification_sent", time.Now().UTC())
	return tx.Error
}

// DueItems returns up to limit pending digests whose scheduled send time has
// passed, oldest due first.
func (q *DeliveryQueue) DueItems(ctx context.Context, limit int) (models.NotificationDigests, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}

	var due models.NotificationDigests
	tx := q.db.WithContext(ctx).
		Where("status = ?", models.DigestStatusPending).
		Where("scheduled_send_time <= ?", time.Now().UTC()).
		Order("scheduled_send_time asc").
		Limit(limit).
		Find(&due)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return due, nil
}

// ItemsByStatus lists queue rows in one state, newest first. Terminal rows
// never leave the queue, so this is how failed sends are discovered and
// remediated from outside.
func (q *DeliveryQueue) ItemsByStatus(ctx context.Context, status string, limit int) (models.NotificationDigests, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}

	var items models.NotificationDigests
	tx := q.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at desc").
		Limit(limit).
		Find(&items)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return items, nil
}

// MarkSent moves a pending digest to sent. Calling it on an item already in a
// terminal state changes nothing.
func (q *DeliveryQueue) MarkSent(ctx context.Context, digestID string) error {
	tx := q.db.WithContext(ctx).
		Model(&models.NotificationDigest{}).
		Where("id = ?", digestID).
		Where("status = ?", models.DigestStatusPending).
		Updates(map[string]any{
			"status":  models.DigestStatusSent,
			"sent_at": time.Now().UTC(),
		})
	if err := tx.Error; err != nil {
		return err
	}
	if tx.RowsAffected == 0 {
		q.log.Sugar().Infow("MarkSent skipped non-pending digest", "digest_id", digestID)
	}
	return nil
}

// MarkFailed moves a pending digest to failed, capturing the transport error
// verbatim. Like MarkSent it never resurrects a terminal item.
func (q *DeliveryQueue) MarkFailed(ctx context.Context, digestID, errorMessage string) error {
	tx := q.db.WithContext(ctx).
		Model(&models.NotificationDigest{}).
		Where("id = ?", digestID).
		Where("status = ?", models.DigestStatusPending).
		Updates(map[string]any{
			"status":        models.DigestStatusFailed,
			"error_message": errorMessage,
		})
	if err := tx.Error; err != nil {
		return err
	}
	if tx.RowsAffected == 0 {
		q.log.Sugar().Infow("MarkFailed skipped non-pending digest", "digest_id", digestID)
	}
	return nil
}
