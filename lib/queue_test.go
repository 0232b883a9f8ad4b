package lib

import (
	"context"
	"testing"
	"time"

	"github.com/chapterbase/updatewatch/lib/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingDigest(subID, email string, scheduledAt time.Time) *models.NotificationDigest {
	return &models.NotificationDigest{
		PartnerSubscriptionID: subID,
		Email:                 email,
		Subject:               "ChapterBase Updates: 1 New Update This Week",
		UpdateIDs:             models.StringList{"evt-1"},
		UpdateCount:           1,
		ScheduledSendTime:     scheduledAt,
		Status:                models.DigestStatusPending,
	}
}

func TestEnqueue_UpdatesLastSentBeforeDelivery(t *testing.T) {
	db := newTestDB(t)
	queue := NewDeliveryQueue(db, nopLogger())
	ctx := context.Background()

	sub := seedSubscription(t, db, &models.PartnerSubscription{IsActive: true})
	require.False(t, sub.LastNotificationSent.Valid)

	digest := pendingDigest(sub.ID, sub.Email, time.Now().UTC())
	require.NoError(t, queue.Enqueue(ctx, digest))

	// last_notification_sent is stamped at enqueue time, before any
	// MarkSent happens.
	var reloaded models.PartnerSubscription
	require.NoError(t, db.First(&reloaded, "id = ?", sub.ID).Error)
	require.True(t, reloaded.LastNotificationSent.Valid)
	assert.WithinDuration(t, time.Now().UTC(), reloaded.LastNotificationSent.Time, time.Minute)

	var stored models.NotificationDigest
	require.NoError(t, db.First(&stored, "id = ?", digest.ID).Error)
	assert.Equal(t, models.DigestStatusPending, stored.Status)
}

func TestDueItems_OrderLimitAndEligibility(t *testing.T) {
	db := newTestDB(t)
	queue := NewDeliveryQueue(db, nopLogger())
	ctx := context.Background()

	sub := seedSubscription(t, db, &models.PartnerSubscription{IsActive: true})
	now := time.Now().UTC()

	// Inserted out of order on purpose.
	second := pendingDigest(sub.ID, "b@example.com", now.Add(-2*time.Hour))
	first := pendingDigest(sub.ID, "a@example.com", now.Add(-3*time.Hour))
	third := pendingDigest(sub.ID, "c@example.com", now.Add(-1*time.Hour))
	future := pendingDigest(sub.ID, "d@example.com", now.Add(time.Hour))
	for _, d := range []*models.NotificationDigest{second, first, third, future} {
		require.NoError(t, queue.Enqueue(ctx, d))
	}
	require.NoError(t, queue.MarkSent(ctx, third.ID))

	due, err := queue.DueItems(ctx, 0)
	require.NoError(t, err)

	// Oldest due first; future and already-sent items excluded.
	require.Len(t, due, 2)
	assert.Equal(t, first.ID, due[0].ID)
	assert.Equal(t, second.ID, due[1].ID)

	limited, err := queue.DueItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, first.ID, limited[0].ID)
}

func TestItemsByStatus_FailedItemsStayReachable(t *testing.T) {
	db := newTestDB(t)
	queue := NewDeliveryQueue(db, nopLogger())
	ctx := context.Background()

	sub := seedSubscription(t, db, &models.PartnerSubscription{IsActive: true})
	now := time.Now().UTC()

	healthy := pendingDigest(sub.ID, "a@example.com", now.Add(-2*time.Hour))
	broken := pendingDigest(sub.ID, "b@example.com", now.Add(-time.Hour))
	for _, d := range []*models.NotificationDigest{healthy, broken} {
		require.NoError(t, queue.Enqueue(ctx, d))
	}
	require.NoError(t, queue.MarkFailed(ctx, broken.ID, "smtp 550 mailbox unavailable"))

	// A failed item drops out of the due listing but not out of the queue.
	due, err := queue.DueItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, healthy.ID, due[0].ID)

	failed, err := queue.ItemsByStatus(ctx, models.DigestStatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, broken.ID, failed[0].ID)
	assert.Equal(t, "smtp 550 mailbox unavailable", failed[0].ErrorMessage)

	pending, err := queue.ItemsByStatus(ctx, models.DigestStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, healthy.ID, pending[0].ID)
}

func TestMarkSent_TerminalAndIdempotent(t *testing.T) {
	db := newTestDB(t)
	queue := NewDeliveryQueue(db, nopLogger())
	ctx := context.Background()

	sub := seedSubscription(t, db, &models.PartnerSubscription{IsActive: true})
	digest := pendingDigest(sub.ID, sub.Email, time.Now().UTC())
	require.NoError(t, queue.Enqueue(ctx, digest))

	require.NoError(t, queue.MarkSent(ctx, digest.ID))
	require.NoError(t, queue.MarkSent(ctx, digest.ID))

	// A terminal item cannot be failed afterwards.
	require.NoError(t, queue.MarkFailed(ctx, digest.ID, "late failure"))

	var stored models.NotificationDigest
	require.NoError(t, db.First(&stored, "id = ?", digest.ID).Error)
	assert.Equal(t, models.DigestStatusSent, stored.Status)
	assert.Empty(t, stored.ErrorMessage)
	assert.True(t, stored.SentAt.Valid)
}

func TestMarkFailed_TerminalAndIdempotent(t *testing.T) {
	db := newTestDB(t)
	queue := NewDeliveryQueue(db, nopLogger())
	ctx := context.Background()

	sub := seedSubscription(t, db, &models.PartnerSubscription{IsActive: true})
	digest := pendingDigest(sub.ID, sub.Email, time.Now().UTC())
	require.NoError(t, queue.Enqueue(ctx, digest))

	require.NoError(t, queue.MarkFailed(ctx, digest.ID, "smtp 550 rejected"))
	require.NoError(t, queue.MarkFailed(ctx, digest.ID, "a different error"))
	require.NoError(t, queue.MarkSent(ctx, digest.ID))

	var stored models.NotificationDigest
	require.NoError(t, db.First(&stored, "id = ?", digest.ID).Error)
	assert.Equal(t, models.DigestStatusFailed, stored.Status)
	assert.Equal(t, "smtp 550 rejected", stored.ErrorMessage)
	assert.False(t, stored.SentAt.Valid)
}
