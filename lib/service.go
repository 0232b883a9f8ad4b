package lib

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chapterbase/updatewatch/config"
	"github.com/chapterbase/updatewatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidFrequency rejects cadence values outside daily/weekly/biweekly/monthly.
var ErrInvalidFrequency = errors.New("invalid frequency: must be daily, weekly, biweekly, or monthly")

// Service is the facade over the update log, the subscription registry and
// the digest pipeline.
type Service struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB

	filter     *FilterEngine
	compiler   *DigestCompiler
	queue      *DeliveryQueue
	dispatcher *Dispatcher
}

func NewService(
	lc fx.Lifecycle,
	cfg *config.Config,
	log *zap.Logger,
	db *gorm.DB,
	filter *FilterEngine,
	compiler *DigestCompiler,
	queue *DeliveryQueue,
	dispatcher *Dispatcher,
) *Service {
	return &Service{cfg, log, db, filter, compiler, queue, dispatcher}
}

// LogUpdate appends one event to the update log and returns the stored row
// with its generated id and timestamp.
func (svc *Service) LogUpdate(ctx context.Context, evt *models.UpdateEvent) (*models.UpdateEvent, error) {
	tx := svc.db.WithContext(ctx).Clauses(clause.Returning{}).Create(evt)
	if err := tx.Error; err != nil {
		return nil, err
	}
	svc.log.Sugar().Infow("Logged update", "id", evt.ID, "category", evt.Category, "summary", evt.ChangeSummary)
	return evt, nil
}

// RecentUpdates lists logged events newest first with limit/offset pagination.
func (svc *Service) RecentUpdates(ctx context.Context, limit, offset int) (models.UpdateEvents, error) {
	if limit <= 0 {
		limit = 50
	}

	var events models.UpdateEvents
	tx := svc.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&events)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return events, nil
}

// UpdateStats counts events per category over [start, end].
func (svc *Service) UpdateStats(ctx context.Context, start, end time.Time) (map[models.Category]int, error) {
	var events models.UpdateEvents
	tx := svc.db.WithContext(ctx).
		Select("category").
		Where("created_at >= ?", start).
		Where("created_at <= ?", end).
		Find(&events)
	if err := tx.Error; err != nil {
		return nil, err
	}

	stats := make(map[models.Category]int)
	for _, evt := range events {
		stats[evt.Category]++
	}
	return stats, nil
}

// SubscribePartner registers a partner's delivery configuration.
func (svc *Service) SubscribePartner(ctx context.Context, sub *models.PartnerSubscription) (*models.PartnerSubscription, error) {
	if !sub.Frequency.Valid() {
		return nil, ErrInvalidFrequency
	}

	tx := svc.db.WithContext(ctx).Clauses(clause.Returning{}).Create(sub)
	if err := tx.Error; err != nil {
		return nil, err
	}
	svc.log.Sugar().Infof("Created subscription %s for company %s (%s)", sub.ID, sub.CompanyID, sub.Frequency)
	return sub, nil
}

// SubscriptionPatch is a partial update to a subscription; nil fields are
// left untouched.
type SubscriptionPatch struct {
	Email                    *string            `json:"email"`
	Frequency                *models.Frequency  `json:"frequency"`
	IsActive                 *bool              `json:"is_active"`
	NotifyNewColleges        *bool              `json:"notify_new_colleges"`
	NotifyNewChapters        *bool              `json:"notify_new_chapters"`
	NotifyChapterUpdates     *bool              `json:"notify_chapter_updates"`
	NotifyContactInfo        *bool              `json:"notify_contact_info"`
	NotifyOfficerChanges     *bool              `json:"notify_officer_changes"`
	NotifyEventOpportunities *bool              `json:"notify_event_opportunities"`
	InterestedUniversities   *models.StringList `json:"interested_universities"`
	InterestedStates         *models.StringList `json:"interested_states"`
	InterestedOrgTypes       *models.StringList `json:"interested_org_types"`
}

func (p SubscriptionPatch) changes() (map[string]any, error) {
	changes := make(map[string]any)
	if p.Email != nil {
		changes["email"] = *p.Email
	}
	if p.Frequency != nil {
		if !p.Frequency.Valid() {
			return nil, ErrInvalidFrequency
		}
		changes["frequency"] = *p.Frequency
	}
	if p.IsActive != nil {
		changes["is_active"] = *p.IsActive
	}
	if p.NotifyNewColleges != nil {
		changes["notify_new_colleges"] = *p.NotifyNewColleges
	}
	if p.NotifyNewChapters != nil {
		changes["notify_new_chapters"] = *p.NotifyNewChapters
	}
	if p.NotifyChapterUpdates != nil {
		changes["notify_chapter_updates"] = *p.NotifyChapterUpdates
	}
	if p.NotifyContactInfo != nil {
		changes["notify_contact_info"] = *p.NotifyContactInfo
	}
	if p.NotifyOfficerChanges != nil {
		changes["notify_officer_changes"] = *p.NotifyOfficerChanges
	}
	if p.NotifyEventOpportunities != nil {
		changes["notify_event_opportunities"] = *p.NotifyEventOpportunities
	}
	if p.InterestedUniversities != nil {
		changes["interested_universities"] = *p.InterestedUniversities
	}
	if p.InterestedStates != nil {
		changes["interested_states"] = *p.InterestedStates
	}
	if p.InterestedOrgTypes != nil {
		changes["interested_org_types"] = *p.InterestedOrgTypes
	}
	return changes, nil
}

// UpdateSubscription applies a partial patch and returns the updated row.
func (svc *Service) UpdateSubscription(ctx context.Context, subscriptionID string, patch SubscriptionPatch) (*models.PartnerSubscription, error) {
	changes, err := patch.changes()
	if err != nil {
		return nil, err
	}

	sub := &models.PartnerSubscription{}
	tx := svc.db.WithContext(ctx).Where("id = ?", subscriptionID).First(sub)
	if err := tx.Error; err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		tx = svc.db.WithContext(ctx).Model(sub).Updates(changes)
		if err := tx.Error; err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// ActiveSubscriptions returns every active subscription at the given cadence.
func (svc *Service) ActiveSubscriptions(ctx context.Context, freq models.Frequency) (models.PartnerSubscriptions, error) {
	var subs models.PartnerSubscriptions
	tx := svc.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("frequency = ?", freq).
		Find(&subs)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// ProcessFrequency runs one compile+enqueue pass for a cadence: for every
// active subscription, select the window's matching events and queue a digest
// when at least one matched. A failure on one subscription is logged and the
// loop moves on. Returns how many digests were queued.
func (svc *Service) ProcessFrequency(ctx context.Context, freq models.Frequency) (int, error) {
	if !freq.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrequency, freq)
	}

	subs, err := svc.ActiveSubscriptions(ctx, freq)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	windowStart := WindowStart(freq, now)
	queued := 0

	for i := range subs {
		sub := &subs[i]

		events, err := svc.filter.SelectUpdates(ctx, sub, windowStart, now)
		if err != nil {
			svc.log.Sugar().Errorw("Failed to select updates", "subscription_id", sub.ID, "err", err)
			continue
		}
		if len(events) == 0 {
			svc.log.Sugar().Debugf("No updates for %s since %s", sub.Email, windowStart)
			continue
		}

		digest, err := svc.compiler.Compile(sub, events)
		if err != nil {
			svc.log.Sugar().Errorw("Failed to compile digest", "subscription_id", sub.ID, "err", err)
			continue
		}
		if err := svc.queue.Enqueue(ctx, digest); err != nil {
			svc.log.Sugar().Errorw("Failed to enqueue digest", "subscription_id", sub.ID, "err", err)
			continue
		}

		queued++
		svc.log.Sugar().Infof("Queued digest for %s: %d updates", sub.Email, len(events))
	}

	svc.log.Sugar().Infow("Processed frequency", "frequency", freq, "queued", queued)
	return queued, nil
}

// DrainQueue runs one dispatcher pass over all currently-due digests.
func (svc *Service) DrainQueue(ctx context.Context) (DrainResult, error) {
	return svc.dispatcher.Drain(ctx)
}

// PendingDigests lists due pending queue items for inspection.
func (svc *Service) PendingDigests(ctx context.Context) (models.NotificationDigests, error) {
	return svc.queue.DueItems(ctx, 0)
}

// FailedDigests lists failed queue items with their captured transport
// errors. Failed items are never retried automatically; this listing is the
// surface an operator or external retry tool works from.
func (svc *Service) FailedDigests(ctx context.Context) (models.NotificationDigests, error) {
	return svc.queue.ItemsByStatus(ctx, models.DigestStatusFailed, 0)
}

// SentDigests lists successfully delivered queue items.
func (svc *Service) SentDigests(ctx context.Context) (models.NotificationDigests, error) {
	return svc.queue.ItemsByStatus(ctx, models.DigestStatusSent, 0)
}

// LastCadenceActivity returns the most recent last_notification_sent stamp
// across subscriptions at the given cadence, or the zero time when no digest
// was ever queued for it.
func (svc *Service) LastCadenceActivity(ctx context.Context, freq models.Frequency) (time.Time, error) {
	var stamp sql.NullTime
	tx := svc.db.WithContext(ctx).
		Model(&models.PartnerSubscription{}).
		Where("frequency = ?", freq).
		Select("max(last_notification_sent)").
		Scan(&stamp)
	if err := tx.Error; err != nil {
		return time.Time{}, err
	}
	if !stamp.Valid {
		return time.Time{}, nil
	}
	return stamp.Time, nil
}
