package lib

import (
	"context"
	"time"

	"github.com/chapterbase/updatewatch/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FilterEngine selects the subset of logged events a partner should see for
// one digest window.
type FilterEngine struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewFilterEngine(db *gorm.DB, log *zap.Logger) *FilterEngine {
	return &FilterEngine{db, log}
}

// SelectUpdates returns events created within [windowStart, windowEnd] that
// match the subscription's category opt-ins and interest filters, newest
// first.
//
// A subscription with every category opt-in disabled gets no category
// restriction at all, i.e. every category. That mirrors the behavior the
// partner-facing product has always had; see TestSelectUpdates_AllOptInsFalse.
func (f *FilterEngine) SelectUpdates(
	ctx context.Context,
	sub *models.PartnerSubscription,
	windowStart, windowEnd time.Time,
) (models.UpdateEvents, error) {
	query := f.db.WithContext(ctx).
		Where("created_at >= ?", windowStart).
		Where("created_at <= ?", windowEnd).
		Order("created_at desc")

	if allowed := sub.NotifyCategories(); len(allowed) > 0 {
		query = query.Where("category IN ?", allowed)
	}
	if len(sub.InterestedStates) > 0 {
		query = query.Where("university_state IN ?", []string(sub.InterestedStates))
	}
	if len(sub.InterestedUniversities) > 0 {
		query = query.Where("university_id IN ?", []string(sub.InterestedUniversities))
	}

	var events models.UpdateEvents
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
