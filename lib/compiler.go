package lib

import (
	"errors"
	"fmt"
	"time"

	"github.com/chapterbase/updatewatch/config"
	"github.com/chapterbase/updatewatch/lib/models"
	"go.uber.org/zap"
)

// WindowStart computes the start of a digest window ending at now. Monthly is
// one calendar month back, not 30 days. Unrecognized frequencies fall back to
// a week.
func WindowStart(freq models.Frequency, now time.Time) time.Time {
	switch freq {
	case models.FrequencyDaily:
		return now.AddDate(0, 0, -1)
	case models.FrequencyWeekly:
		return now.AddDate(0, 0, -7)
	case models.FrequencyBiweekly:
		return now.AddDate(0, 0, -14)
	case models.FrequencyMonthly:
		return now.AddDate(0, -1, 0)
	default:
		return now.AddDate(0, 0, -7)
	}
}

func periodLabel(freq models.Frequency) string {
	switch freq {
	case models.FrequencyDaily:
		return "Today"
	case models.FrequencyWeekly:
		return "This Week"
	case models.FrequencyBiweekly:
		return "Last 2 Weeks"
	default:
		return "This Month"
	}
}

// DigestCompiler turns a subscription's matched events into a queueable
// NotificationDigest with rendered subject, HTML body and text body.
type DigestCompiler struct {
	baseURL string
	log     *zap.Logger
}

func NewDigestCompiler(cfg *config.Config, log *zap.Logger) *DigestCompiler {
	return &DigestCompiler{cfg.ServerDNS, log}
}

// Compile requires a non-empty event list; callers skip subscriptions with no
// matches so empty digests are never queued.
func (c *DigestCompiler) Compile(sub *models.PartnerSubscription, events models.UpdateEvents) (*models.NotificationDigest, error) {
	return c.compileAt(sub, events, time.Now().UTC())
}

func (c *DigestCompiler) compileAt(sub *models.PartnerSubscription, events models.UpdateEvents, now time.Time) (*models.NotificationDigest, error) {
	if len(events) == 0 {
		return nil, errors.New("cannot compile a digest from zero events")
	}

	sections := groupSections(events)

	htmlBody, err := renderHTMLBody(sub, sections, c.baseURL)
	if err != nil {
		return nil, err
	}
	textBody := renderTextBody(sub, sections, c.baseURL)

	return &models.NotificationDigest{
		PartnerSubscriptionID: sub.ID,
		CompanyID:             sub.CompanyID,
		Email:                 sub.Email,
		DigestPeriodStart:     WindowStart(sub.Frequency, now),
		DigestPeriodEnd:       now,
		UpdateIDs:             models.StringList(events.IDs()),
		UpdateCount:           len(events),
		Subject:               digestSubject(sub.Frequency, len(events)),
		HTMLBody:              htmlBody,
		TextBody:              textBody,
		ScheduledSendTime:     now,
		Status:                models.DigestStatusPending,
	}, nil
}

func digestSubject(freq models.Frequency, count int) string {
	plural := "Updates"
	if count == 1 {
		plural = "Update"
	}
	return fmt.Sprintf("ChapterBase Updates: %d New %s %s", count, plural, periodLabel(freq))
}

// digestSection groups the events of one category under its display label.
// Events keep the order the filter engine returned them in.
type digestSection struct {
	Label  string
	Events models.UpdateEvents
}

func groupSections(events models.UpdateEvents) []digestSection {
	byCategory := make(map[models.Category]models.UpdateEvents)
	for _, evt := range events {
		byCategory[evt.Category] = append(byCategory[evt.Category], evt)
	}

	sections := make([]digestSection, 0, len(byCategory))
	for _, category := range models.CategoryDisplayOrder {
		if grouped, ok := byCategory[category]; ok {
			sections = append(sections, digestSection{category.Label(), grouped})
		}
	}
	return sections
}
