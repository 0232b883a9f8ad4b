package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Frequency is a subscription's delivery cadence.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

var Frequencies = []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// PartnerSubscription is one partner's delivery configuration. Soft-deactivated
// via IsActive rather than deleted.
type PartnerSubscription struct {
	ID        string `gorm:"primaryKey"`
	CompanyID string `gorm:"index"`
	Email     string
	Frequency Frequency `gorm:"index"`
	IsActive  bool      `gorm:"index"`

	NotifyNewColleges        bool
	NotifyNewChapters        bool
	NotifyChapterUpdates     bool
	NotifyContactInfo        bool
	NotifyOfficerChanges     bool
	NotifyEventOpportunities bool

	InterestedUniversities StringList `gorm:"type:text"`
	InterestedStates       StringList `gorm:"type:text"`
	InterestedOrgTypes     StringList `gorm:"type:text"`

	LastNotificationSent sql.NullTime
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type PartnerSubscriptions []PartnerSubscription

func (s *PartnerSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// NotifyCategories builds the category allow-list from the six opt-in flags.
// An empty result means no category restriction is applied downstream.
func (s *PartnerSubscription) NotifyCategories() []Category {
	allowed := make([]Category, 0, len(CategoryDisplayOrder))
	if s.NotifyNewColleges {
		allowed = append(allowed, CategoryNewCollege)
	}
	if s.NotifyNewChapters {
		allowed = append(allowed, CategoryNewChapter)
	}
	if s.NotifyChapterUpdates {
		allowed = append(allowed, CategoryChapterUpdate)
	}
	if s.NotifyContactInfo {
		allowed = append(allowed, CategoryContactInfo)
	}
	if s.NotifyOfficerChanges {
		allowed = append(allowed, CategoryOfficerChange)
	}
	if s.NotifyEventOpportunities {
		allowed = append(allowed, CategoryEventOpportunity)
	}
	return allowed
}
