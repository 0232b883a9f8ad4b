package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Queue item lifecycle. Status is monotonic: pending goes to sent or failed,
// and nothing transitions out of a terminal state.
const (
	DigestStatusPending = "pending"
	DigestStatusSent    = "sent"
	DigestStatusFailed  = "failed"
)

// NotificationDigest is one compiled, queued notification summarizing the
// events that matched a subscription over a digest window. Created by the
// compiler; only the dispatcher moves it out of pending.
type NotificationDigest struct {
	ID                    string `gorm:"primaryKey"`
	PartnerSubscriptionID string `gorm:"index"`
	CompanyID             string
	Email                 string
	DigestPeriodStart     time.Time
	DigestPeriodEnd       time.Time
	UpdateIDs             StringList `gorm:"type:text"`
	UpdateCount           int
	Subject               string
	HTMLBody              string    `gorm:"type:text"`
	TextBody              string    `gorm:"type:text"`
	ScheduledSendTime     time.Time `gorm:"index"`
	Status                string    `gorm:"index;default:pending"`
	ErrorMessage          string
	SentAt                sql.NullTime
	CreatedAt             time.Time
}

type NotificationDigests []NotificationDigest

func (d *NotificationDigest) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
