package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WatchedPage is a chapter page polled by the watcher. When the extracted
// content changes, a chapter_update event is appended to the event log.
type WatchedPage struct {
	ID              string `gorm:"primaryKey"`
	ChapterID       string
	ChapterName     string
	UniversityID    string
	UniversityName  string
	UniversityState string
	Endpoint        string `gorm:"index:idx_endpoint_xpath"`
	XPath           string `gorm:"index:idx_endpoint_xpath"`
	ContentDigest   string
	LastPollTime    sql.NullTime
	CreatedAt       time.Time
}

type WatchedPages []WatchedPage

func (w *WatchedPage) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}
