package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category classifies what kind of change an UpdateEvent records.
type Category string

const (
	CategoryNewCollege       Category = "new_college"
	CategoryNewChapter       Category = "new_chapter"
	CategoryChapterUpdate    Category = "chapter_update"
	CategoryContactInfo      Category = "contact_info"
	CategoryOfficerChange    Category = "officer_change"
	CategoryEventOpportunity Category = "event_opportunity"
)

// CategoryDisplayOrder fixes the order sections appear in digests.
var CategoryDisplayOrder = []Category{
	CategoryNewCollege,
	CategoryNewChapter,
	CategoryChapterUpdate,
	CategoryContactInfo,
	CategoryOfficerChange,
	CategoryEventOpportunity,
}

// CategoryLabels is the single label table consumed by both the HTML and
// the plain-text digest renderers.
var CategoryLabels = map[Category]string{
	CategoryNewCollege:       "New Colleges Added",
	CategoryNewChapter:       "New Chapters Added",
	CategoryChapterUpdate:    "Chapter Updates",
	CategoryContactInfo:      "Contact Info Updated",
	CategoryOfficerChange:    "Officer Changes",
	CategoryEventOpportunity: "Event Opportunities",
}

func (c Category) Label() string {
	if label, ok := CategoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// UpdateEvent is an immutable record of one detected change in the tracked
// directory. Rows are appended by whatever detects the change and are never
// mutated or deleted by this subsystem.
type UpdateEvent struct {
	ID              string   `gorm:"primaryKey"`
	Category        Category `gorm:"index"`
	EntityType      string
	EntityID        string
	EntityName      string
	ChangeSummary   string
	ChangeDetails   string `gorm:"type:text"`
	UniversityID    string `gorm:"index"`
	UniversityName  string
	UniversityState string `gorm:"index"`
	ChapterID       string
	ChapterName     string
	CreatedBy       string
	IsMajorUpdate   bool
	CreatedAt       time.Time `gorm:"index"`
}

type UpdateEvents []UpdateEvent

func (u *UpdateEvent) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (us UpdateEvents) IDs() []string {
	ids := make([]string, len(us))
	for i, u := range us {
		ids[i] = u.ID
	}
	return ids
}
