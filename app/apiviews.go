package app

import (
	"database/sql"
	"time"

	"github.com/chapterbase/updatewatch/lib/models"
)

type UpdateEventRequest struct {
	Category        string `json:"category"`
	EntityType      string `json:"entity_type"`
	EntityID        string `json:"entity_id"`
	EntityName      string `json:"entity_name"`
	ChangeSummary   string `json:"change_summary"`
	ChangeDetails   string `json:"change_details"`
	UniversityID    string `json:"university_id"`
	UniversityName  string `json:"university_name"`
	UniversityState string `json:"university_state"`
	ChapterID       string `json:"chapter_id"`
	ChapterName     string `json:"chapter_name"`
	CreatedBy       string `json:"created_by"`
	IsMajorUpdate   bool   `json:"is_major_update"`
}

func (req UpdateEventRequest) Model() *models.UpdateEvent {
	return &models.UpdateEvent{
		Category:        models.Category(req.Category),
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		EntityName:      req.EntityName,
		ChangeSummary:   req.ChangeSummary,
		ChangeDetails:   req.ChangeDetails,
		UniversityID:    req.UniversityID,
		UniversityName:  req.UniversityName,
		UniversityState: req.UniversityState,
		ChapterID:       req.ChapterID,
		ChapterName:     req.ChapterName,
		CreatedBy:       req.CreatedBy,
		IsMajorUpdate:   req.IsMajorUpdate,
	}
}

type UpdateEventView struct {
	ID              string `json:"id"`
	Category        string `json:"category"`
	EntityType      string `json:"entity_type"`
	EntityID        string `json:"entity_id"`
	EntityName      string `json:"entity_name"`
	ChangeSummary   string `json:"change_summary"`
	ChangeDetails   string `json:"change_details,omitempty"`
	UniversityID    string `json:"university_id,omitempty"`
	UniversityName  string `json:"university_name,omitempty"`
	UniversityState string `json:"university_state,omitempty"`
	ChapterID       string `json:"chapter_id,omitempty"`
	ChapterName     string `json:"chapter_name,omitempty"`
	CreatedBy       string `json:"created_by"`
	IsMajorUpdate   bool   `json:"is_major_update"`
	CreatedAt       string `json:"created_at"`
}

func (view UpdateEventView) From(entity models.UpdateEvent) UpdateEventView {
	return UpdateEventView{
		ID:              entity.ID,
		Category:        string(entity.Category),
		EntityType:      entity.EntityType,
		EntityID:        entity.EntityID,
		EntityName:      entity.EntityName,
		ChangeSummary:   entity.ChangeSummary,
		ChangeDetails:   entity.ChangeDetails,
		UniversityID:    entity.UniversityID,
		UniversityName:  entity.UniversityName,
		UniversityState: entity.UniversityState,
		ChapterID:       entity.ChapterID,
		ChapterName:     entity.ChapterName,
		CreatedBy:       entity.CreatedBy,
		IsMajorUpdate:   entity.IsMajorUpdate,
		CreatedAt:       entity.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type SubscriptionRequest struct {
	CompanyID                string   `json:"company_id"`
	Email                    string   `json:"email"`
	Frequency                string   `json:"frequency"`
	IsActive                 *bool    `json:"is_active"`
	NotifyNewColleges        bool     `json:"notify_new_colleges"`
	NotifyNewChapters        bool     `json:"notify_new_chapters"`
	NotifyChapterUpdates     bool     `json:"notify_chapter_updates"`
	NotifyContactInfo        bool     `json:"notify_contact_info"`
	NotifyOfficerChanges     bool     `json:"notify_officer_changes"`
	NotifyEventOpportunities bool     `json:"notify_event_opportunities"`
	InterestedUniversities   []string `json:"interested_universities"`
	InterestedStates         []string `json:"interested_states"`
	InterestedOrgTypes       []string `json:"interested_org_types"`
}

func (req SubscriptionRequest) Model() *models.PartnerSubscription {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &models.PartnerSubscription{
		CompanyID:                req.CompanyID,
		Email:                    req.Email,
		Frequency:                models.Frequency(req.Frequency),
		IsActive:                 active,
		NotifyNewColleges:        req.NotifyNewColleges,
		NotifyNewChapters:        req.NotifyNewChapters,
		NotifyChapterUpdates:     req.NotifyChapterUpdates,
		NotifyContactInfo:        req.NotifyContactInfo,
		NotifyOfficerChanges:     req.NotifyOfficerChanges,
		NotifyEventOpportunities: req.NotifyEventOpportunities,
		InterestedUniversities:   models.StringList(req.InterestedUniversities),
		InterestedStates:         models.StringList(req.InterestedStates),
		InterestedOrgTypes:       models.StringList(req.InterestedOrgTypes),
	}
}

type SubscriptionView struct {
	ID                       string   `json:"id"`
	CompanyID                string   `json:"company_id"`
	Email                    string   `json:"email"`
	Frequency                string   `json:"frequency"`
	IsActive                 bool     `json:"is_active"`
	NotifyNewColleges        bool     `json:"notify_new_colleges"`
	NotifyNewChapters        bool     `json:"notify_new_chapters"`
	NotifyChapterUpdates     bool     `json:"notify_chapter_updates"`
	NotifyContactInfo        bool     `json:"notify_contact_info"`
	NotifyOfficerChanges     bool     `json:"notify_officer_changes"`
	NotifyEventOpportunities bool     `json:"notify_event_opportunities"`
	InterestedUniversities   []string `json:"interested_universities"`
	InterestedStates         []string `json:"interested_states"`
	InterestedOrgTypes       []string `json:"interested_org_types"`
	LastNotificationSent     *string  `json:"last_notification_sent"`
}

func (view SubscriptionView) From(entity models.PartnerSubscription) SubscriptionView {
	return SubscriptionView{
		ID:                       entity.ID,
		CompanyID:                entity.CompanyID,
		Email:                    entity.Email,
		Frequency:                string(entity.Frequency),
		IsActive:                 entity.IsActive,
		NotifyNewColleges:        entity.NotifyNewColleges,
		NotifyNewChapters:        entity.NotifyNewChapters,
		NotifyChapterUpdates:     entity.NotifyChapterUpdates,
		NotifyContactInfo:        entity.NotifyContactInfo,
		NotifyOfficerChanges:     entity.NotifyOfficerChanges,
		NotifyEventOpportunities: entity.NotifyEventOpportunities,
		InterestedUniversities:   entity.InterestedUniversities,
		InterestedStates:         entity.InterestedStates,
		InterestedOrgTypes:       entity.InterestedOrgTypes,
		LastNotificationSent:     isoformat(entity.LastNotificationSent),
	}
}

type DigestView struct {
	ID                    string   `json:"id"`
	PartnerSubscriptionID string   `json:"partner_subscription_id"`
	CompanyID             string   `json:"company_id"`
	Email                 string   `json:"email"`
	DigestPeriodStart     string   `json:"digest_period_start"`
	DigestPeriodEnd       string   `json:"digest_period_end"`
	UpdateIDs             []string `json:"update_ids"`
	UpdateCount           int      `json:"update_count"`
	Subject               string   `json:"subject"`
	ScheduledSendTime     string   `json:"scheduled_send_time"`
	Status                string   `json:"status"`
	ErrorMessage          string   `json:"error_message,omitempty"`
	SentAt                *string  `json:"sent_at"`
}

func (view DigestView) From(entity models.NotificationDigest) DigestView {
	return DigestView{
		ID:                    entity.ID,
		PartnerSubscriptionID: entity.PartnerSubscriptionID,
		CompanyID:             entity.CompanyID,
		Email:                 entity.Email,
		DigestPeriodStart:     entity.DigestPeriodStart.UTC().Format(time.RFC3339),
		DigestPeriodEnd:       entity.DigestPeriodEnd.UTC().Format(time.RFC3339),
		UpdateIDs:             entity.UpdateIDs,
		UpdateCount:           entity.UpdateCount,
		Subject:               entity.Subject,
		ScheduledSendTime:     entity.ScheduledSendTime.UTC().Format(time.RFC3339),
		Status:                entity.Status,
		ErrorMessage:          entity.ErrorMessage,
		SentAt:                isoformat(entity.SentAt),
	}
}

type WatchedPageRequest struct {
	ChapterID       string `json:"chapter_id"`
	ChapterName     string `json:"chapter_name"`
	UniversityID    string `json:"university_id"`
	UniversityName  string `json:"university_name"`
	UniversityState string `json:"university_state"`
	Endpoint        string `json:"endpoint"`
	XPath           string `json:"xpath"`
}

func (req WatchedPageRequest) Model() *models.WatchedPage {
	return &models.WatchedPage{
		ChapterID:       req.ChapterID,
		ChapterName:     req.ChapterName,
		UniversityID:    req.UniversityID,
		UniversityName:  req.UniversityName,
		UniversityState: req.UniversityState,
		Endpoint:        req.Endpoint,
		XPath:           req.XPath,
	}
}

type WatchedPageView struct {
	ID              string  `json:"id"`
	ChapterID       string  `json:"chapter_id"`
	ChapterName     string  `json:"chapter_name"`
	UniversityID    string  `json:"university_id"`
	UniversityName  string  `json:"university_name"`
	UniversityState string  `json:"university_state"`
	Endpoint        string  `json:"endpoint"`
	XPath           string  `json:"xpath"`
	LastPollTime    *string `json:"last_poll_time"`
}

func (view WatchedPageView) From(entity models.WatchedPage) WatchedPageView {
	return WatchedPageView{
		ID:              entity.ID,
		ChapterID:       entity.ChapterID,
		ChapterName:     entity.ChapterName,
		UniversityID:    entity.UniversityID,
		UniversityName:  entity.UniversityName,
		UniversityState: entity.UniversityState,
		Endpoint:        entity.Endpoint,
		XPath:           entity.XPath,
		LastPollTime:    isoformat(entity.LastPollTime),
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}

func isoformat(t sql.NullTime) *string {
	if t.Valid {
		s := t.Time.UTC().Format(time.RFC3339)
		return &s
	}
	return nil
}
