package watcher

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/chapterbase/updatewatch/lib/models"
	"github.com/chapterbase/updatewatch/lib/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Watcher polls registered chapter pages and appends a chapter_update event
// to the update log whenever a page's extracted content changes. It is one of
// the collaborators that feed the event log; the digest pipeline picks the
// events up on its own schedule.
type Watcher struct {
	db        *gorm.DB
	log       *zap.Logger
	transport http.RoundTripper

	trigger     *scheduler.RecurringTrigger
	pollTimeout time.Duration
}

func NewWatcher(lc fx.Lifecycle, db *gorm.DB, log *zap.Logger, transport http.RoundTripper) *Watcher {
	pollInterval := 1 * time.Hour

	w := &Watcher{
		db:          db,
		log:         log,
		transport:   transport,
		pollTimeout: 20 * time.Second,
	}
	w.trigger = scheduler.NewTrigger("page-watcher", log, scheduler.Every(pollInterval), w.pollPass)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.trigger.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop watcher")
			w.trigger.Stop()
			return nil
		},
	})

	return w
}

// RegisterPage validates that the endpoint yields content for the xpath, then
// stores the page with its initial content fingerprint.
func (w *Watcher) RegisterPage(ctx context.Context, page *models.WatchedPage) (*models.WatchedPage, error) {
	content, err := w.fetchContent(ctx, page.Endpoint, page.XPath)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("no result extracted from %s using xpath: %s", page.Endpoint, page.XPath)
	}

	page.ContentDigest = models.DigestContent(content)
	page.LastPollTime = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	tx := w.db.WithContext(ctx).Clauses(clause.Returning{}).Create(page)
	if err := tx.Error; err != nil {
		return nil, err
	}
	w.log.Sugar().Infof("Watching page %s for chapter %s", page.Endpoint, page.ChapterName)
	return page, nil
}

func (w *Watcher) pollPass(context.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), w.pollTimeout)
	defer cancel()

	var pages models.WatchedPages
	if err := w.db.WithContext(ctx).Find(&pages).Error; err != nil {
		w.log.Sugar().Errorw("Failed to fetch watched pages", "err", err)
		return
	}

	changed := 0
	for i := range pages {
		page := &pages[i]
		didChange, err := w.pollPage(ctx, page)
		if err != nil {
			w.log.Sugar().Errorw("Failed to poll page", "page_id", page.ID, "endpoint", page.Endpoint, "err", err)
			continue
		}
		if didChange {
			changed++
		}
	}

	if len(pages) > 0 {
		w.log.Sugar().Infow("Watcher pass complete", "pages", len(pages), "changed", changed)
	}
}

func (w *Watcher) pollPage(ctx context.Context, page *models.WatchedPage) (bool, error) {
	content, err := w.fetchContent(ctx, page.Endpoint, page.XPath)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	currDigest := models.DigestContent(content)
	changed := page.ContentDigest != "" && currDigest != page.ContentDigest

	tx := w.db.WithContext(ctx).Model(page).Updates(map[string]any{
		"content_digest": currDigest,
		"last_poll_time": now,
	})
	if err := tx.Error; err != nil {
		return false, err
	}
	page.ContentDigest = currDigest
	page.LastPollTime = sql.NullTime{Time: now, Valid: true}

	if !changed {
		return false, nil
	}

	event := &models.UpdateEvent{
		Category:        models.CategoryChapterUpdate,
		EntityType:      "chapter",
		EntityID:        page.ChapterID,
		EntityName:      page.ChapterName,
		ChangeSummary:   fmt.Sprintf("%s page content changed", page.ChapterName),
		UniversityID:    page.UniversityID,
		UniversityName:  page.UniversityName,
		UniversityState: page.UniversityState,
		ChapterID:       page.ChapterID,
		ChapterName:     page.ChapterName,
		CreatedBy:       "page-watcher",
	}
	if err := w.db.WithContext(ctx).Create(event).Error; err != nil {
		return false, err
	}

	w.log.Sugar().Infow("Detected page change", "page_id", page.ID, "chapter", page.ChapterName, "event_id", event.ID)
	return true, nil
}
