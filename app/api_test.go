package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chapterbase/updatewatch/config"
	"github.com/chapterbase/updatewatch/lib"
	"github.com/chapterbase/updatewatch/lib/models"
	"github.com/chapterbase/updatewatch/lib/watcher"
	"github.com/chapterbase/updatewatch/senders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubSender struct{}

func (stubSender) Send(ctx context.Context, recipient, subject, htmlBody, textBody string) (string, error) {
	return "message-id", nil
}

func newTestRouter(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.UpdateEvent{},
		&models.PartnerSubscription{},
		&models.NotificationDigest{},
		&models.WatchedPage{},
	))

	log := zap.NewNop()
	cfg := &config.Config{ServerDNS: "https://chapterbase.com"}

	queue := lib.NewDeliveryQueue(db, log)
	dispatcher := lib.NewDispatcher(queue, senders.Registry{"email": stubSender{}}, log)
	svc := lib.NewService(
		fxtest.NewLifecycle(t), cfg, log, db,
		lib.NewFilterEngine(db, log),
		lib.NewDigestCompiler(cfg, log),
		queue, dispatcher,
	)
	watch := watcher.NewWatcher(fxtest.NewLifecycle(t), db, log, http.DefaultTransport)

	return router(cfg, log, svc, watch), db
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestLogUpdateAndListRecent(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/updates", `{
		"category": "new_chapter",
		"entity_type": "chapter",
		"entity_name": "Sigma Chi",
		"change_summary": "Sigma Chi added at FSU",
		"university_name": "Florida State University",
		"university_state": "FL",
		"created_by": "admin"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created UpdateEventView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.CreatedAt)

	rec = doJSON(t, r, http.MethodGet, "/api/updates/recent?limit=10", "")
	require.Equal(t, 200, rec.Code)

	var listing struct {
		Data       []UpdateEventView `json:"data"`
		Pagination map[string]int    `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Data, 1)
	assert.Equal(t, "Sigma Chi added at FSU", listing.Data[0].ChangeSummary)
	assert.Equal(t, 1, listing.Pagination["count"])
}

func TestLogUpdate_RequiresCategoryAndSummary(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/updates", `{"entity_name": "x"}`)
	assert.Equal(t, 400, rec.Code)
}

func TestSubscribeAndPatch(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/subscriptions", `{
		"company_id": "co-1",
		"email": "partner@example.com",
		"frequency": "weekly",
		"notify_new_chapters": true,
		"interested_states": ["FL", "GA"]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var sub SubscriptionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.NotEmpty(t, sub.ID)
	assert.True(t, sub.IsActive)
	assert.Equal(t, []string{"FL", "GA"}, sub.InterestedStates)

	rec = doJSON(t, r, http.MethodPatch, "/api/subscriptions/"+sub.ID, `{"frequency": "monthly"}`)
	require.Equal(t, 200, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.Equal(t, "monthly", sub.Frequency)

	// Untouched opt-ins survive a partial patch.
	assert.True(t, sub.NotifyNewChapters)
}

func TestSubscribe_RejectsUnknownCadence(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/subscriptions", `{
		"email": "partner@example.com",
		"frequency": "hourly"
	}`)
	assert.Equal(t, 400, rec.Code)
}

func TestProcessFrequency(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/process/hourly", "")
	assert.Equal(t, 400, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/process/weekly", "")
	require.Equal(t, 200, rec.Code)

	var result struct {
		Frequency string `json:"frequency"`
		Queued    int    `json:"queued"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "weekly", result.Frequency)
	assert.Zero(t, result.Queued)
}

func TestPendingDigests_Empty(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/api/digests/pending", "")
	require.Equal(t, 200, rec.Code)

	var listing struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Zero(t, listing.Count)
}

func TestFailedDigests_ListedWithError(t *testing.T) {
	r, db := newTestRouter(t)

	sub := &models.PartnerSubscription{
		Email:     "partner@example.com",
		Frequency: models.FrequencyWeekly,
		IsActive:  true,
	}
	require.NoError(t, db.Create(sub).Error)
	require.NoError(t, db.Create(&models.NotificationDigest{
		PartnerSubscriptionID: sub.ID,
		Email:                 sub.Email,
		Subject:               "ChapterBase Updates: 1 New Update This Week",
		UpdateCount:           1,
		Status:                models.DigestStatusFailed,
		ErrorMessage:          "smtp 550 mailbox unavailable",
	}).Error)

	// The failed item is absent from the pending view but listed, with its
	// captured error, on the failed one.
	rec := doJSON(t, r, http.MethodGet, "/api/digests/pending", "")
	require.Equal(t, 200, rec.Code)

	var listing struct {
		Data  []DigestView `json:"data"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Zero(t, listing.Count)

	rec = doJSON(t, r, http.MethodGet, "/api/digests/failed", "")
	require.Equal(t, 200, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Equal(t, 1, listing.Count)
	assert.Equal(t, "failed", listing.Data[0].Status)
	assert.Equal(t, "smtp 550 mailbox unavailable", listing.Data[0].ErrorMessage)

	rec = doJSON(t, r, http.MethodGet, "/api/digests/sent", "")
	require.Equal(t, 200, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Zero(t, listing.Count)
}

func TestUpdateStats(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, category := range []string{"new_chapter", "new_chapter", "officer_change"} {
		rec := doJSON(t, r, http.MethodPost, "/api/updates", fmt.Sprintf(
			`{"category": %q, "change_summary": "change", "created_by": "admin"}`, category))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, r, http.MethodGet, "/api/updates/stats?days=7", "")
	require.Equal(t, 200, rec.Code)

	var stats struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Data["new_chapter"])
	assert.Equal(t, 1, stats.Data["officer_change"])
}
