package lib

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chapterbase/updatewatch/lib/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func seedEvent(t *testing.T, db *gorm.DB, category models.Category, summary string, createdAt time.Time) *models.UpdateEvent {
	t.Helper()

	evt := &models.UpdateEvent{
		Category:      category,
		EntityType:    "chapter",
		ChangeSummary: summary,
		CreatedBy:     "test",
		CreatedAt:     createdAt,
	}
	require.NoError(t, db.Create(evt).Error)
	return evt
}

func seedSubscription(t *testing.T, db *gorm.DB, sub *models.PartnerSubscription) *models.PartnerSubscription {
	t.Helper()

	if sub.Email == "" {
		sub.Email = "partner@example.com"
	}
	if sub.Frequency == "" {
		sub.Frequency = models.FrequencyWeekly
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

type sentMessage struct {
	Recipient string
	Subject   string
	HTMLBody  string
	TextBody  string
}

// fakeSender records every attempt in order and fails for recipients listed
// in failFor.
type fakeSender struct {
	failFor  map[string]error
	attempts []string
	sent     []sentMessage
}

func (f *fakeSender) Send(ctx context.Context, recipient, subject, htmlBody, textBody string) (string, error) {
	f.attempts = append(f.attempts, recipient)
	if err, ok := f.failFor[recipient]; ok {
		return "", err
	}
	f.sent = append(f.sent, sentMessage{recipient, subject, htmlBody, textBody})
	return "message-id", nil
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}
