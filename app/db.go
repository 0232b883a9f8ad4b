package app

import (
	"github.com/chapterbase/updatewatch/config"
	"github.com/chapterbase/updatewatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func NewDatabase(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{})
	if err != nil {
		log.Sugar().Panic("failed to connect database", "err", err)
	}
	log.Info("Database started")

	log.Info("Starting migrations")
	db.AutoMigrate(
		&models.UpdateEvent{},
		&models.PartnerSubscription{},
		&models.NotificationDigest{},
		&models.WatchedPage{},
	)
	return db
}
