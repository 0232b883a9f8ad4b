package main

import (
	"net/http"
	"os"
	"time"

	"github.com/chapterbase/updatewatch/app"
	"github.com/chapterbase/updatewatch/config"
	"github.com/chapterbase/updatewatch/lib"
	"github.com/chapterbase/updatewatch/lib/scheduler"
	"github.com/chapterbase/updatewatch/lib/watcher"
	"github.com/chapterbase/updatewatch/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func main() {
	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(senders.NewSenderRegistry),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),
		fx.Provide(lib.NewFilterEngine),
		fx.Provide(lib.NewDigestCompiler),
		fx.Provide(lib.NewDeliveryQueue),
		fx.Provide(lib.NewDispatcher),
		fx.Provide(lib.NewService),
		fx.Provide(watcher.NewWatcher),
		fx.Provide(scheduler.NewScheduler),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(*scheduler.Scheduler) {}),
		fx.Invoke(func(*http.Server) {}),
	).Run()
}
