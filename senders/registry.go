package senders

import (
	"context"
	"net/http"

	"github.com/chapterbase/updatewatch/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sender is the outbound transport capability consumed by the dispatcher.
type Sender interface {
	Send(ctx context.Context, recipient, subject, htmlBody, textBody string) (string, error)
}

type Registry map[string]Sender

func NewSenderRegistry(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	return map[string]Sender{
		"email": &mailgunSender{base},
	}
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
