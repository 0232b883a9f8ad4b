package lib

import (
	"context"
	"fmt"
	"time"

	"github.com/chapterbase/updatewatch/lib/models"
	"github.com/chapterbase/updatewatch/senders"
	"go.uber.org/zap"
)

// Dispatcher drains due queue items in scheduled-time order and records the
// outcome of each send attempt. Failed items are never re-attempted here;
// remediation is an operator action via the inspection API.
type Dispatcher struct {
	queue   *DeliveryQueue
	senders senders.Registry
	log     *zap.Logger

	sendTimeout    time.Duration
	interSendDelay time.Duration
}

type DrainResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

func NewDispatcher(queue *DeliveryQueue, senders senders.Registry, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		senders: senders,
		log:     log,

		// The timeout bounds each attempt so one stuck recipient cannot
		// stall the batch; the delay spaces sends out for transport rate
		// limits.
		sendTimeout:    30 * time.Second,
		interSendDelay: 100 * time.Millisecond,
	}
}

// Drain processes all currently-due items one at a time, oldest due first.
// One bad item never blocks the remainder of the batch.
func (d *Dispatcher) Drain(ctx context.Context) (DrainResult, error) {
	var result DrainResult

	due, err := d.queue.DueItems(ctx, 0)
	if err != nil {
		return result, err
	}
	if len(due) == 0 {
		return result, nil
	}
	d.log.Sugar().Infof("Draining %d due digests", len(due))

	sender, ok := d.senders["email"]
	if !ok {
		return result, fmt.Errorf("no email sender configured")
	}

	for i := range due {
		item := &due[i]

		if err := d.attempt(ctx, sender, item); err != nil {
			result.Failed++
			d.log.Sugar().Errorw("Failed to send digest", "digest_id", item.ID, "recipient", item.Email, "err", err)
			if markErr := d.queue.MarkFailed(ctx, item.ID, err.Error()); markErr != nil {
				d.log.Sugar().Errorw("Failed to mark digest failed", "digest_id", item.ID, "err", markErr)
			}
		} else {
			result.Sent++
			if markErr := d.queue.MarkSent(ctx, item.ID); markErr != nil {
				d.log.Sugar().Errorw("Failed to mark digest sent", "digest_id", item.ID, "err", markErr)
			}
		}

		time.Sleep(d.interSendDelay)
	}

	d.log.Sugar().Infow("Drain complete", "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

func (d *Dispatcher) attempt(ctx context.Context, sender senders.Sender, item *models.NotificationDigest) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	_, err := sender.Send(ctx, item.Email, item.Subject, item.HTMLBody, item.TextBody)
	return err
}
