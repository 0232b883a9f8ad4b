package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/chapterbase/updatewatch/config"
	"github.com/chapterbase/updatewatch/lib"
	"github.com/chapterbase/updatewatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler owns the recurring triggers that drive the digest pipeline: one
// per cadence plus a cleanup tick. Every trigger body serializes through one
// mutex so two cadence ticks never race on a subscription's last-sent stamp.
type Scheduler struct {
	log *zap.Logger
	svc *lib.Service
	loc *time.Location

	mu           sync.Mutex
	triggers     []*RecurringTrigger
	lastBiweekly time.Time

	passTimeout time.Duration
}

func NewScheduler(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *Scheduler {
	loc, err := time.LoadLocation(cfg.SchedulerTimezone)
	if err != nil {
		log.Sugar().Warnf("Unknown scheduler timezone %q, falling back to UTC", cfg.SchedulerTimezone)
		loc = time.UTC
	}

	s := &Scheduler{
		log:         log,
		svc:         svc,
		loc:         loc,
		passTimeout: 5 * time.Minute,
	}
	s.triggers = []*RecurringTrigger{
		NewTrigger("daily-digests", log, DailyAt(9, 0, loc), s.cadencePass(models.FrequencyDaily)),
		NewTrigger("weekly-digests", log, WeeklyAt(time.Monday, 9, 0, loc), s.cadencePass(models.FrequencyWeekly)),
		NewTrigger("biweekly-digests", log, WeeklyAt(time.Monday, 9, 0, loc), s.biweeklyPass),
		NewTrigger("monthly-digests", log, MonthlyAt(1, 9, 0, loc), s.cadencePass(models.FrequencyMonthly)),
		NewTrigger("queue-cleanup", log, WeeklyAt(time.Sunday, 2, 0, loc), s.cleanupPass),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop scheduler")
			s.Stop()
			return nil
		},
	})

	return s
}

func (s *Scheduler) Start() {
	for _, trigger := range s.triggers {
		trigger.Start()
	}
	s.log.Sugar().Infof("Started %d scheduler triggers", len(s.triggers))
}

func (s *Scheduler) Stop() {
	for _, trigger := range s.triggers {
		trigger.Stop()
	}
	s.log.Sugar().Info("Scheduler stopped")
}

func (s *Scheduler) cadencePass(freq models.Frequency) func(context.Context) {
	return func(context.Context) {
		s.runCadence(freq)
	}
}

// runCadence compiles and enqueues digests for one cadence, then drains the
// queue once so the new digests go out in the same pass. The fresh background
// context lets an in-flight batch finish its current item on shutdown instead
// of aborting mid-send.
func (s *Scheduler) runCadence(freq models.Frequency) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.passTimeout)
	defer cancel()

	queued, err := s.svc.ProcessFrequency(ctx, freq)
	if err != nil {
		s.log.Sugar().Errorw("Cadence pass failed", "frequency", freq, "err", err)
		return
	}

	result, err := s.svc.DrainQueue(ctx)
	if err != nil {
		s.log.Sugar().Errorw("Drain pass failed", "frequency", freq, "err", err)
		return
	}

	s.log.Sugar().Infow("Cadence pass complete",
		"frequency", freq, "queued", queued, "sent", result.Sent, "failed", result.Failed)
}

// biweeklyPass fires every Monday but only runs when the previous biweekly
// pass was at least 13 days ago, keeping an every-other-Monday cadence. The
// in-memory stamp is lost on restart, so a zero stamp is recovered from the
// registry's last_notification_sent columns before deciding.
func (s *Scheduler) biweeklyPass(context.Context) {
	now := time.Now().In(s.loc)
	last := s.lastBiweekly
	if last.IsZero() {
		last = s.recoverBiweeklyStamp()
	}

	if !shouldRunBiweekly(last, now) {
		s.log.Sugar().Infow("Skipping biweekly pass", "last_run", last)
		s.lastBiweekly = last
		return
	}
	s.lastBiweekly = now
	s.runCadence(models.FrequencyBiweekly)
}

func (s *Scheduler) recoverBiweeklyStamp() time.Time {
	ctx, cancel := context.WithTimeout(context.Background(), s.passTimeout)
	defer cancel()

	stamp, err := s.svc.LastCadenceActivity(ctx, models.FrequencyBiweekly)
	if err != nil {
		s.log.Sugar().Errorw("Failed to recover biweekly stamp", "err", err)
		return time.Time{}
	}
	return stamp
}

// shouldRunBiweekly keeps the Monday trigger on an every-other-week cadence.
// The 13-day threshold tolerates clock drift around the 14-day mark.
func shouldRunBiweekly(last, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= 13*24*time.Hour
}

func (s *Scheduler) cleanupPass(context.Context) {
	// TODO: purge sent/failed digests older than 90 days once a retention
	// policy is agreed with partners.
	s.log.Sugar().Info("Cleanup trigger fired; retention not yet enabled")
}
