package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// NextFunc computes the next fire time strictly after now.
type NextFunc func(now time.Time) time.Time

// RecurringTrigger runs a callback on a wall-clock schedule. Each trigger is
// independently startable and stoppable, and tests can call Fire directly
// instead of waiting on the clock.
type RecurringTrigger struct {
	name   string
	log    *zap.Logger
	next   NextFunc
	fn     func(context.Context)
	cancel context.CancelFunc
}

func NewTrigger(name string, log *zap.Logger, next NextFunc, fn func(context.Context)) *RecurringTrigger {
	return &RecurringTrigger{name: name, log: log, next: next, fn: fn}
}

func (t *RecurringTrigger) Name() string { return t.name }

func (t *RecurringTrigger) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.run(ctx)
}

func (t *RecurringTrigger) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *RecurringTrigger) run(ctx context.Context) {
	for {
		now := time.Now()
		fireAt := t.next(now)
		timer := time.NewTimer(fireAt.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			t.log.Sugar().Infof("Trigger %s stopped", t.name)
			return

		case <-timer.C:
			t.Fire(ctx)
		}
	}
}

// Fire runs the trigger body once. Panics and errors inside the body are the
// body's problem; the trigger stays scheduled for its next tick regardless.
func (t *RecurringTrigger) Fire(ctx context.Context) {
	t.log.Sugar().Infof("Trigger %s firing", t.name)
	t.fn(ctx)
}

// Every fires at a fixed interval, for triggers with no wall-clock anchor.
func Every(interval time.Duration) NextFunc {
	return func(now time.Time) time.Time {
		return now.Add(interval)
	}
}

// DailyAt fires once a day at the given civil time in loc.
func DailyAt(hour, min int, loc *time.Location) NextFunc {
	return func(now time.Time) time.Time {
		now = now.In(loc)
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, loc)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}

// WeeklyAt fires once a week on the given weekday at the given civil time.
func WeeklyAt(weekday time.Weekday, hour, min int, loc *time.Location) NextFunc {
	return func(now time.Time) time.Time {
		now = now.In(loc)
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, loc)
		for next.Weekday() != weekday || !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}

// MonthlyAt fires on the given day of each month at the given civil time.
func MonthlyAt(day, hour, min int, loc *time.Location) NextFunc {
	return func(now time.Time) time.Time {
		now = now.In(loc)
		next := time.Date(now.Year(), now.Month(), day, hour, min, 0, 0, loc)
		if !next.After(now) {
			next = time.Date(now.Year(), now.Month()+1, day, hour, min, 0, 0, loc)
		}
		return next
	}
}
