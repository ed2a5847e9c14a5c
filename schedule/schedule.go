// Package schedule runs the daily scrape cycle at a configured local
// time. The schedule row lives in the store so operators can change the
// run time or pause the scheduler without a restart.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quellen/pricewatch/store"
)

// RunFunc executes one scrape cycle.
type RunFunc func(ctx context.Context) error

// Runner fires RunFunc once per day at the stored HH:MM local time.
type Runner struct {
	store  *store.Store
	run    RunFunc
	logger *slog.Logger
	now    func() time.Time

	// pollInterval bounds how stale a config change can go unnoticed
	// while waiting for the next firing.
	pollInterval time.Duration

	trigger chan struct{}
}

// New creates a Runner. A nil logger defaults to slog.Default.
func New(st *store.Store, run RunFunc, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:        st,
		run:          run,
		logger:       logger,
		now:          time.Now,
		pollInterval: time.Minute,
		trigger:      make(chan struct{}, 1),
	}
}

// TriggerNow requests an immediate cycle outside the schedule. Safe to
// call concurrently; coalesces when a trigger is already pending.
func (r *Runner) TriggerNow() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, firing the cycle at each scheduled
// time and on manual triggers. Config is re-read every wake-up so edits
// through the API take effect without a restart.
func (r *Runner) Run(ctx context.Context) error {
	timer := time.NewTimer(r.pollInterval)
	defer timer.Stop()

	for {
		wait, next, err := r.nextWait(ctx)
		if err != nil {
			r.logger.Warn("schedule: read config", "error", err)
			wait = r.pollInterval
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.trigger:
			r.fire(ctx, "manual")
		case <-timer.C:
			if next.IsZero() || r.now().Before(next) {
				// Woke up for a config re-read, not a firing.
				continue
			}
			r.fire(ctx, "scheduled")
		}
	}
}

// fire runs one cycle and stamps the schedule row.
func (r *Runner) fire(ctx context.Context, reason string) {
	r.logger.Info("schedule: cycle starting", "reason", reason)
	if err := r.run(ctx); err != nil {
		r.logger.Error("schedule: cycle failed", "reason", reason, "error", err)
	}

	sc, err := r.store.ScheduleConfig(ctx)
	if err != nil {
		r.logger.Warn("schedule: read config after run", "error", err)
		return
	}
	next, err := NextRun(r.now(), sc.RunAt, sc.Timezone)
	if err != nil {
		r.logger.Warn("schedule: compute next run", "error", err)
		return
	}
	if err := r.store.TouchScheduleRun(ctx, r.now(), next); err != nil {
		r.logger.Warn("schedule: record run", "error", err)
	}
}

// nextWait reads the schedule config and returns how long to sleep and
// the absolute firing time. Disabled schedules sleep one poll interval
// so re-enabling is picked up promptly.
func (r *Runner) nextWait(ctx context.Context) (time.Duration, time.Time, error) {
	sc, err := r.store.ScheduleConfig(ctx)
	if err != nil {
		return 0, time.Time{}, err
	}
	if !sc.Enabled {
		return r.pollInterval, time.Time{}, nil
	}

	next, err := NextRun(r.now(), sc.RunAt, sc.Timezone)
	if err != nil {
		return 0, time.Time{}, err
	}
	wait := next.Sub(r.now())
	if wait > r.pollInterval {
		wait = r.pollInterval
	}
	if wait < 0 {
		wait = 0
	}
	return wait, next, nil
}

// NextRun computes the next occurrence of the HH:MM wall-clock time in
// the named zone, strictly after now. DST transitions resolve the way
// time.Date does: skipped times land after the gap, repeated times take
// the first occurrence.
func NextRun(now time.Time, runAt, timezone string) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: load zone %q: %w", timezone, err)
	}

	var hh, mm int
	if _, err := fmt.Sscanf(runAt, "%d:%d", &hh, &mm); err != nil {
		return time.Time{}, fmt.Errorf("schedule: parse run time %q: %w", runAt, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return time.Time{}, fmt.Errorf("schedule: run time %q out of range", runAt)
	}

	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hh, mm, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
