package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ScheduleConfig returns the singleton schedule row. A default row is
// returned when none has been saved yet.
func (s *Store) ScheduleConfig(ctx context.Context) (*Schedule, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT enabled, run_at, timezone, last_run_at, next_run_at, updated_at
		FROM schedule_config WHERE id = 1`)

	var sc Schedule
	err := row.Scan(&sc.Enabled, &sc.RunAt, &sc.Timezone, &sc.LastRunAt,
		&sc.NextRunAt, &sc.UpdatedAt)
	if err == sql.ErrNoRows {
		return &Schedule{Enabled: true, RunAt: "06:00", Timezone: "Europe/London"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: schedule config: %w", err)
	}
	return &sc, nil
}

// SaveScheduleConfig upserts the singleton schedule row.
func (s *Store) SaveScheduleConfig(ctx context.Context, sc *Schedule) error {
	sc.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO schedule_config (id, enabled, run_at, timezone,
		last_run_at, next_run_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			run_at = excluded.run_at,
			timezone = excluded.timezone,
			last_run_at = excluded.last_run_at,
			next_run_at = excluded.next_run_at,
			updated_at = excluded.updated_at`,
		sc.Enabled, sc.RunAt, sc.Timezone, sc.LastRunAt, sc.NextRunAt, sc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: save schedule config: %w", err)
	}
	return nil
}

// TouchScheduleRun records a completed run and the computed next run time.
// It preserves the configured enabled/run_at/timezone fields.
func (s *Store) TouchScheduleRun(ctx context.Context, lastRun, nextRun time.Time) error {
	sc, err := s.ScheduleConfig(ctx)
	if err != nil {
		return err
	}
	last := lastRun.UnixMilli()
	next := nextRun.UnixMilli()
	sc.LastRunAt = &last
	sc.NextRunAt = &next
	return s.SaveScheduleConfig(ctx, sc)
}
