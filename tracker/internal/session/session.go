package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/quellen/pricewatch/tracker/internal/adapter"
)

// State is the session lifecycle position. Closed is terminal and always
// reached, success or failure.
type State int

const (
	StateUninitialized State = iota
	StateContextReady
	StateNavigating
	StatePageStable
	StateExtracted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateContextReady:
		return "context_ready"
	case StateNavigating:
		return "navigating"
	case StatePageStable:
		return "page_stable"
	case StateExtracted:
		return "extracted"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Task describes one fetch: the target URL, the retailer's adapter and
// selector configuration, and the selectors whose presence marks the page
// as settled.
type Task struct {
	URL           string
	Adapter       adapter.Adapter
	Selectors     adapter.Selectors
	WaitSelectors []string
}

// Config holds the session policy knobs.
type Config struct {
	// NavTimeout bounds one navigation attempt. Default: 30s.
	NavTimeout time.Duration
	// NavRetries is the navigation attempt ceiling. Default: 3.
	NavRetries int
	// SelectorWait bounds the wait for the page's settle selectors.
	// Default: 10s.
	SelectorWait time.Duration
	// ThinkTimeMin/Max bound the randomized delay between page load and
	// extraction. Defaults: 2s and 8s.
	ThinkTimeMin time.Duration
	ThinkTimeMax time.Duration

	Logger *slog.Logger
	// Rand seeds identity, jitter and think-time draws. Default: a fresh
	// time-seeded source.
	Rand *rand.Rand
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.NavRetries <= 0 {
		c.NavRetries = 3
	}
	if c.SelectorWait <= 0 {
		c.SelectorWait = 10 * time.Second
	}
	if c.ThinkTimeMin <= 0 {
		c.ThinkTimeMin = 2 * time.Second
	}
	if c.ThinkTimeMax <= c.ThinkTimeMin {
		c.ThinkTimeMax = 8 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}

// Session drives one task through its lifecycle on one browsing context.
// Not safe for concurrent use; one Session per task.
type Session struct {
	drv      Driver
	cfg      Config
	state    State
	attempts int
	identity Identity

	// sleep is swapped out by tests to skip real delays.
	sleep func(context.Context, time.Duration) error
}

// New builds a Session over the given driver.
func New(drv Driver, cfg Config) *Session {
	cfg.defaults()
	return &Session{
		drv:   drv,
		cfg:   cfg,
		sleep: sleepCtx,
	}
}

// State returns the current lifecycle position.
func (s *Session) State() State { return s.state }

// NavAttempts returns how many navigation attempts ran.
func (s *Session) NavAttempts() int { return s.attempts }

// Identity returns the randomized identity this session fetched with.
func (s *Session) Identity() Identity { return s.identity }

// Fetch runs the full lifecycle for one task. The browsing context is
// released on every exit path, including panics out of extraction.
func (s *Session) Fetch(ctx context.Context, task Task) (raw *adapter.RawObservation, err error) {
	start := time.Now()
	defer s.close()

	s.identity = RandomIdentity(s.cfg.Rand)
	if err := s.drv.Open(ctx, s.identity); err != nil {
		return nil, fmt.Errorf("session: open context: %w", err)
	}
	s.state = StateContextReady

	if err := s.navigate(ctx, task.URL); err != nil {
		return nil, err
	}

	if len(task.WaitSelectors) > 0 {
		// A missed settle selector is not fatal: the adapter may still
		// find content, and a true miss surfaces as a validation failure.
		if err := s.drv.WaitAny(ctx, task.WaitSelectors, s.cfg.SelectorWait); err != nil {
			s.cfg.Logger.Debug("session: settle selectors missed",
				"url", task.URL, "error", err)
		}
	}
	s.state = StatePageStable

	if err := s.sleep(ctx, s.thinkTime()); err != nil {
		return nil, err
	}

	raw, err = task.Adapter.Extract(ctx, s.drv, task.Selectors)
	if err != nil {
		return nil, fmt.Errorf("session: extract: %w", err)
	}
	s.state = StateExtracted

	raw.URL = task.URL
	raw.UserAgent = s.identity.UserAgent
	raw.ResponseTime = time.Since(start).Seconds()
	raw.ObservedAt = time.Now().UnixMilli()
	return raw, nil
}

// navigate retries transient failures up to the ceiling. Attempt n backs
// off 2^n seconds plus 1-3s of jitter before the next try.
func (s *Session) navigate(ctx context.Context, url string) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.NavRetries; attempt++ {
		s.state = StateNavigating
		s.attempts = attempt

		lastErr = s.drv.Navigate(ctx, url, s.cfg.NavTimeout)
		if lastErr == nil {
			return nil
		}
		s.cfg.Logger.Debug("session: navigation attempt failed",
			"url", url, "attempt", attempt, "error", lastErr)

		if attempt < s.cfg.NavRetries {
			backoff := time.Duration(1<<uint(attempt))*time.Second + s.jitter()
			if err := s.sleep(ctx, backoff); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("session: navigate %s after %d attempts: %w",
		url, s.cfg.NavRetries, lastErr)
}

func (s *Session) thinkTime() time.Duration {
	span := int64(s.cfg.ThinkTimeMax - s.cfg.ThinkTimeMin)
	return s.cfg.ThinkTimeMin + time.Duration(s.cfg.Rand.Int63n(span+1))
}

func (s *Session) jitter() time.Duration {
	return time.Duration(float64(time.Second) * (1 + 2*s.cfg.Rand.Float64()))
}

// close releases the browsing context. Runs at most once; Closed is
// terminal.
func (s *Session) close() {
	if s.state == StateClosed {
		return
	}
	if err := s.drv.Close(); err != nil {
		s.cfg.Logger.Warn("session: close context", "error", err)
	}
	s.state = StateClosed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
