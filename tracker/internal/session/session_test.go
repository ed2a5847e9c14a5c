package session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/quellen/pricewatch/tracker/internal/adapter"
)

type fakeDriver struct {
	openErr    error
	navErrs    []error // error per attempt, nil past the end
	navCalls   int
	waitErr    error
	waitCalls  int
	html       string
	closeCount int
}

func (f *fakeDriver) Open(ctx context.Context, id Identity) error { return f.openErr }

func (f *fakeDriver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	f.navCalls++
	if f.navCalls <= len(f.navErrs) {
		return f.navErrs[f.navCalls-1]
	}
	return nil
}

func (f *fakeDriver) WaitAny(ctx context.Context, selectors []string, timeout time.Duration) error {
	f.waitCalls++
	return f.waitErr
}

func (f *fakeDriver) HTML() (string, error) { return f.html, nil }

func (f *fakeDriver) Click(selector string) error { return errors.New("no such element") }

func (f *fakeDriver) Close() error {
	f.closeCount++
	return nil
}

type panicAdapter struct{}

func (panicAdapter) Name() string { return "panic" }
func (panicAdapter) Extract(ctx context.Context, page adapter.Page, sel adapter.Selectors) (*adapter.RawObservation, error) {
	panic("extraction exploded")
}

func testConfig() Config {
	return Config{
		Logger: slog.Default(),
		Rand:   rand.New(rand.NewSource(1)),
	}
}

// newTestSession builds a session whose sleeps are recorded, not slept.
func newTestSession(drv Driver, cfg Config) (*Session, *[]time.Duration) {
	s := New(drv, cfg)
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func TestFetchHappyPath(t *testing.T) {
	// WHAT: A clean fetch walks the lifecycle to Extracted, annotates the
	// raw observation, and closes the context exactly once.
	// WHY: This is the contract every downstream consumer relies on.
	drv := &fakeDriver{html: `<html><body>
		<h1>Product name</h1><span class="price">£3.00</span>
	</body></html>`}
	s, slept := newTestSession(drv, testConfig())

	raw, err := s.Fetch(context.Background(), Task{
		URL:           "https://example.com/p/1",
		Adapter:       &adapter.Generic{},
		WaitSelectors: []string{".price"},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if raw.URL != "https://example.com/p/1" {
		t.Errorf("url = %q", raw.URL)
	}
	if raw.UserAgent == "" {
		t.Error("user agent not stamped")
	}
	if raw.ObservedAt == 0 {
		t.Error("observed_at not stamped")
	}
	if raw.Price == nil || *raw.Price != 3.00 {
		t.Errorf("price = %v", raw.Price)
	}

	if drv.navCalls != 1 {
		t.Errorf("nav calls = %d, want 1", drv.navCalls)
	}
	if drv.waitCalls != 1 {
		t.Errorf("wait calls = %d, want 1", drv.waitCalls)
	}
	if drv.closeCount != 1 {
		t.Errorf("close count = %d, want 1", drv.closeCount)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
	// Exactly one sleep: the think-time delay.
	if len(*slept) != 1 {
		t.Fatalf("sleeps = %v, want 1 think-time delay", *slept)
	}
	if d := (*slept)[0]; d < 2*time.Second || d > 8*time.Second {
		t.Errorf("think-time = %v, want within [2s, 8s]", d)
	}
}

func TestNavigationRetryBackoff(t *testing.T) {
	// WHAT: Two transient failures back off 2^1 and 2^2 seconds plus 1-3s
	// jitter, then the third attempt succeeds.
	// WHY: The retry ceiling and backoff shape are the navigation contract.
	navErr := errors.New("net::ERR_TIMED_OUT")
	drv := &fakeDriver{
		navErrs: []error{navErr, navErr},
		html:    `<html><body><h1>ok</h1><span class="price">£1.00</span></body></html>`,
	}
	s, slept := newTestSession(drv, testConfig())

	_, err := s.Fetch(context.Background(), Task{
		URL:     "https://example.com/p/1",
		Adapter: &adapter.Generic{},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if s.NavAttempts() != 3 {
		t.Errorf("attempts = %d, want 3", s.NavAttempts())
	}

	// Two backoffs then one think-time.
	if len(*slept) != 3 {
		t.Fatalf("sleeps = %v, want 3", *slept)
	}
	for i, base := range []time.Duration{2 * time.Second, 4 * time.Second} {
		d := (*slept)[i]
		if d < base+1*time.Second || d > base+3*time.Second {
			t.Errorf("backoff %d = %v, want within [%v, %v]",
				i+1, d, base+time.Second, base+3*time.Second)
		}
	}
}

func TestNavigationExhaustsRetries(t *testing.T) {
	// WHAT: Three failed attempts yield an error wrapping the last cause,
	// and the context still closes exactly once.
	// WHY: Navigation failure is demoted to a failed attempt, never a leak.
	navErr := errors.New("net::ERR_CONNECTION_REFUSED")
	drv := &fakeDriver{navErrs: []error{navErr, navErr, navErr}}
	s, _ := newTestSession(drv, testConfig())

	_, err := s.Fetch(context.Background(), Task{
		URL:     "https://example.com/p/1",
		Adapter: &adapter.Generic{},
	})
	if !errors.Is(err, navErr) {
		t.Fatalf("err = %v, want wrapped nav error", err)
	}
	if drv.navCalls != 3 {
		t.Errorf("nav calls = %d, want 3", drv.navCalls)
	}
	if drv.closeCount != 1 {
		t.Errorf("close count = %d, want 1", drv.closeCount)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
}

func TestOpenFailureStillCloses(t *testing.T) {
	// WHAT: A context that fails to open still reaches Closed once.
	// WHY: Resource release holds on every exit path.
	drv := &fakeDriver{openErr: errors.New("browser gone")}
	s, _ := newTestSession(drv, testConfig())

	_, err := s.Fetch(context.Background(), Task{URL: "https://example.com"})
	if err == nil {
		t.Fatal("expected error")
	}
	if drv.closeCount != 1 {
		t.Errorf("close count = %d, want 1", drv.closeCount)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %v", s.State())
	}
}

func TestPanicInExtractionStillCloses(t *testing.T) {
	// WHAT: A panic out of the adapter propagates, but the browsing
	// context closes exactly once first.
	// WHY: The orchestrator recovers panics at the task boundary; the
	// session must not leak contexts under them.
	drv := &fakeDriver{}
	s, _ := newTestSession(drv, testConfig())

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		s.Fetch(context.Background(), Task{
			URL:     "https://example.com/p/1",
			Adapter: panicAdapter{},
		})
	}()

	if drv.closeCount != 1 {
		t.Errorf("close count = %d, want 1", drv.closeCount)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
}

func TestMissedSettleSelectorsNotFatal(t *testing.T) {
	// WHAT: A timeout on the settle selectors does not fail the fetch.
	// WHY: The adapter may still find content; true misses fail validation.
	drv := &fakeDriver{
		waitErr: errors.New("timeout"),
		html:    `<html><body><h1>ok</h1><span class="price">£1.50</span></body></html>`,
	}
	s, _ := newTestSession(drv, testConfig())

	raw, err := s.Fetch(context.Background(), Task{
		URL:           "https://example.com/p/1",
		Adapter:       &adapter.Generic{},
		WaitSelectors: []string{".price"},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if raw.Price == nil || *raw.Price != 1.50 {
		t.Errorf("price = %v", raw.Price)
	}
}

func TestIdentityRandomization(t *testing.T) {
	// WHAT: Identities are drawn from the pools with coherent
	// language/timezone pairs.
	// WHY: Sessions must not share one static fingerprint.
	rnd := rand.New(rand.NewSource(7))
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := RandomIdentity(rnd)
		if id.UserAgent == "" || id.AcceptLanguage == "" || id.Timezone == "" {
			t.Fatalf("incomplete identity: %+v", id)
		}
		seen[id.UserAgent] = true
	}
	if len(seen) < 2 {
		t.Error("user agent never varied across 50 draws")
	}
}

func TestConfigDefaults(t *testing.T) {
	// WHAT: Zero config fills in the documented defaults.
	// WHY: Callers rely on the stated policy knob defaults.
	var c Config
	c.defaults()
	if c.NavTimeout != 30*time.Second {
		t.Errorf("nav timeout = %v", c.NavTimeout)
	}
	if c.NavRetries != 3 {
		t.Errorf("nav retries = %d", c.NavRetries)
	}
	if c.SelectorWait != 10*time.Second {
		t.Errorf("selector wait = %v", c.SelectorWait)
	}
	if c.ThinkTimeMin != 2*time.Second || c.ThinkTimeMax != 8*time.Second {
		t.Errorf("think time = [%v, %v]", c.ThinkTimeMin, c.ThinkTimeMax)
	}
}
