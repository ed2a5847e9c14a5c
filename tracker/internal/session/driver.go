package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/quellen/pricewatch/tracker/internal/adapter"
)

// Driver owns one live browsing context. The Session drives the state
// machine through it; tests substitute a fake.
//
// Driver embeds adapter.Page so a live driver can be handed straight to an
// extraction adapter.
type Driver interface {
	adapter.Page

	// Open creates the browsing context with the given identity applied.
	Open(ctx context.Context, id Identity) error
	// Navigate loads url, honouring timeout for navigation plus load.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitAny blocks until any of the selectors matches, first match wins,
	// bounded by timeout.
	WaitAny(ctx context.Context, selectors []string, timeout time.Duration) error
	// Close releases the browsing context. Must be idempotent.
	Close() error
}

// rodDriver is the Chrome-backed Driver.
type rodDriver struct {
	mgr  *Manager
	page *rod.Page
}

// NewDriver returns a Driver backed by the manager's browser.
func NewDriver(mgr *Manager) Driver {
	return &rodDriver{mgr: mgr}
}

func (d *rodDriver) Open(ctx context.Context, id Identity) error {
	b := d.mgr.Browser()
	if b == nil {
		return fmt.Errorf("session: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return fmt.Errorf("session: create page: %w", err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      id.UserAgent,
		AcceptLanguage: id.AcceptLanguage,
	}); err != nil {
		page.Close()
		return fmt.Errorf("session: set user agent: %w", err)
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: id.Timezone}).Call(page); err != nil {
		page.Close()
		return fmt.Errorf("session: set timezone: %w", err)
	}

	d.page = page
	return nil
}

func (d *rodDriver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := d.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("session: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("session: wait load %s: %w", url, err)
	}
	return nil
}

func (d *rodDriver) WaitAny(ctx context.Context, selectors []string, timeout time.Duration) error {
	if len(selectors) == 0 {
		return nil
	}
	race := d.page.Context(ctx).Timeout(timeout).Race()
	for _, sel := range selectors {
		race = race.Element(sel)
	}
	if _, err := race.Do(); err != nil {
		return fmt.Errorf("session: wait selectors %v: %w", selectors, err)
	}
	return nil
}

func (d *rodDriver) HTML() (string, error) {
	res, err := d.page.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("session: serialize DOM: %w", err)
	}
	return res.Value.Str(), nil
}

func (d *rodDriver) Click(selector string) error {
	el, err := d.page.Timeout(2 * time.Second).Element(selector)
	if err != nil {
		return fmt.Errorf("session: element %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("session: click %s: %w", selector, err)
	}
	return nil
}

func (d *rodDriver) Close() error {
	if d.page == nil {
		return nil
	}
	page := d.page
	d.page = nil
	return page.Close()
}
