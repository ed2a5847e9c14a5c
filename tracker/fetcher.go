package tracker

import (
	"context"

	"github.com/quellen/pricewatch/tracker/internal/adapter"
	"github.com/quellen/pricewatch/tracker/internal/session"
)

// Fetcher turns one task into a raw observation. The default is a
// browser-backed session per task; tests inject fakes.
type Fetcher interface {
	Fetch(ctx context.Context, task session.Task) (*adapter.RawObservation, error)
}

// sessionFetcher opens one fresh browser session per task against the
// shared Chrome process.
type sessionFetcher struct {
	mgr *session.Manager
	cfg session.Config
}

// NewSessionFetcher returns the production Fetcher. The manager must have
// been started.
func NewSessionFetcher(mgr *session.Manager, cfg session.Config) Fetcher {
	return &sessionFetcher{mgr: mgr, cfg: cfg}
}

func (f *sessionFetcher) Fetch(ctx context.Context, task session.Task) (*adapter.RawObservation, error) {
	sess := session.New(session.NewDriver(f.mgr), f.cfg)
	return sess.Fetch(ctx, task)
}
