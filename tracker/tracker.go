// Package tracker orchestrates price scrape cycles: it enumerates the
// mapped (product, retailer) tasks, runs fetch sessions under a bounded
// concurrency gate, routes each raw result through validation and anomaly
// checking, and persists observations and attempt logs.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quellen/pricewatch/store"
	"github.com/quellen/pricewatch/tracker/internal/adapter"
	"github.com/quellen/pricewatch/tracker/internal/anomaly"
	"github.com/quellen/pricewatch/tracker/internal/session"
	"github.com/quellen/pricewatch/tracker/internal/validate"
)

// Service is the scrape orchestrator.
type Service struct {
	store    *store.Store
	cfg      Config
	logger   *slog.Logger
	fetcher  Fetcher
	mgr      *session.Manager
	registry *adapter.Registry
	checker  *anomaly.Checker
	limits   validate.Limits
	now      func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithFetcher replaces the browser-backed fetcher (tests, dry runs).
func WithFetcher(f Fetcher) ServiceOption {
	return func(s *Service) { s.fetcher = f }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// New creates a tracker Service. Without WithFetcher, the service owns a
// browser manager configured from cfg.Browser; call Start before the
// first cycle and Close on shutdown.
func New(st *store.Store, cfg Config, opts ...ServiceOption) *Service {
	cfg.defaults()

	svc := &Service{
		store:    st,
		cfg:      cfg,
		logger:   slog.Default(),
		registry: adapter.NewRegistry(),
		limits: validate.Limits{
			PriceMin: cfg.PriceMin,
			PriceMax: cfg.PriceMax,
		},
		now: time.Now,
	}

	svc.checker = anomaly.New(
		func(ctx context.Context, productID, retailerID string, since time.Time) ([]float64, error) {
			hist, err := st.PriceHistory(ctx, productID, retailerID, since)
			if err != nil {
				return nil, err
			}
			prices := make([]float64, len(hist))
			for i, o := range hist {
				prices[i] = o.Price
			}
			return prices, nil
		},
		cfg.AnomalyWindow, cfg.AnomalyThreshold,
	)

	for _, opt := range opts {
		opt(svc)
	}

	if svc.fetcher == nil {
		headless := !cfg.Browser.Headful
		svc.mgr = session.NewManager(session.ManagerConfig{
			RemoteURL:       cfg.Browser.Remote,
			Headless:        &headless,
			RecycleInterval: cfg.Browser.RecycleInterval,
			Logger:          svc.logger,
		})
		svc.fetcher = NewSessionFetcher(svc.mgr, session.Config{
			NavTimeout:   cfg.NavTimeout,
			NavRetries:   cfg.NavRetries,
			SelectorWait: cfg.SelectorWait,
			ThinkTimeMin: cfg.ThinkTimeMin,
			ThinkTimeMax: cfg.ThinkTimeMax,
			Logger:       svc.logger,
		})
	}

	return svc
}

// Start launches the owned browser manager. No-op when a custom fetcher
// was injected.
func (s *Service) Start(ctx context.Context) error {
	if s.mgr == nil {
		return nil
	}
	return s.mgr.Start(ctx)
}

// Close releases the browser manager.
func (s *Service) Close() error {
	if s.mgr == nil {
		return nil
	}
	return s.mgr.Close()
}

// RunSummary aggregates one scrape cycle.
type RunSummary struct {
	StartedAt       int64   `json:"started_at"`
	TotalTasks      int     `json:"total_tasks"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	SuccessRatePct  float64 `json:"success_rate_pct"`
	DurationS       float64 `json:"duration_s"`
	AvgTimePerTaskS float64 `json:"avg_time_per_task_s"`
	Anomalies       int     `json:"anomalies"`
}

// task is one scheduled (product, retailer, URL) unit of work.
type task struct {
	product  *store.Product
	retailer *store.Retailer
	mapping  *store.Mapping
}

// taskResult is the explicit per-task outcome. Panics inside a task are
// recovered and converted into an error result; no exception control flow
// crosses the task boundary.
type taskResult struct {
	raw *adapter.RawObservation
	err error
}

// RunCycle executes one full scrape cycle and returns its summary. The
// only fatal condition is failing to enumerate the task list; individual
// task failures degrade the success rate but never abort the run.
func (s *Service) RunCycle(ctx context.Context) (*RunSummary, error) {
	start := s.now()

	tasks, err := s.buildTasks(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("tracker: cycle started",
		"tasks", len(tasks), "max_concurrent", s.cfg.MaxConcurrent)

	var (
		mu        sync.Mutex
		succeeded int
		failed    int
		anomalies int
	)

	gate := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for _, tk := range tasks {
		wg.Add(1)
		go func(tk task) {
			defer wg.Done()
			gate <- struct{}{}
			defer func() { <-gate }()

			taskStart := time.Now()
			res := s.runTask(ctx, tk)
			ok, anomalous := s.routeResult(ctx, tk, res, time.Since(taskStart))

			mu.Lock()
			if ok {
				succeeded++
			} else {
				failed++
			}
			if anomalous {
				anomalies++
			}
			mu.Unlock()
		}(tk)
	}
	wg.Wait()

	sum := &RunSummary{
		StartedAt:  start.UnixMilli(),
		TotalTasks: len(tasks),
		Successful: succeeded,
		Failed:     failed,
		DurationS:  time.Since(start).Seconds(),
		Anomalies:  anomalies,
	}
	if sum.TotalTasks > 0 {
		sum.SuccessRatePct = float64(sum.Successful) / float64(sum.TotalTasks) * 100
		sum.AvgTimePerTaskS = sum.DurationS / float64(sum.TotalTasks)
	}

	// Metric samples are audit-trail only; failures must not fail the run.
	if err := s.store.RecordMetric(ctx, "scrape_cycle_success_rate", sum.SuccessRatePct); err != nil {
		s.logger.Warn("tracker: record metric", "error", err)
	}
	if err := s.store.RecordMetric(ctx, "scrape_cycle_duration_ms", sum.DurationS*1000); err != nil {
		s.logger.Warn("tracker: record metric", "error", err)
	}

	s.logger.Info("tracker: cycle finished",
		"total", sum.TotalTasks, "successful", sum.Successful,
		"failed", sum.Failed, "success_rate_pct", sum.SuccessRatePct,
		"duration_s", sum.DurationS, "anomalies", sum.Anomalies)

	return sum, nil
}

// buildTasks enumerates active (product, retailer) pairs with an active
// mapping. No URL, no task.
func (s *Service) buildTasks(ctx context.Context) ([]task, error) {
	products, err := s.store.ActiveProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load products: %v", ErrCatalogUnavailable, err)
	}
	retailers, err := s.store.ActiveRetailers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load retailers: %v", ErrCatalogUnavailable, err)
	}
	mappings, err := s.store.ActiveMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load mappings: %v", ErrCatalogUnavailable, err)
	}

	byPair := make(map[string]*store.Mapping, len(mappings))
	for _, m := range mappings {
		byPair[store.PairKey(m.ProductID, m.RetailerID)] = m
	}

	var tasks []task
	for _, p := range products {
		for _, r := range retailers {
			m, ok := byPair[store.PairKey(p.ID, r.ID)]
			if !ok {
				continue
			}
			tasks = append(tasks, task{product: p, retailer: r, mapping: m})
		}
	}
	return tasks, nil
}

// runTask fetches one task. A panic anywhere below is converted into an
// error result so sibling tasks are never affected.
func (s *Service) runTask(ctx context.Context, tk task) (res taskResult) {
	defer func() {
		if r := recover(); r != nil {
			res = taskResult{err: fmt.Errorf("tracker: task panic: %v", r)}
		}
	}()

	raw, err := s.fetcher.Fetch(ctx, s.sessionTask(tk))
	return taskResult{raw: raw, err: err}
}

// sessionTask assembles the fetch task from retailer config plus
// per-mapping overrides. Malformed selector JSON degrades to defaults.
func (s *Service) sessionTask(tk task) session.Task {
	sel, err := adapter.ParseSelectors(tk.retailer.SelectorsJSON)
	if err != nil {
		s.logger.Warn("tracker: bad retailer selectors",
			"retailer", tk.retailer.Name, "error", err)
	}
	over, err := adapter.ParseSelectors(tk.mapping.SelectorOverridesJSON)
	if err != nil {
		s.logger.Warn("tracker: bad mapping selector overrides",
			"product", tk.product.ID, "retailer", tk.retailer.Name, "error", err)
	}

	var waitSelectors []string
	if raw := tk.retailer.WaitSelectorsJSON; raw != "" && raw != "[]" {
		if err := json.Unmarshal([]byte(raw), &waitSelectors); err != nil {
			s.logger.Warn("tracker: bad wait selectors",
				"retailer", tk.retailer.Name, "error", err)
		}
	}

	return session.Task{
		URL:           tk.mapping.URL,
		Adapter:       s.registry.Lookup(tk.retailer.Adapter),
		Selectors:     sel.Merge(over),
		WaitSelectors: waitSelectors,
	}
}

// routeResult validates, persists and logs one task outcome. Returns
// whether the task succeeded and whether the observation was anomalous.
func (s *Service) routeResult(ctx context.Context, tk task, res taskResult, elapsed time.Duration) (ok, anomalous bool) {
	attempt := &store.Attempt{
		ProductID:  tk.product.ID,
		RetailerID: tk.retailer.ID,
		DurationMs: elapsed.Milliseconds(),
	}

	if res.err != nil {
		attempt.Status = store.StatusFailed
		attempt.ErrorMessage = res.err.Error()
		s.appendAttempt(ctx, attempt)
		s.logger.Warn("tracker: task failed",
			"product", tk.product.Name, "retailer", tk.retailer.Name,
			"error", res.err)
		return false, false
	}

	attempt.UserAgent = res.raw.UserAgent

	v := validate.Observation(res.raw, s.limits)
	if !v.Valid {
		attempt.Status = store.StatusFailed
		attempt.ErrorMessage = "validation: " + strings.Join(v.Violations, "; ")
		s.appendAttempt(ctx, attempt)
		s.logger.Warn("tracker: validation failed",
			"product", tk.product.Name, "retailer", tk.retailer.Name,
			"violations", v.Violations)
		return false, false
	}

	// Anomaly check is advisory: it annotates the observation and the log
	// but never blocks persistence. Its errors are logged and ignored.
	var anomalyRes *anomaly.Result
	if ar, err := s.checker.Check(ctx, tk.product.ID, tk.retailer.ID, v.Record.Price); err != nil {
		s.logger.Warn("tracker: anomaly check failed",
			"product", tk.product.Name, "retailer", tk.retailer.Name, "error", err)
	} else if ar.Anomaly {
		anomalyRes = ar
		s.logger.Warn("tracker: price anomaly",
			"product", tk.product.Name, "retailer", tk.retailer.Name,
			"kind", ar.Kind, "percent_change", ar.PercentChange,
			"price", v.Record.Price, "mean", ar.Mean)
	}

	obs := &store.Observation{
		ProductID:        tk.product.ID,
		RetailerID:       tk.retailer.ID,
		Price:            v.Record.Price,
		InStock:          v.Record.InStock,
		AvailabilityText: v.Record.AvailabilityText,
		Title:            v.Record.Title,
		RawJSON:          rawPayload(res.raw, anomalyRes),
	}
	if _, err := s.store.AppendObservation(ctx, obs); err != nil {
		attempt.Status = store.StatusFailed
		attempt.ErrorMessage = err.Error()
		s.appendAttempt(ctx, attempt)
		return false, false
	}

	attempt.Status = store.StatusSuccess
	s.appendAttempt(ctx, attempt)
	return true, anomalyRes != nil
}

func (s *Service) appendAttempt(ctx context.Context, a *store.Attempt) {
	if _, err := s.store.AppendAttempt(ctx, a); err != nil {
		s.logger.Error("tracker: append attempt", "error", err)
	}
}

// rawPayload serializes the raw observation plus any anomaly annotation
// for the observation's audit column.
func rawPayload(raw *adapter.RawObservation, ar *anomaly.Result) string {
	payload := struct {
		Raw     *adapter.RawObservation `json:"raw"`
		Anomaly *anomaly.Result         `json:"anomaly,omitempty"`
	}{raw, ar}
	b, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}
