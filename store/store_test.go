package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quellen/pricewatch/dbopen"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(context.Background(), db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return New(db)
}

// seedPair inserts one active product, retailer and mapping and returns
// their IDs.
func seedPair(t *testing.T, s *Store) (productID, retailerID string) {
	t.Helper()
	ctx := context.Background()

	p := &Product{Brand: "Nurofen", Name: "Ibuprofen", PackSize: "16", Active: true}
	if err := s.InsertProduct(ctx, p); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	r := &Retailer{Name: "tesco", BaseURL: "https://www.tesco.com", Adapter: "tesco", Active: true}
	if err := s.InsertRetailer(ctx, r); err != nil {
		t.Fatalf("insert retailer: %v", err)
	}
	m := &Mapping{ProductID: p.ID, RetailerID: r.ID, URL: "https://www.tesco.com/p/1", Active: true}
	if err := s.UpsertMapping(ctx, m); err != nil {
		t.Fatalf("upsert mapping: %v", err)
	}
	return p.ID, r.ID
}

func TestApplySchema(t *testing.T) {
	// WHAT: Verify schema creates all tables without error.
	// WHY: Schema is the foundation — if it fails, nothing works.
	s := openTestStore(t)
	tables := []string{"products", "retailers", "url_mappings",
		"price_observations", "attempt_log", "metric_samples", "schedule_config"}
	for _, table := range tables {
		var name string
		err := s.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestInsertAndGetProduct(t *testing.T) {
	// WHAT: Insert a product and retrieve it by ID.
	// WHY: Catalog CRUD must work for the pipeline to enumerate tasks.
	s := openTestStore(t)
	ctx := context.Background()

	p := &Product{Brand: "Nurofen", Name: "Ibuprofen", PackSize: "16",
		Formulation: "tablet", Category: "pain-relief", Active: true}
	if err := s.InsertProduct(ctx, p); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Brand != "Nurofen" || got.Name != "Ibuprofen" || got.PackSize != "16" {
		t.Errorf("identity mismatch: %+v", got)
	}
	if !got.Active {
		t.Error("expected active")
	}
	if got.CreatedAt == 0 || got.UpdatedAt == 0 {
		t.Error("timestamps not filled")
	}
}

func TestProductIdentityUnique(t *testing.T) {
	// WHAT: Re-inserting the same brand+name+pack_size fails.
	// WHY: Product identity is brand + name + pack size.
	s := openTestStore(t)
	ctx := context.Background()

	p1 := &Product{Brand: "b", Name: "n", PackSize: "10", Active: true}
	if err := s.InsertProduct(ctx, p1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p2 := &Product{Brand: "b", Name: "n", PackSize: "10", Active: true}
	if err := s.InsertProduct(ctx, p2); err == nil {
		t.Fatal("expected unique violation")
	}
}

func TestActiveProductsExcludesInactive(t *testing.T) {
	// WHAT: ActiveProducts returns only active rows after soft deactivation.
	// WHY: Deactivated products must drop out of scheduling without deletion.
	s := openTestStore(t)
	ctx := context.Background()

	p1 := &Product{Brand: "a", Name: "one", PackSize: "1", Active: true}
	p2 := &Product{Brand: "b", Name: "two", PackSize: "2", Active: true}
	s.InsertProduct(ctx, p1)
	s.InsertProduct(ctx, p2)

	if err := s.SetProductActive(ctx, p2.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	active, err := s.ActiveProducts(ctx)
	if err != nil {
		t.Fatalf("active products: %v", err)
	}
	if len(active) != 1 || active[0].ID != p1.ID {
		t.Fatalf("expected only p1 active, got %d rows", len(active))
	}

	// Row still present, just inactive.
	got, err := s.GetProduct(ctx, p2.ID)
	if err != nil {
		t.Fatalf("get deactivated: %v", err)
	}
	if got.Active {
		t.Error("expected inactive")
	}
}

func TestSetActiveNotFound(t *testing.T) {
	// WHAT: Deactivating a missing ID returns ErrNotFound.
	// WHY: Silent no-ops hide operator typos.
	s := openTestStore(t)
	err := s.SetProductActive(context.Background(), "missing", false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertMappingUpdatesInPlace(t *testing.T) {
	// WHAT: Re-adding a mapping for the same pair updates the URL in place.
	// WHY: At most one mapping may exist per (product, retailer) pair.
	s := openTestStore(t)
	ctx := context.Background()
	productID, retailerID := seedPair(t, s)

	m := &Mapping{ProductID: productID, RetailerID: retailerID,
		URL: "https://www.tesco.com/p/2", Active: true}
	if err := s.UpsertMapping(ctx, m); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var count int
	s.DB.QueryRow(`SELECT COUNT(*) FROM url_mappings`).Scan(&count)
	if count != 1 {
		t.Fatalf("mapping count = %d, want 1", count)
	}

	got, err := s.GetMapping(ctx, productID, retailerID)
	if err != nil {
		t.Fatalf("get mapping: %v", err)
	}
	if got.URL != "https://www.tesco.com/p/2" {
		t.Errorf("url = %q, not updated", got.URL)
	}
}

func TestActiveMappings(t *testing.T) {
	// WHAT: ActiveMappings excludes soft-deactivated mappings.
	// WHY: Deactivated mappings must not produce tasks.
	s := openTestStore(t)
	ctx := context.Background()
	productID, retailerID := seedPair(t, s)

	if err := s.SetMappingActive(ctx, productID, retailerID, false); err != nil {
		t.Fatalf("deactivate mapping: %v", err)
	}
	mappings, err := s.ActiveMappings(ctx)
	if err != nil {
		t.Fatalf("active mappings: %v", err)
	}
	if len(mappings) != 0 {
		t.Fatalf("expected 0 active mappings, got %d", len(mappings))
	}
}

func TestAppendObservationIsAppendOnly(t *testing.T) {
	// WHAT: Appending the same observation content twice yields two rows.
	// WHY: Observations are an append-only audit trail; no dedup.
	s := openTestStore(t)
	ctx := context.Background()
	productID, retailerID := seedPair(t, s)

	for i := 0; i < 2; i++ {
		_, err := s.AppendObservation(ctx, &Observation{
			ProductID: productID, RetailerID: retailerID,
			Price: 4.99, InStock: true, Title: "Ibuprofen 16 pack",
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	var count int
	s.DB.QueryRow(`SELECT COUNT(*) FROM price_observations`).Scan(&count)
	if count != 2 {
		t.Fatalf("observation count = %d, want 2", count)
	}
}

func TestObservationDefaults(t *testing.T) {
	// WHAT: Currency defaults to GBP and timestamps are filled in.
	// WHY: Callers persist validated records without wire boilerplate.
	s := openTestStore(t)
	ctx := context.Background()
	productID, retailerID := seedPair(t, s)

	id, err := s.AppendObservation(ctx, &Observation{
		ProductID: productID, RetailerID: retailerID, Price: 2.50,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	hist, err := s.PriceHistory(ctx, productID, retailerID, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].ID != id {
		t.Fatalf("expected the appended observation back")
	}
	if hist[0].Currency != "GBP" {
		t.Errorf("currency = %q, want GBP", hist[0].Currency)
	}
	if hist[0].ObservedAt == 0 {
		t.Error("observed_at not filled")
	}
}

func TestPriceHistoryWindow(t *testing.T) {
	// WHAT: PriceHistory honours the since bound and orders recent-first.
	// WHY: The anomaly checker reads a trailing window only.
	s := openTestStore(t)
	ctx := context.Background()
	productID, retailerID := seedPair(t, s)

	now := time.Now()
	old := now.Add(-10 * 24 * time.Hour)
	s.AppendObservation(ctx, &Observation{ProductID: productID, RetailerID: retailerID,
		Price: 1.00, ObservedAt: old.UnixMilli()})
	s.AppendObservation(ctx, &Observation{ProductID: productID, RetailerID: retailerID,
		Price: 2.00, ObservedAt: now.Add(-time.Hour).UnixMilli()})
	s.AppendObservation(ctx, &Observation{ProductID: productID, RetailerID: retailerID,
		Price: 3.00, ObservedAt: now.UnixMilli()})

	hist, err := s.PriceHistory(ctx, productID, retailerID, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2", len(hist))
	}
	if hist[0].Price != 3.00 {
		t.Errorf("expected most recent first, got %.2f", hist[0].Price)
	}
}

func TestLatestPrices(t *testing.T) {
	// WHAT: LatestPrices returns one row per pair, the most recent.
	// WHY: "Current price" is defined as the latest observation per pair.
	s := openTestStore(t)
	ctx := context.Background()
	productID, retailerID := seedPair(t, s)

	base := time.Now().Add(-time.Hour)
	s.AppendObservation(ctx, &Observation{ProductID: productID, RetailerID: retailerID,
		Price: 5.00, ObservedAt: base.UnixMilli()})
	s.AppendObservation(ctx, &Observation{ProductID: productID, RetailerID: retailerID,
		Price: 6.50, ObservedAt: base.Add(time.Minute).UnixMilli()})

	latest, err := s.LatestPrices(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 1 {
		t.Fatalf("latest len = %d, want 1", len(latest))
	}
	if latest[0].Price != 6.50 {
		t.Errorf("price = %.2f, want 6.50", latest[0].Price)
	}
}

func TestSameMillisecondObservationsOrderByID(t *testing.T) {
	// WHAT: Observations sharing an observed_at millisecond still have a
	// well-defined newest: the last-appended row, via the time-sortable ID.
	// WHY: A cycle can append several readings within one millisecond, and
	// "the most recent observation" must not be an arbitrary row.
	s := openTestStore(t)
	ctx := context.Background()
	productID, retailerID := seedPair(t, s)

	at := time.Now().UnixMilli()
	for _, price := range []float64{5.00, 6.00, 7.00} {
		if _, err := s.AppendObservation(ctx, &Observation{
			ProductID: productID, RetailerID: retailerID,
			Price: price, ObservedAt: at,
		}); err != nil {
			t.Fatalf("append observation: %v", err)
		}
	}

	hist, err := s.PriceHistory(ctx, productID, retailerID, time.Time{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 || hist[0].Price != 7.00 {
		t.Errorf("history head = %.2f, want last-appended 7.00", hist[0].Price)
	}

	latest, err := s.LatestPrices(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 1 || latest[0].Price != 7.00 {
		t.Errorf("latest = %.2f, want last-appended 7.00", latest[0].Price)
	}
}

func TestFreshPairs(t *testing.T) {
	// WHAT: FreshPairs reports pairs with an observation inside the window.
	// WHY: Freshness scoring distinguishes fresh from stale pairs.
	s := openTestStore(t)
	ctx := context.Background()
	productID, retailerID := seedPair(t, s)

	stale := time.Now().Add(-72 * time.Hour)
	s.AppendObservation(ctx, &Observation{ProductID: productID, RetailerID: retailerID,
		Price: 1.99, ObservedAt: stale.UnixMilli()})

	fresh, err := s.FreshPairs(ctx, time.Now().Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("fresh pairs: %v", err)
	}
	if fresh[PairKey(productID, retailerID)] {
		t.Error("pair with only a 72h-old observation reported fresh")
	}

	s.AppendObservation(ctx, &Observation{ProductID: productID, RetailerID: retailerID,
		Price: 1.99})
	fresh, err = s.FreshPairs(ctx, time.Now().Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("fresh pairs: %v", err)
	}
	if !fresh[PairKey(productID, retailerID)] {
		t.Error("pair with a new observation not reported fresh")
	}
}

func TestAppendAttemptNullPair(t *testing.T) {
	// WHAT: Run-level attempts persist with NULL product/retailer.
	// WHY: Failures before task enumeration have no pair to reference.
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AppendAttempt(ctx, &Attempt{
		Status: StatusFailed, ErrorMessage: "catalog unavailable",
	})
	if err != nil {
		t.Fatalf("append attempt: %v", err)
	}

	attempts, err := s.Attempts(ctx, time.Unix(0, 0), 10)
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].ID != id {
		t.Fatalf("expected the appended attempt back")
	}
	if attempts[0].ProductID != "" || attempts[0].RetailerID != "" {
		t.Error("expected empty pair IDs")
	}
}

func TestAttemptsLimit(t *testing.T) {
	// WHAT: The limit parameter caps returned attempt rows.
	// WHY: The attempt log grows without bound; readers page it.
	s := openTestStore(t)
	ctx := context.Background()
	productID, retailerID := seedPair(t, s)

	for i := 0; i < 5; i++ {
		s.AppendAttempt(ctx, &Attempt{
			ProductID: productID, RetailerID: retailerID, Status: StatusSuccess,
		})
	}
	attempts, err := s.Attempts(ctx, time.Unix(0, 0), 3)
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("len = %d, want 3", len(attempts))
	}
}

func TestAttemptStats(t *testing.T) {
	// WHAT: AttemptStats aggregates totals and per-retailer failures.
	// WHY: Health scoring reads success and error rates from here.
	s := openTestStore(t)
	ctx := context.Background()
	productID, retailerID := seedPair(t, s)

	for i := 0; i < 3; i++ {
		s.AppendAttempt(ctx, &Attempt{ProductID: productID, RetailerID: retailerID,
			Status: StatusSuccess})
	}
	s.AppendAttempt(ctx, &Attempt{ProductID: productID, RetailerID: retailerID,
		Status: StatusFailed, ErrorMessage: "timeout"})

	stats, err := s.AttemptStats(ctx, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Successes != 3 || stats.Failures != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	rc := stats.ByRetailer[retailerID]
	if rc.Total != 4 || rc.Failures != 1 {
		t.Fatalf("retailer counts = %+v", rc)
	}
}

func TestAttemptStatsWindow(t *testing.T) {
	// WHAT: Attempts outside the since window are excluded.
	// WHY: Health is computed over a trailing 24h window, not all time.
	s := openTestStore(t)
	ctx := context.Background()
	productID, retailerID := seedPair(t, s)

	old := time.Now().Add(-48 * time.Hour)
	s.AppendAttempt(ctx, &Attempt{ProductID: productID, RetailerID: retailerID,
		Status: StatusFailed, AttemptedAt: old.UnixMilli()})
	s.AppendAttempt(ctx, &Attempt{ProductID: productID, RetailerID: retailerID,
		Status: StatusSuccess})

	stats, err := s.AttemptStats(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 || stats.Failures != 0 {
		t.Fatalf("stats = %+v, want only the recent success", stats)
	}
}

func TestRecordMetricAndHistory(t *testing.T) {
	// WHAT: Metric samples append and read back by name and window.
	// WHY: Run summaries feed an audit time series.
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordMetric(ctx, "scrape_cycle_success_rate", 75.0); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordTextMetric(ctx, "health_status", "degraded"); err != nil {
		t.Fatalf("record text: %v", err)
	}

	samples, err := s.MetricHistory(ctx, "scrape_cycle_success_rate", time.Unix(0, 0))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("len = %d, want 1", len(samples))
	}
	if samples[0].Value == nil || *samples[0].Value != 75.0 {
		t.Errorf("value = %v, want 75.0", samples[0].Value)
	}
}

func TestScheduleConfigDefaults(t *testing.T) {
	// WHAT: Reading the schedule before any save yields defaults.
	// WHY: A fresh database must still produce a usable schedule.
	s := openTestStore(t)
	sc, err := s.ScheduleConfig(context.Background())
	if err != nil {
		t.Fatalf("schedule config: %v", err)
	}
	if !sc.Enabled || sc.RunAt != "06:00" || sc.Timezone != "Europe/London" {
		t.Fatalf("defaults = %+v", sc)
	}
}

func TestScheduleConfigUpsert(t *testing.T) {
	// WHAT: SaveScheduleConfig twice keeps exactly one row.
	// WHY: Schedule configuration is a singleton with upsert semantics.
	s := openTestStore(t)
	ctx := context.Background()

	sc := &Schedule{Enabled: true, RunAt: "07:30", Timezone: "UTC"}
	if err := s.SaveScheduleConfig(ctx, sc); err != nil {
		t.Fatalf("save: %v", err)
	}
	sc.RunAt = "08:00"
	if err := s.SaveScheduleConfig(ctx, sc); err != nil {
		t.Fatalf("save again: %v", err)
	}

	var count int
	s.DB.QueryRow(`SELECT COUNT(*) FROM schedule_config`).Scan(&count)
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}

	got, err := s.ScheduleConfig(ctx)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.RunAt != "08:00" {
		t.Errorf("run_at = %q, want 08:00", got.RunAt)
	}
}

func TestTouchScheduleRun(t *testing.T) {
	// WHAT: TouchScheduleRun records last/next run without losing config.
	// WHY: The scheduler stamps runs; operator settings must survive.
	s := openTestStore(t)
	ctx := context.Background()

	s.SaveScheduleConfig(ctx, &Schedule{Enabled: true, RunAt: "09:15", Timezone: "UTC"})

	last := time.Now()
	next := last.Add(24 * time.Hour)
	if err := s.TouchScheduleRun(ctx, last, next); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := s.ScheduleConfig(ctx)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.RunAt != "09:15" {
		t.Errorf("run_at clobbered: %q", got.RunAt)
	}
	if got.LastRunAt == nil || *got.LastRunAt != last.UnixMilli() {
		t.Errorf("last_run_at = %v", got.LastRunAt)
	}
	if got.NextRunAt == nil || *got.NextRunAt != next.UnixMilli() {
		t.Errorf("next_run_at = %v", got.NextRunAt)
	}
}

func TestImportCatalog(t *testing.T) {
	// WHAT: A YAML catalog imports products, retailers and mappings, and
	// re-importing is idempotent for products/retailers while updating
	// mapping URLs.
	// WHY: Bulk import is the operator path for seeding the catalog.
	s := openTestStore(t)
	ctx := context.Background()

	doc := []byte(`
products:
  - brand: Nurofen
    name: Ibuprofen
    pack_size: "16"
    category: pain-relief
retailers:
  - name: tesco
    base_url: https://www.tesco.com
    adapter: tesco
    selectors:
      price: ["p.price", ".value"]
    wait_selectors: ["p.price"]
mappings:
  - brand: Nurofen
    product: Ibuprofen
    pack_size: "16"
    retailer: tesco
    url: https://www.tesco.com/p/1
`)

	res, err := s.ImportCatalog(ctx, doc)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Products != 1 || res.Retailers != 1 || res.Mappings != 1 {
		t.Fatalf("result = %+v", res)
	}

	// Re-import with a changed URL.
	doc2 := []byte(`
products:
  - brand: Nurofen
    name: Ibuprofen
    pack_size: "16"
retailers:
  - name: tesco
mappings:
  - brand: Nurofen
    product: Ibuprofen
    pack_size: "16"
    retailer: tesco
    url: https://www.tesco.com/p/2
`)
	res2, err := s.ImportCatalog(ctx, doc2)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if res2.Products != 0 || res2.Retailers != 0 {
		t.Fatalf("re-import created duplicates: %+v", res2)
	}

	var count int
	s.DB.QueryRow(`SELECT COUNT(*) FROM url_mappings`).Scan(&count)
	if count != 1 {
		t.Fatalf("mapping rows = %d, want 1", count)
	}
	mappings, _ := s.ActiveMappings(ctx)
	if len(mappings) != 1 || mappings[0].URL != "https://www.tesco.com/p/2" {
		t.Fatalf("mapping not updated: %+v", mappings)
	}
}

func TestImportCatalogUnknownRetailer(t *testing.T) {
	// WHAT: A mapping referencing an unknown retailer fails the import.
	// WHY: Dangling mappings would silently never produce tasks.
	s := openTestStore(t)
	_, err := s.ImportCatalog(context.Background(), []byte(`
products:
  - brand: b
    name: n
    pack_size: "1"
mappings:
  - brand: b
    product: n
    pack_size: "1"
    retailer: nowhere
    url: https://example.com
`))
	if err == nil {
		t.Fatal("expected error for unknown retailer")
	}
}

func TestStats(t *testing.T) {
	// WHAT: Stats counts records and reports file size for disk databases.
	// WHY: Storage health includes record counts and footprint.
	dir := t.TempDir()
	path := filepath.Join(dir, "pricewatch.db")
	db, err := dbopen.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := ApplySchema(ctx, db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	s := NewWithPath(db, path)

	productID, retailerID := seedPair(t, s)
	s.AppendObservation(ctx, &Observation{ProductID: productID, RetailerID: retailerID, Price: 1.00})
	s.AppendAttempt(ctx, &Attempt{ProductID: productID, RetailerID: retailerID, Status: StatusSuccess})

	st, err := s.Stats(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Products != 1 || st.Retailers != 1 || st.Mappings != 1 {
		t.Fatalf("catalog counts = %+v", st)
	}
	if st.Observations != 1 || st.RecentObservations != 1 || st.Attempts != 1 {
		t.Fatalf("record counts = %+v", st)
	}
	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 && st.FileSizeBytes == 0 {
		t.Error("file size not reported")
	}
}
