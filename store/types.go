package store

// Product is one tracked SKU. Identity = brand + name + pack size.
type Product struct {
	ID          string `json:"id"`
	Brand       string `json:"brand"`
	Name        string `json:"name"`
	PackSize    string `json:"pack_size"`
	Formulation string `json:"formulation"`
	Category    string `json:"category"`
	Active      bool   `json:"active"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Retailer holds one retailer's extraction configuration.
type Retailer struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	BaseURL           string `json:"base_url"`
	Adapter           string `json:"adapter"`
	SelectorsJSON     string `json:"selectors_json"`
	WaitSelectorsJSON string `json:"wait_selectors_json"`
	Active            bool   `json:"active"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

// Mapping associates a (product, retailer) pair with a target page URL.
// At most one mapping exists per pair.
type Mapping struct {
	ID                    string `json:"id"`
	ProductID             string `json:"product_id"`
	RetailerID            string `json:"retailer_id"`
	URL                   string `json:"url"`
	SelectorOverridesJSON string `json:"selector_overrides_json"`
	Active                bool   `json:"active"`
	CreatedAt             int64  `json:"created_at"`
	UpdatedAt             int64  `json:"updated_at"`
}

// Observation is one persisted price/availability reading. Append-only.
type Observation struct {
	ID               string  `json:"id"`
	ProductID        string  `json:"product_id"`
	RetailerID       string  `json:"retailer_id"`
	Price            float64 `json:"price"`
	Currency         string  `json:"currency"`
	InStock          bool    `json:"in_stock"`
	AvailabilityText string  `json:"availability_text"`
	Title            string  `json:"title"`
	RawJSON          string  `json:"raw_json"`
	ObservedAt       int64   `json:"observed_at"`
}

// Attempt statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPartial = "partial"
)

// Attempt is one persisted record of a fetch try. Append-only.
// ProductID and RetailerID are empty for run-level failures.
type Attempt struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id,omitempty"`
	RetailerID   string `json:"retailer_id,omitempty"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	DurationMs   int64  `json:"duration_ms"`
	UserAgent    string `json:"user_agent"`
	AttemptedAt  int64  `json:"attempted_at"`
}

// AttemptStats aggregates attempt outcomes over a window, overall and
// broken out per retailer.
type AttemptStats struct {
	Total      int                       `json:"total"`
	Successes  int                       `json:"successes"`
	Failures   int                       `json:"failures"`
	ByRetailer map[string]RetailerCounts `json:"by_retailer"`
}

// RetailerCounts is one retailer's slice of AttemptStats.
type RetailerCounts struct {
	Total    int `json:"total"`
	Failures int `json:"failures"`
}

// MetricSample is one append-only time series point.
type MetricSample struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Value      *float64 `json:"value,omitempty"`
	TextValue  *string  `json:"text_value,omitempty"`
	RecordedAt int64    `json:"recorded_at"`
}

// Schedule is the singleton schedule configuration row.
type Schedule struct {
	Enabled   bool   `json:"enabled"`
	RunAt     string `json:"run_at"`
	Timezone  string `json:"timezone"`
	LastRunAt *int64 `json:"last_run_at,omitempty"`
	NextRunAt *int64 `json:"next_run_at,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// Stats holds storage introspection counters.
type Stats struct {
	Products           int   `json:"products"`
	Retailers          int   `json:"retailers"`
	Mappings           int   `json:"mappings"`
	Observations       int   `json:"observations"`
	RecentObservations int   `json:"recent_observations"`
	Attempts           int   `json:"attempts"`
	FileSizeBytes      int64 `json:"file_size_bytes"`
}
