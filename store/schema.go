package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the complete pricewatch schema. All timestamps are Unix
// milliseconds stored as INTEGER and compared numerically.
const Schema = `
-- Product catalog (SKUs). Identity = brand + name + pack size.
CREATE TABLE IF NOT EXISTS products (
    id           TEXT PRIMARY KEY,
    brand        TEXT NOT NULL,
    name         TEXT NOT NULL,
    pack_size    TEXT NOT NULL,
    formulation  TEXT NOT NULL DEFAULT '',
    category     TEXT NOT NULL DEFAULT '',
    active       INTEGER NOT NULL DEFAULT 1,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL,
    UNIQUE(brand, name, pack_size)
);

-- Retailers and their extraction configuration
CREATE TABLE IF NOT EXISTS retailers (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL UNIQUE,
    base_url            TEXT NOT NULL DEFAULT '',
    adapter             TEXT NOT NULL DEFAULT 'generic',
    selectors_json      TEXT NOT NULL DEFAULT '{}',
    wait_selectors_json TEXT NOT NULL DEFAULT '[]',
    active              INTEGER NOT NULL DEFAULT 1,
    created_at          INTEGER NOT NULL,
    updated_at          INTEGER NOT NULL
);

-- Product page URL per (product, retailer) pair
CREATE TABLE IF NOT EXISTS url_mappings (
    id                       TEXT PRIMARY KEY,
    product_id               TEXT NOT NULL REFERENCES products(id),
    retailer_id              TEXT NOT NULL REFERENCES retailers(id),
    url                      TEXT NOT NULL,
    selector_overrides_json  TEXT NOT NULL DEFAULT '{}',
    active                   INTEGER NOT NULL DEFAULT 1,
    created_at               INTEGER NOT NULL,
    updated_at               INTEGER NOT NULL,
    UNIQUE(product_id, retailer_id)
);

-- Price observations: append-only audit trail
CREATE TABLE IF NOT EXISTS price_observations (
    id                 TEXT PRIMARY KEY,
    product_id         TEXT NOT NULL REFERENCES products(id),
    retailer_id        TEXT NOT NULL REFERENCES retailers(id),
    price              REAL NOT NULL,
    currency           TEXT NOT NULL DEFAULT 'GBP',
    in_stock           INTEGER NOT NULL DEFAULT 1,
    availability_text  TEXT NOT NULL DEFAULT '',
    title              TEXT NOT NULL DEFAULT '',
    raw_json           TEXT NOT NULL DEFAULT '{}',
    observed_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_pair
    ON price_observations(product_id, retailer_id, observed_at DESC);
CREATE INDEX IF NOT EXISTS idx_observations_time
    ON price_observations(observed_at DESC);

-- Scrape attempts: append-only, one row per fetch try
CREATE TABLE IF NOT EXISTS attempt_log (
    id            TEXT PRIMARY KEY,
    product_id    TEXT,
    retailer_id   TEXT,
    status        TEXT NOT NULL,
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    user_agent    TEXT NOT NULL DEFAULT '',
    attempted_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_time ON attempt_log(attempted_at DESC);
CREATE INDEX IF NOT EXISTS idx_attempts_retailer ON attempt_log(retailer_id, attempted_at DESC);

-- Metric samples: append-only time series for trend/audit
CREATE TABLE IF NOT EXISTS metric_samples (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    value       REAL,
    text_value  TEXT,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_name ON metric_samples(name, recorded_at DESC);

-- Singleton schedule configuration (id always 1)
CREATE TABLE IF NOT EXISTS schedule_config (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    enabled     INTEGER NOT NULL DEFAULT 1,
    run_at      TEXT NOT NULL DEFAULT '06:00',
    timezone    TEXT NOT NULL DEFAULT 'Europe/London',
    last_run_at INTEGER,
    next_run_at INTEGER,
    updated_at  INTEGER NOT NULL
);
`

// ApplySchema creates all pricewatch tables and indexes if absent.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}
