// Package store implements the durable persistence layer backing
// ConfigStore, OrderService, PositionTracker, and TrailingStopEngine
// (spec §3 ownership, §6 "persisted state layout"). Grounded on the
// sqlx + lib/pq pattern pulled into the DOMAIN STACK from the rest of the
// example pack (DimaJoyti-go-coffee's repository layer).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Open opens and pings a Postgres connection pool via sqlx.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// schema is the logical DDL for the four owned tables (spec §6: "the SQL
// schema DDL" itself is out of scope as an external collaborator concern,
// but a logical bootstrap is kept here so the store is self-contained for
// local development and tests).
const schema = `
CREATE TABLE IF NOT EXISTS bot_configs (
	bot_id                    BIGSERIAL PRIMARY KEY,
	bot_name                  TEXT UNIQUE NOT NULL,
	strategy_name             TEXT NOT NULL,
	api_key                   TEXT NOT NULL,
	api_secret                TEXT NOT NULL,
	timeframe                 TEXT NOT NULL,
	execution_mode            TEXT NOT NULL,
	capital_percentage        DOUBLE PRECISION NOT NULL,
	max_open_orders           INTEGER NOT NULL,
	max_negative_pnl_stop_pct DOUBLE PRECISION NOT NULL,
	min_profit_percentage     DOUBLE PRECISION NOT NULL,
	max_slippage_pct          DOUBLE PRECISION NOT NULL,
	enable_trailing                   BOOLEAN NOT NULL DEFAULT FALSE,
	trailing_stop_activation_pct      DOUBLE PRECISION NOT NULL DEFAULT 0,
	trailing_stop_distance_pct        DOUBLE PRECISION NOT NULL DEFAULT 0,
	enable_hybrid_stop_strategy       BOOLEAN NOT NULL DEFAULT FALSE,
	initial_stop_atr_multiplier       DOUBLE PRECISION NOT NULL DEFAULT 0,
	trailing_stop_atr_multiplier      DOUBLE PRECISION NOT NULL DEFAULT 0,
	partial_take_profit_atr_multiplier DOUBLE PRECISION NOT NULL DEFAULT 0,
	partial_take_profit_percentage     DOUBLE PRECISION NOT NULL DEFAULT 0,
	enable_post_only          BOOLEAN NOT NULL DEFAULT FALSE,
	enable_market_fallback    BOOLEAN NOT NULL DEFAULT FALSE,
	enable_orphan_monitor     BOOLEAN NOT NULL DEFAULT TRUE,
	enable_pending_monitor    BOOLEAN NOT NULL DEFAULT TRUE,
	enable_heikin_ashi        BOOLEAN NOT NULL DEFAULT FALSE,
	authorized_tokens         TEXT NOT NULL DEFAULT '',
	enabled                   BOOLEAN NOT NULL DEFAULT TRUE,
	status                    TEXT NOT NULL DEFAULT 'stopped',
	start_time                TIMESTAMPTZ,
	next_validation_at        TIMESTAMPTZ,
	bot_client_order_id       BIGINT NOT NULL,
	order_counter             BIGINT NOT NULL DEFAULT 0,
	created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
	external_order_id   TEXT PRIMARY KEY,
	bot_id              BIGINT NOT NULL,
	client_order_id     TEXT UNIQUE NOT NULL,
	symbol              TEXT NOT NULL,
	side                TEXT NOT NULL,
	order_type          TEXT NOT NULL,
	quantity            DOUBLE PRECISION NOT NULL,
	price               DOUBLE PRECISION NOT NULL,
	status              TEXT NOT NULL,
	timestamp           TIMESTAMPTZ NOT NULL,
	exchange_created_at TIMESTAMPTZ,
	close_price         DOUBLE PRECISION,
	close_quantity      DOUBLE PRECISION,
	close_time          TIMESTAMPTZ,
	close_type          TEXT,
	pnl                 DOUBLE PRECISION,
	pnl_pct             DOUBLE PRECISION,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS positions (
	id               BIGSERIAL PRIMARY KEY,
	bot_id           BIGINT NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	entry_price      DOUBLE PRECISION NOT NULL,
	initial_quantity DOUBLE PRECISION NOT NULL,
	current_quantity DOUBLE PRECISION NOT NULL,
	pnl              DOUBLE PRECISION NOT NULL,
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trailing_states (
	bot_id               BIGINT NOT NULL,
	symbol               TEXT NOT NULL,
	active_stop_order_id TEXT NOT NULL DEFAULT '',
	high_favorable_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_trigger_price   DOUBLE PRECISION NOT NULL DEFAULT 0,
	armed_at             TIMESTAMPTZ,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (bot_id, symbol)
);
`

// Migrate creates the schema if it does not already exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
