package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sales_records (
		product_id    INTEGER          NOT NULL CHECK (product_id >= 1),
		sale_date     DATE             NOT NULL,
		quantity_sold DOUBLE PRECISION NOT NULL CHECK (quantity_sold >= 0),
		stock_level   DOUBLE PRECISION NOT NULL CHECK (stock_level >= 0),
		updated_at    TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		PRIMARY KEY (product_id, sale_date)
	)`,
	`CREATE TABLE IF NOT EXISTS training_runs (
		id            UUID             PRIMARY KEY,
		model_version TEXT             NOT NULL,
		regressor     TEXT             NOT NULL,
		samples       INTEGER          NOT NULL,
		products      INTEGER          NOT NULL,
		cv_mean       DOUBLE PRECISION NOT NULL,
		cv_std        DOUBLE PRECISION NOT NULL,
		confidence    DOUBLE PRECISION NOT NULL,
		completed_at  TIMESTAMPTZ      NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_runs (
		id              BIGSERIAL   PRIMARY KEY,
		pipeline_name   TEXT        NOT NULL,
		snapshot_date   DATE        NOT NULL,
		status          TEXT        NOT NULL,
		total_files     INTEGER     NOT NULL DEFAULT 0,
		processed_files INTEGER     NOT NULL DEFAULT 0,
		total_rows      INTEGER     NOT NULL DEFAULT 0,
		started_at      TIMESTAMPTZ NOT NULL,
		completed_at    TIMESTAMPTZ,
		error_message   TEXT,
		UNIQUE (pipeline_name, snapshot_date)
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_file_jobs (
		id            BIGSERIAL   PRIMARY KEY,
		ingest_run_id BIGINT      NOT NULL REFERENCES ingest_runs (id) ON DELETE CASCADE,
		object_key    TEXT        NOT NULL,
		status        TEXT        NOT NULL,
		error_message TEXT,
		processed_at  TIMESTAMPTZ,
		retry_count   INTEGER     NOT NULL DEFAULT 0
	)`,
}

// EnsureSchema creates the tables the service reads and writes.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
