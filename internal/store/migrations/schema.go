// Package migrations holds the SQL schema for the event log, catalog and
// credential stores (spec §6: "Catalog table layout", "Event log table
// layout") and a helper to apply it idempotently.
package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the full DDL applied on startup. Tables are created with
// IF NOT EXISTS so Apply is safe to call on every process start.
const Schema = `
CREATE TABLE IF NOT EXISTS event_log (
	execution_id    TEXT NOT NULL,
	event_id        BIGINT NOT NULL,
	parent_event_id BIGINT,
	timestamp       TIMESTAMPTZ NOT NULL,
	event_type      TEXT NOT NULL,
	node_id         TEXT,
	node_name       TEXT,
	node_type       TEXT,
	status          TEXT,
	duration_ms     BIGINT,
	input_context   JSONB,
	output_result   JSONB,
	metadata        JSONB,
	error           JSONB,
	loop_data       JSONB,
	PRIMARY KEY (execution_id, event_id)
);
CREATE INDEX IF NOT EXISTS event_log_exec_idx ON event_log (execution_id, event_id);
CREATE INDEX IF NOT EXISTS event_log_type_idx ON event_log (execution_id, event_type);

CREATE TABLE IF NOT EXISTS catalog (
	resource_path    TEXT NOT NULL,
	resource_version TEXT NOT NULL,
	resource_type    TEXT NOT NULL,
	content          TEXT NOT NULL,
	payload          JSONB,
	meta             JSONB,
	"timestamp"      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (resource_path, resource_version)
);
CREATE INDEX IF NOT EXISTS catalog_type_idx ON catalog (resource_type);

CREATE TABLE IF NOT EXISTS credential (
	name        TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	data        JSONB NOT NULL,
	meta        JSONB,
	tags        TEXT[],
	description TEXT,
	"timestamp" TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow (
	execution_id TEXT NOT NULL,
	step_name    TEXT NOT NULL,
	status       TEXT NOT NULL,
	PRIMARY KEY (execution_id, step_name)
);

CREATE TABLE IF NOT EXISTS transition (
	execution_id TEXT NOT NULL,
	event_id     BIGINT NOT NULL,
	from_step    TEXT NOT NULL,
	to_step      TEXT NOT NULL,
	condition    TEXT,
	"timestamp"  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (execution_id, event_id)
);

CREATE TABLE IF NOT EXISTS context (
	execution_id TEXT PRIMARY KEY,
	data         JSONB NOT NULL
);
`

// Apply executes Schema against pool.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
