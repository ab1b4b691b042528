// Package postgres implements the Postgres task plugin described in
// spec §4.5: base64-encoded SQL, statement splitting that respects quoting
// and dollar-quoted bodies, per-statement transactional execution (except
// CALL, which runs in autocommit), and row-value normalization.
package postgres

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"noetl/internal/auth"
	"noetl/internal/plugin"
	"noetl/internal/template"
)

// ToolName is the task tool this plugin handles.
const ToolName = "postgres"

// Plugin implements plugin.Plugin for Postgres tasks. It opens a fresh
// connection per task from the pool, matching the plugin contract's
// open/execute/close lifecycle.
type Plugin struct {
	pool *pgxpool.Pool
}

// New constructs a Postgres plugin using pool to dial connections.
func New(pool *pgxpool.Pool) *Plugin {
	return &Plugin{pool: pool}
}

func (p *Plugin) Tool() string { return ToolName }

func (p *Plugin) Execute(ctx context.Context, cfg plugin.Config, execCtx map[string]any, eval *template.Evaluator, emit plugin.EventEmitter) plugin.Result {
	start := time.Now()
	emit("task_start", map[string]any{"tool": ToolName})

	encoded, _ := cfg.Fields["commands"].(string)
	if encoded == "" {
		encoded, _ = cfg.Fields["command"].(string)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("decoding base64 sql: %w", err))
	}

	combined := template.Merge(execCtx, cfg.With)
	rendered, err := eval.Render(string(decoded), combined)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("rendering sql template: %w", err))
	}
	sql, ok := rendered.(string)
	if !ok {
		sql = fmt.Sprintf("%v", rendered)
	}

	statements := SplitStatements(sql)
	if len(statements) == 0 {
		return p.fail(emit, start, fmt.Errorf("no sql statements to execute"))
	}

	conn, err := p.dial(ctx, cfg.Auth)
	if err != nil {
		return p.fail(emit, start, err)
	}
	defer conn.Close(ctx)

	results := map[string]any{}
	var failures []string

	for i, stmt := range statements {
		key := fmt.Sprintf("command_%d", i+1)
		res, err := p.executeStatement(ctx, conn, stmt)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", key, err))
			results[key] = map[string]any{"status": "error", "message": err.Error()}
			continue
		}
		results[key] = res
	}

	if len(failures) > 0 {
		emit("task_error", map[string]any{"duration_ms": time.Since(start).Milliseconds(), "error": strings.Join(failures, "; ")})
		return plugin.Result{Status: plugin.StatusError, Error: strings.Join(failures, "; "), Data: results}
	}

	emit("task_complete", map[string]any{"duration_ms": time.Since(start).Milliseconds()})
	return plugin.Result{Status: plugin.StatusSuccess, Data: results}
}

func (p *Plugin) dial(ctx context.Context, resolved *auth.Resolution) (*pgx.Conn, error) {
	if resolved == nil || len(resolved.Items) == 0 {
		conn, err := p.pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring pool connection: %w", err)
		}
		return conn.Hijack(), nil
	}
	item := resolved.Items[auth.DefaultAlias]
	if item.Payload == nil {
		for _, v := range resolved.Items {
			item = v
			break
		}
	}
	fields := auth.PostgresConnFields(item)
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		fields["user"], fields["password"], fields["host"], fields["port"], fields["database"], fields["sslmode"])
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return conn, nil
}

func isCall(stmt string) bool {
	trimmed := strings.TrimSpace(stmt)
	return len(trimmed) >= 4 && strings.EqualFold(trimmed[:4], "call")
}

func (p *Plugin) executeStatement(ctx context.Context, conn *pgx.Conn, stmt string) (map[string]any, error) {
	if isCall(stmt) {
		rows, err := conn.Query(ctx, stmt)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanRows(rows)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	rows, err := tx.Query(ctx, stmt)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	result, err := scanRows(rows)
	rows.Close()
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return result, nil
}

func scanRows(rows pgx.Rows) (map[string]any, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = string(f.Name)
	}

	var data []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := map[string]any{
		"status":    "success",
		"row_count": len(data),
	}
	if len(columns) > 0 {
		result["columns"] = columns
		result["rows"] = data
	}
	return result, nil
}

// normalizeValue coerces pgx scan results to JSON-friendly forms:
// decimals/numerics to float64, time.Time to ISO-8601.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case [16]byte:
		return fmt.Sprintf("%x", x)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}

func (p *Plugin) fail(emit plugin.EventEmitter, start time.Time, err error) plugin.Result {
	emit("task_error", map[string]any{"duration_ms": time.Since(start).Milliseconds(), "error": err.Error()})
	return plugin.Result{Status: plugin.StatusError, Error: err.Error()}
}
