// Package transfer implements the bidirectional Snowflake<->Postgres
// streaming task plugin described in spec §4.5: chunked source fetch,
// target DML synthesis (or a user-supplied target query), and a
// progress callback per chunk.
//
// The Postgres side uses pgx/v5, already a core dependency of this
// module. No Snowflake Go driver ships in this module's dependency set
// (none of the reference repos this module was grounded on import one);
// the Snowflake side is written against database/sql so a real driver
// (e.g. snowflakedb/gosnowflake) can be registered by the host process
// under DriverName without this package depending on it directly.
package transfer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"noetl/internal/auth"
	"noetl/internal/plugin"
	"noetl/internal/template"
)

// ToolName is the task tool this plugin handles.
const ToolName = "transfer"

// DriverName is the database/sql driver name the host process is expected
// to register a Snowflake driver under.
const DriverName = "snowflake"

// Direction names which side is the source.
type Direction string

const (
	DirectionSnowflakeToPostgres Direction = "snowflake_to_postgres"
	DirectionPostgresToSnowflake Direction = "postgres_to_snowflake"
)

// ChunkSize bounds rows fetched per progress callback invocation.
const ChunkSize = 1000

// ProgressFunc is invoked once per chunk transferred.
type ProgressFunc func(chunk int, rows int)

// Plugin implements plugin.Plugin for transfer tasks.
type Plugin struct {
	pgConnString string
	onProgress   ProgressFunc
}

// New constructs a transfer plugin. onProgress may be nil.
func New(pgConnString string, onProgress ProgressFunc) *Plugin {
	if onProgress == nil {
		onProgress = func(int, int) {}
	}
	return &Plugin{pgConnString: pgConnString, onProgress: onProgress}
}

func (p *Plugin) Tool() string { return ToolName }

func (p *Plugin) Execute(ctx context.Context, cfg plugin.Config, execCtx map[string]any, eval *template.Evaluator, emit plugin.EventEmitter) plugin.Result {
	start := time.Now()
	emit("task_start", map[string]any{"tool": ToolName})

	rendered, err := eval.RenderMap(cfg.With, execCtx)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("expanding transfer task fields: %w", err))
	}

	direction := Direction(asString(rendered["direction"]))
	sourceQuery := asString(rendered["source_query"])
	targetTable := asString(rendered["target_table"])
	targetQuery := asString(rendered["target_query"])
	keyColumns := asStringSlice(rendered["key_columns"])
	mode := asString(rendered["mode"])
	if mode == "" {
		mode = "insert"
	}

	snowflakeDSN := p.snowflakeDSN(cfg.Auth)

	var columns []string
	var rowsTransferred, chunks int

	switch direction {
	case DirectionSnowflakeToPostgres:
		sfDB, err := sql.Open(DriverName, snowflakeDSN)
		if err != nil {
			return p.fail(emit, start, fmt.Errorf("opening snowflake connection: %w", err))
		}
		defer sfDB.Close()

		pgConn, err := pgx.Connect(ctx, p.pgConnString)
		if err != nil {
			return p.fail(emit, start, fmt.Errorf("opening postgres connection: %w", err))
		}
		defer pgConn.Close(ctx)

		rows, err := sfDB.QueryContext(ctx, sourceQuery)
		if err != nil {
			return p.fail(emit, start, fmt.Errorf("querying snowflake source: %w", err))
		}
		defer rows.Close()

		columns, err = rows.Columns()
		if err != nil {
			return p.fail(emit, start, fmt.Errorf("reading source columns: %w", err))
		}

		rowsTransferred, chunks, err = p.streamSQLRowsToPostgres(ctx, pgConn, rows, columns, targetTable, targetQuery, keyColumns, mode)
		if err != nil {
			return p.fail(emit, start, err)
		}

	case DirectionPostgresToSnowflake:
		sfDB, err := sql.Open(DriverName, snowflakeDSN)
		if err != nil {
			return p.fail(emit, start, fmt.Errorf("opening snowflake connection: %w", err))
		}
		defer sfDB.Close()

		pgConn, err := pgx.Connect(ctx, p.pgConnString)
		if err != nil {
			return p.fail(emit, start, fmt.Errorf("opening postgres connection: %w", err))
		}
		defer pgConn.Close(ctx)

		rows, err := pgConn.Query(ctx, sourceQuery)
		if err != nil {
			return p.fail(emit, start, fmt.Errorf("querying postgres source: %w", err))
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		columns = make([]string, len(fields))
		for i, f := range fields {
			columns[i] = string(f.Name)
		}

		rowsTransferred, chunks, err = p.streamPgxRowsToSnowflake(ctx, sfDB, rows, columns, targetTable, targetQuery, keyColumns, mode)
		if err != nil {
			return p.fail(emit, start, err)
		}

	default:
		return p.fail(emit, start, fmt.Errorf("unsupported transfer direction %q", direction))
	}

	output := map[string]any{
		"rows_transferred": rowsTransferred,
		"chunks_processed": chunks,
		"target_table":     targetTable,
		"direction":        string(direction),
		"columns":          columns,
	}
	emit("task_complete", map[string]any{"duration_ms": time.Since(start).Milliseconds()})
	return plugin.Result{Status: plugin.StatusSuccess, Data: output}
}

func (p *Plugin) streamSQLRowsToPostgres(ctx context.Context, pgConn *pgx.Conn, rows *sql.Rows, columns []string, targetTable, targetQuery string, keyColumns []string, mode string) (int, int, error) {
	total, chunkCount, batch := 0, 0, 0
	buf := make([][]any, 0, ChunkSize)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		stmt := targetQuery
		if stmt == "" {
			stmt = buildDML(targetTable, columns, keyColumns, mode)
		}
		for _, row := range buf {
			if _, err := pgConn.Exec(ctx, stmt, row...); err != nil {
				return fmt.Errorf("writing to postgres target: %w", err)
			}
		}
		chunkCount++
		p.onProgress(chunkCount, len(buf))
		total += len(buf)
		buf = buf[:0]
		return nil
	}

	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return 0, 0, fmt.Errorf("scanning source row: %w", err)
		}
		buf = append(buf, values)
		batch++
		if batch >= ChunkSize {
			if err := flush(); err != nil {
				return 0, 0, err
			}
			batch = 0
		}
	}
	if err := flush(); err != nil {
		return 0, 0, err
	}
	return total, chunkCount, rows.Err()
}

func (p *Plugin) streamPgxRowsToSnowflake(ctx context.Context, sfDB *sql.DB, rows pgx.Rows, columns []string, targetTable, targetQuery string, keyColumns []string, mode string) (int, int, error) {
	total, chunkCount, batch := 0, 0, 0
	buf := make([][]any, 0, ChunkSize)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		stmt := targetQuery
		if stmt == "" {
			stmt = buildDML(targetTable, columns, keyColumns, mode)
		}
		for _, row := range buf {
			if _, err := sfDB.ExecContext(ctx, stmt, row...); err != nil {
				return fmt.Errorf("writing to snowflake target: %w", err)
			}
		}
		chunkCount++
		p.onProgress(chunkCount, len(buf))
		total += len(buf)
		buf = buf[:0]
		return nil
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return 0, 0, fmt.Errorf("scanning source row: %w", err)
		}
		buf = append(buf, values)
		batch++
		if batch >= ChunkSize {
			if err := flush(); err != nil {
				return 0, 0, err
			}
			batch = 0
		}
	}
	if err := flush(); err != nil {
		return 0, 0, err
	}
	return total, chunkCount, rows.Err()
}

// buildDML synthesizes an ON CONFLICT upsert when mode is "upsert" and
// keyColumns is non-empty, and a plain INSERT for every other mode,
// "replace" included. Nothing in this plugin deletes or truncates target
// rows before inserting.
func buildDML(table string, columns, keyColumns []string, mode string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	base := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if mode != "upsert" || len(keyColumns) == 0 {
		return base
	}
	updates := make([]string, 0, len(columns))
	for _, c := range columns {
		if contains(keyColumns, c) {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", base, strings.Join(keyColumns, ", "), strings.Join(updates, ", "))
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func (p *Plugin) snowflakeDSN(resolved *auth.Resolution) string {
	if resolved == nil {
		return ""
	}
	item, ok := resolved.Items[auth.DefaultAlias]
	if !ok {
		for _, v := range resolved.Items {
			item = v
			break
		}
	}
	account, _ := item.Payload["account"].(string)
	user, _ := item.Payload["user"].(string)
	password, _ := item.Payload["password"].(string)
	database, _ := item.Payload["database"].(string)
	schema, _ := item.Payload["schema"].(string)
	return fmt.Sprintf("%s:%s@%s/%s/%s", user, password, account, database, schema)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p *Plugin) fail(emit plugin.EventEmitter, start time.Time, err error) plugin.Result {
	emit("task_error", map[string]any{"duration_ms": time.Since(start).Milliseconds(), "error": err.Error()})
	return plugin.Result{Status: plugin.StatusError, Error: err.Error()}
}
