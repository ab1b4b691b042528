// Package duckdb implements the DuckDB task plugin described in spec §4.5:
// a fresh connection per task, extension installation derived from the
// resolved auth types, CREATE SECRET DDL per credential, an "intermediate"
// event for each bucket scope referenced in the commands but not covered
// by a resolved auth item (no secret is created for it), and
// per-statement result sampling. COPY ... xlsx statements are not
// executed; they are listed under excel_exports in the result.
//
// No DuckDB Go driver ships in this module's dependency set (none of the
// reference repos this module was grounded on import one); the plugin is
// written against database/sql so a real driver (e.g. marcboeker/go-duckdb)
// can be registered by the host process under DriverName without this
// package depending on it directly.
package duckdb

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"noetl/internal/auth"
	"noetl/internal/plugin"
	"noetl/internal/template"
)

// ToolName is the task tool this plugin handles.
const ToolName = "duckdb"

// DriverName is the database/sql driver name the host process is expected
// to register a DuckDB driver under.
const DriverName = "duckdb"

var bucketScopePattern = regexp.MustCompile(`\b(?:gs|gcs|s3)://([a-zA-Z0-9._-]+)`)

// Plugin implements plugin.Plugin for DuckDB tasks.
type Plugin struct {
	dsn string
}

// New constructs a DuckDB plugin that opens dsn (typically a file path or
// ":memory:") fresh for each task.
func New(dsn string) *Plugin {
	return &Plugin{dsn: dsn}
}

func (p *Plugin) Tool() string { return ToolName }

func (p *Plugin) Execute(ctx context.Context, cfg plugin.Config, execCtx map[string]any, eval *template.Evaluator, emit plugin.EventEmitter) plugin.Result {
	start := time.Now()
	emit("task_start", map[string]any{"tool": ToolName})

	encoded, _ := cfg.Fields["commands"].(string)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("decoding base64 commands: %w", err))
	}

	db, err := sql.Open(DriverName, p.dsn)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("opening duckdb connection: %w", err))
	}
	defer db.Close()

	secretsCreated := []string{}
	if cfg.Auth != nil {
		for alias, resolved := range cfg.Auth.Items {
			if err := installExtensions(ctx, db, resolved.Service); err != nil {
				return p.fail(emit, start, err)
			}
			ddl, err := auth.DuckDBSecretDDL(alias, resolved)
			if err != nil {
				return p.fail(emit, start, fmt.Errorf("building secret ddl for %q: %w", alias, err))
			}
			if _, err := db.ExecContext(ctx, ddl); err != nil {
				return p.fail(emit, start, fmt.Errorf("creating secret %q: %w", alias, err))
			}
			secretsCreated = append(secretsCreated, alias)
		}
	}

	combined := template.Merge(execCtx, cfg.With)
	rendered, err := eval.Render(string(decoded), combined)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("rendering duckdb template: %w", err))
	}
	commandsText, ok := rendered.(string)
	if !ok {
		commandsText = fmt.Sprintf("%v", rendered)
	}

	// covered tracks bucket scopes already addressed by an explicitly
	// resolved auth item's Scope field, so the loop below only reports
	// buckets nothing in the auth alias map already names.
	covered := map[string]bool{}
	if cfg.Auth != nil {
		for _, resolved := range cfg.Auth.Items {
			if resolved.Scope != "" {
				covered[resolved.Scope] = true
			}
		}
	}
	for _, scope := range uncoveredScopes(commandsText, covered) {
		provider := "GCS"
		if strings.Contains(commandsText, "s3://"+scope) {
			provider = "S3"
		}
		emit("intermediate", map[string]any{"auto_secret_scope": scope, "provider": provider})
	}

	excelExports := []string{}
	statements := splitCommands(commandsText)
	results := map[string]any{}
	var failures []string

	for i, stmt := range statements {
		key := fmt.Sprintf("command_%d", i+1)
		if isXLSXCopy(stmt) {
			excelExports = append(excelExports, stmt)
			results[key] = map[string]any{"status": "success", "message": "recorded in excel_exports; not executed"}
			continue
		}
		rows, err := db.QueryContext(ctx, stmt)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", key, err))
			results[key] = map[string]any{"status": "error", "message": err.Error()}
			continue
		}
		sample, err := sampleRows(rows)
		rows.Close()
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", key, err))
			results[key] = map[string]any{"status": "error", "message": err.Error()}
			continue
		}
		results[key] = sample
	}

	output := map[string]any{
		"results":         results,
		"secrets_created": secretsCreated,
		"excel_exports":   excelExports,
	}

	if len(failures) > 0 {
		emit("task_error", map[string]any{"duration_ms": time.Since(start).Milliseconds(), "error": strings.Join(failures, "; ")})
		return plugin.Result{Status: plugin.StatusError, Error: strings.Join(failures, "; "), Data: output}
	}

	emit("task_complete", map[string]any{"duration_ms": time.Since(start).Milliseconds()})
	return plugin.Result{Status: plugin.StatusSuccess, Data: output}
}

func installExtensions(ctx context.Context, db *sql.DB, service string) error {
	ext := map[string]string{
		"postgres":  "postgres",
		"snowflake": "snowflake",
		"s3":        "httpfs",
		"gcs":       "httpfs",
		"gcs_hmac":  "httpfs",
	}[service]
	if ext == "" {
		return nil
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
		return fmt.Errorf("installing extension %q: %w", ext, err)
	}
	return nil
}

func uncoveredScopes(commands string, covered map[string]bool) []string {
	seen := map[string]bool{}
	var scopes []string
	for _, m := range bucketScopePattern.FindAllStringSubmatch(commands, -1) {
		bucket := m[1]
		if covered[bucket] || seen[bucket] {
			continue
		}
		seen[bucket] = true
		scopes = append(scopes, bucket)
	}
	return scopes
}

func splitCommands(commands string) []string {
	var out []string
	for _, stmt := range strings.Split(commands, ";") {
		if strings.TrimSpace(stmt) != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func isXLSXCopy(stmt string) bool {
	upper := strings.ToUpper(stmt)
	return strings.Contains(upper, "COPY") && strings.Contains(upper, "XLSX")
}

func sampleRows(rows *sql.Rows) (map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	var sample []map[string]any
	count := 0
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		count++
		if len(sample) < 20 {
			row := make(map[string]any, len(columns))
			for i, col := range columns {
				row[col] = values[i]
			}
			sample = append(sample, row)
		}
	}
	return map[string]any{
		"status":    "success",
		"row_count": count,
		"columns":   columns,
		"sample":    sample,
	}, rows.Err()
}

func (p *Plugin) fail(emit plugin.EventEmitter, start time.Time, err error) plugin.Result {
	emit("task_error", map[string]any{"duration_ms": time.Since(start).Milliseconds(), "error": err.Error()})
	return plugin.Result{Status: plugin.StatusError, Error: err.Error()}
}
