// Package plugin defines the task plugin contract (spec §4.5) and a
// registry of plugins keyed by tool name, grounded on the backend
// provider registry pattern used throughout the teacher repo.
package plugin

import (
	"context"
	"encoding/base64"

	"noetl/internal/auth"
	"noetl/internal/template"
)

// textFieldKeys are the Fields entries the postgres/duckdb/code plugins
// expect as base64-encoded text (spec §4.5). A task author writes these
// as plain text in a playbook's workbook; NormalizeFields base64-encodes
// them so both a plain-authored task and an already-encoded one (e.g. one
// built by internal/sink) reach the plugin in the same shape.
var textFieldKeys = []string{"command", "commands", "code"}

// Status is the plugin execution outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the uniform plugin return value.
type Result struct {
	ID     string
	Status Status
	Data   any
	Error  string
}

// EventEmitter lets a plugin report task_start/task_complete/task_error
// (and any intermediate) events without writing to the event log directly.
type EventEmitter func(eventType string, fields map[string]any)

// Config is the normalized task configuration a plugin receives: the
// rendered `with`/`args` fields, the resolved auth bundle (nil if none was
// configured), and the raw task fields for plugin-specific extras.
type Config struct {
	Tool   string
	With   map[string]any
	Auth   *auth.Resolution
	Fields map[string]any
}

// NormalizeFields returns a copy of raw with every known text field
// (command, commands, code) base64-encoded if it isn't already valid
// base64. This lets a workbook task author write `command: "INSERT ..."`
// directly, matching the plain-text style every playbook example in
// spec §6 uses, while plugins keep a single base64-in, base64-out
// contract regardless of whether the caller is a direct task call or the
// sink writer (which always produces pre-encoded text itself).
func NormalizeFields(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	for _, key := range textFieldKeys {
		s, ok := out[key].(string)
		if !ok || s == "" {
			continue
		}
		if _, err := base64.StdEncoding.DecodeString(s); err == nil {
			continue
		}
		out[key] = base64.StdEncoding.EncodeToString([]byte(s))
	}
	return out
}

// WithFieldExtras folds a task's non-text inline fields (e.g. an http
// task's top-level `endpoint`/`method`/`headers`, written directly on the
// workbook entry per spec §6 rather than nested under `with`) into args,
// so plugins that read their parameters from cfg.With — as the http
// plugin does — see them regardless of which level of the playbook
// document they were declared at. Known base64 text fields (command,
// commands, code) are left out of the returned map since those plugins
// read them from cfg.Fields instead.
func WithFieldExtras(args, fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return args
	}
	out := make(map[string]any, len(args)+len(fields))
	for k, v := range args {
		out[k] = v
	}
	for k, v := range fields {
		if isTextFieldKey(k) {
			continue
		}
		if _, exists := out[k]; exists {
			continue
		}
		out[k] = v
	}
	return out
}

func isTextFieldKey(k string) bool {
	for _, key := range textFieldKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Plugin executes one task invocation.
type Plugin interface {
	// Tool returns the tool name this plugin handles, e.g. "http", "postgres".
	Tool() string

	// Execute runs the task. ctx carries cancellation/deadline; execCtx is
	// the live execution context snapshot for template expansion.
	Execute(ctx context.Context, cfg Config, execCtx map[string]any, eval *template.Evaluator, emit EventEmitter) Result
}
