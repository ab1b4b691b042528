// Package sink implements the declarative persistence block described in
// spec §4.6: event/postgres/duckdb/python/http storage kinds, statement
// forwarding with named-bind rewriting, and INSERT/upsert synthesis.
package sink

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"noetl/internal/auth"
	"noetl/internal/domain/playbook"
	"noetl/internal/noerr"
	"noetl/internal/plugin"
	"noetl/internal/template"
)

// Kind enumerates the supported storage kinds.
type Kind string

const (
	KindEvent    Kind = "event"
	KindEventLog Kind = "event_log"
	KindPostgres Kind = "postgres"
	KindDuckDB   Kind = "duckdb"
	KindPython   Kind = "python"
	KindHTTP     Kind = "http"
)

// Envelope is the sink output shape: {status, data, meta, error?}.
type Envelope struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
	Meta   map[string]any `json:"meta"`
	Error  string         `json:"error,omitempty"`
}

// Writer dispatches a playbook.SinkSpec to the appropriate plugin or
// event-log capture path.
type Writer struct {
	plugins   *plugin.Registry
	resolver  *auth.Resolver
	evaluator *template.Evaluator
}

// New constructs a Writer.
func New(plugins *plugin.Registry, resolver *auth.Resolver, evaluator *template.Evaluator) *Writer {
	return &Writer{plugins: plugins, resolver: resolver, evaluator: evaluator}
}

// Write renders spec's data/args against ctx and dispatches to the
// configured storage kind. Sink failure is always returned as an error
// (never silently dropped), per spec §4.6's contract.
func (w *Writer) Write(ctx context.Context, spec *playbook.SinkSpec, execCtx map[string]any, emit plugin.EventEmitter) (*Envelope, error) {
	if spec == nil {
		return nil, noerr.New(noerr.KindSink, "sink write called with a nil spec")
	}

	kind := Kind(spec.Storage)
	if kind == "" {
		kind = KindEvent
	}

	rendered, err := w.evaluator.Render(spec.Payload(), execCtx)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindSink, err, "rendering sink data")
	}

	meta := map[string]any{"storage_kind": string(kind), "sink_spec": spec}

	var resolution *auth.Resolution
	if spec.Auth != nil {
		resolution, err = w.resolver.Resolve(ctx, spec.Auth, execCtx)
		if err != nil {
			return nil, noerr.Wrap(noerr.KindSink, err, "resolving sink auth")
		}
		meta["credential_ref"] = spec.Auth
	}

	switch kind {
	case KindEvent, KindEventLog:
		return &Envelope{Status: "success", Data: map[string]any{"saved": "event", "value": rendered}, Meta: meta}, nil

	case KindPostgres:
		return w.writeDatabase(ctx, "postgres", spec, rendered, resolution, execCtx, meta, emit)

	case KindDuckDB:
		return w.writeDatabase(ctx, "duckdb", spec, rendered, resolution, execCtx, meta, emit)

	case KindHTTP:
		return w.writeHTTP(ctx, spec, rendered, resolution, execCtx, meta, emit)

	case KindPython:
		return w.writePython(ctx, spec, rendered, resolution, execCtx, meta, emit)

	default:
		return nil, noerr.New(noerr.KindSink, "unsupported sink storage kind %q", spec.Storage)
	}
}

func (w *Writer) writeDatabase(ctx context.Context, tool string, spec *playbook.SinkSpec, rendered any, resolution *auth.Resolution, execCtx map[string]any, meta map[string]any, emit plugin.EventEmitter) (*Envelope, error) {
	p, err := w.plugins.Get(tool)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindSink, err, "looking up %s plugin", tool)
	}

	data, _ := rendered.(map[string]any)
	statement := spec.Statement
	if statement == "" {
		table := spec.Table
		mode := spec.Mode
		if mode == "" {
			mode = "append"
		}
		statement, err = SynthesizeInsert(table, data, mode, spec.Key)
		if err != nil {
			return nil, noerr.Wrap(noerr.KindSink, err, "synthesizing insert statement")
		}
	} else {
		statement = RewriteNamedBinds(statement, data)
	}

	cfg := plugin.Config{
		Tool:   tool,
		With:   data,
		Auth:   resolution,
		Fields: map[string]any{"commands": encodeCommand(statement)},
	}
	result := p.Execute(ctx, cfg, execCtx, w.evaluator, emit)
	if result.Status == plugin.StatusError {
		return &Envelope{Status: "error", Error: result.Error, Meta: meta}, noerr.New(noerr.KindSink, "database sink failed: %s", result.Error)
	}
	return &Envelope{Status: "success", Data: map[string]any{"saved": tool, "result": result.Data}, Meta: meta}, nil
}

func (w *Writer) writeHTTP(ctx context.Context, spec *playbook.SinkSpec, rendered any, resolution *auth.Resolution, execCtx map[string]any, meta map[string]any, emit plugin.EventEmitter) (*Envelope, error) {
	p, err := w.plugins.Get("http")
	if err != nil {
		return nil, noerr.Wrap(noerr.KindSink, err, "looking up http plugin")
	}

	cfg := plugin.Config{
		Tool: "http",
		With: map[string]any{
			"endpoint": spec.Endpoint,
			"method":   "POST",
			"data":     map[string]any{"body": rendered},
		},
		Auth: resolution,
	}
	result := p.Execute(ctx, cfg, execCtx, w.evaluator, emit)
	if result.Status == plugin.StatusError {
		return &Envelope{Status: "error", Error: result.Error, Meta: meta}, noerr.New(noerr.KindSink, "http sink failed: %s", result.Error)
	}
	return &Envelope{Status: "success", Data: map[string]any{"saved": "http", "result": result.Data}, Meta: meta}, nil
}

func (w *Writer) writePython(ctx context.Context, spec *playbook.SinkSpec, rendered any, resolution *auth.Resolution, execCtx map[string]any, meta map[string]any, emit plugin.EventEmitter) (*Envelope, error) {
	p, err := w.plugins.Get("code")
	if err != nil {
		return nil, noerr.Wrap(noerr.KindSink, err, "looking up code plugin")
	}

	body := spec.Code
	if body == "" {
		body = `function main(input) { return input; }`
	}

	cfg := plugin.Config{
		Tool:   "code",
		With:   map[string]any{"input": rendered},
		Auth:   resolution,
		Fields: map[string]any{"code": encodeCommand(body)},
	}
	result := p.Execute(ctx, cfg, execCtx, w.evaluator, emit)
	if result.Status == plugin.StatusError {
		return &Envelope{Status: "error", Error: result.Error, Meta: meta}, noerr.New(noerr.KindSink, "python sink failed: %s", result.Error)
	}
	return &Envelope{Status: "success", Data: map[string]any{"saved": "python", "result": result.Data}, Meta: meta}, nil
}

// RewriteNamedBinds rewrites `:name` binds in statement into `{{ name }}`
// template references when statement doesn't already contain template
// markup, per spec §4.6.
func RewriteNamedBinds(statement string, data map[string]any) string {
	if strings.Contains(statement, "{{") {
		return statement
	}
	out := statement
	for k := range data {
		out = strings.ReplaceAll(out, ":"+k, fmt.Sprintf("{{ %s }}", k))
	}
	return out
}

func encodeCommand(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
