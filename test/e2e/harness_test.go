// Package e2e runs the end-to-end scenarios from spec §8 (S1-S6) against
// an in-process engine wired with in-memory stores, the real HTTP plugin
// pointed at local httptest servers, and a fake "postgres" plugin that
// records inserted rows instead of talking to a live database.
package e2e

import (
	"context"
	"sync"

	"noetl/internal/auth"
	"noetl/internal/domain/credential"
	"noetl/internal/domain/event"
	"noetl/internal/engine"
	httpplugin "noetl/internal/plugin/http"
	"noetl/internal/plugin"
	"noetl/internal/sink"
	"noetl/internal/store/catalogstore"
	"noetl/internal/store/credentialstore"
	"noetl/internal/store/eventlog"
	"noetl/internal/iterator"
	"noetl/internal/template"
)

// fakeRow is one captured "inserted" row, recorded by fakePostgres instead
// of a live database.
type fakeRow struct {
	Statement string
	Args      map[string]any
}

// fakePostgres stands in for the postgres task plugin: it has no SQL
// engine behind it, but it records every invocation so scenarios can
// assert on the number and shape of "inserted" rows, the same contract a
// real Postgres-backed plugin exposes to the engine.
type fakePostgres struct {
	mu   sync.Mutex
	rows []fakeRow
}

func (f *fakePostgres) Tool() string { return "postgres" }

func (f *fakePostgres) Execute(ctx context.Context, cfg plugin.Config, execCtx map[string]any, eval *template.Evaluator, emit plugin.EventEmitter) plugin.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, fakeRow{Args: cfg.With})
	return plugin.Result{Status: plugin.StatusSuccess, Data: map[string]any{"rows_affected": 1}}
}

func (f *fakePostgres) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// harness bundles one fully-wired, in-memory engine for a scenario test.
type harness struct {
	engine   *engine.Engine
	events   *eventlog.MemoryStore
	catalog  *catalogstore.MemoryStore
	postgres *fakePostgres
	http     *httpplugin.Plugin
}

func newHarness() *harness {
	eval := template.New()
	events := eventlog.NewMemoryStore()
	cat := catalogstore.NewMemoryStore()
	creds := credentialstore.NewMemoryStore()
	resolver := auth.New(creds, eval)

	pg := &fakePostgres{}
	httpPlug := httpplugin.New(0, false)

	plugins := plugin.NewRegistry()
	plugins.Register(pg)
	plugins.Register(httpPlug)

	sinks := sink.New(plugins, resolver, eval)
	iterators := iterator.New(plugins, sinks, resolver, eval)
	eng := engine.New(cat, events, plugins, resolver, eval, sinks, iterators)

	_ = creds.Put(context.Background(), credential.Credential{
		Name: "pg_local",
		Type: credential.TypePostgres,
		Data: map[string]any{"host": "localhost", "port": 5432, "user": "noetl", "password": "noetl", "database": "noetl"},
	})

	return &harness{engine: eng, events: events, catalog: cat, postgres: pg, http: httpPlug}
}

// eventsOfType returns every event of type t recorded for executionID.
func (h *harness) eventsOfType(executionID string, t event.Type) []event.Event {
	evs, err := h.events.ByType(context.Background(), executionID, t)
	if err != nil {
		return nil
	}
	return evs
}
