package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"noetl/internal/auth"
	"noetl/internal/config"
	"noetl/internal/engine"
	"noetl/internal/iterator"
	"noetl/internal/plugin"
	"noetl/internal/plugin/code"
	"noetl/internal/plugin/duckdb"
	httpplugin "noetl/internal/plugin/http"
	"noetl/internal/plugin/postgres"
	"noetl/internal/plugin/transfer"
	"noetl/internal/sink"
	"noetl/internal/store/catalogstore"
	"noetl/internal/store/credentialstore"
	"noetl/internal/store/eventlog"
	"noetl/internal/store/migrations"
	"noetl/internal/store/platform"
	"noetl/internal/template"
)

// Deps bundles the dependency graph every runtime command needs: stores,
// the plugin registry, auth resolver, sink writer, iterator controller and
// the top-level execution engine.
type Deps struct {
	Pool        *pgxpool.Pool
	Catalog     catalogstore.Store
	Credentials credentialstore.Store
	Events      eventlog.Store
	Plugins     *plugin.Registry
	Resolver    *auth.Resolver
	Evaluator   *template.Evaluator
	Sinks       *sink.Writer
	Iterators   *iterator.Controller
	Engine      *engine.Engine
}

// BuildDeps wires the full dependency graph described in SPEC_FULL.md §3.
// When mock is true (a command's --mock flag) it uses the in-memory
// catalog/credential/event stores instead of opening Postgres; otherwise a
// Postgres that cannot be reached within the startup deadline is an error.
func BuildDeps(ctx context.Context, cfg *config.Config, mock bool) (*Deps, error) {
	d := &Deps{}

	if mock {
		d.Catalog = catalogstore.NewMemoryStore()
		d.Credentials = credentialstore.NewMemoryStore()
		d.Events = eventlog.NewMemoryStore()
	} else {
		pool, err := platform.OpenWithRetry(ctx, cfg.Database.ConnString(), cfg.Database.StartupDeadline(), cfg.Database.RetryInterval())
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		if err := migrations.Apply(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
		d.Pool = pool
		d.Catalog = catalogstore.NewPostgresStore(pool)
		d.Credentials = credentialstore.NewPostgresStore(pool)
		d.Events = eventlog.NewPostgresStore(pool)
	}

	d.Evaluator = template.New()
	d.Resolver = auth.New(d.Credentials, d.Evaluator)

	d.Plugins = plugin.NewRegistry()
	d.Plugins.Register(httpplugin.New(30*time.Second, cfg.HTTP.MockLocal))
	d.Plugins.Register(code.New())
	if d.Pool != nil {
		d.Plugins.Register(postgres.New(d.Pool))
	}
	d.Plugins.Register(duckdb.New(""))
	d.Plugins.Register(transfer.New(cfg.Database.ConnString(), nil))

	d.Sinks = sink.New(d.Plugins, d.Resolver, d.Evaluator)
	d.Iterators = iterator.New(d.Plugins, d.Sinks, d.Resolver, d.Evaluator)
	d.Engine = engine.New(d.Catalog, d.Events, d.Plugins, d.Resolver, d.Evaluator, d.Sinks, d.Iterators)

	return d, nil
}

// Close releases any held resources (the Postgres pool, if one was opened).
func (d *Deps) Close() {
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// LoadConfig reads the given .env file (if any) and decodes the process
// environment into a config.Config, per spec §6 "Environment variables".
func LoadConfig(envFile string) (*config.Config, error) {
	return config.Load(envFile)
}
