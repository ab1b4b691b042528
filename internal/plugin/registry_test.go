package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetl/internal/template"
)

type stubPlugin struct{ tool string }

func (s stubPlugin) Tool() string { return s.tool }

func (s stubPlugin) Execute(ctx context.Context, cfg Config, execCtx map[string]any, eval *template.Evaluator, emit EventEmitter) Result {
	return Result{Status: StatusSuccess}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(stubPlugin{tool: "http"})

	got, err := r.Get("http")
	require.NoError(t, err)
	assert.Equal(t, "http", got.Tool())
	assert.True(t, r.Has("http"))
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistryRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(stubPlugin{tool: "http"})
	assert.Panics(t, func() { r.Register(stubPlugin{tool: "http"}) })
}

func TestRegistryRegisterEmptyPanics(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() { r.Register(stubPlugin{tool: ""}) })
}

func TestRegistryToolsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(stubPlugin{tool: "postgres"})
	r.Register(stubPlugin{tool: "http"})
	r.Register(stubPlugin{tool: "duckdb"})

	assert.Equal(t, []string{"duckdb", "http", "postgres"}, r.Tools())
}
