package iterator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetl/internal/auth"
	"noetl/internal/domain/event"
	"noetl/internal/domain/playbook"
	"noetl/internal/plugin"
	"noetl/internal/sink"
	"noetl/internal/store/credentialstore"
	"noetl/internal/template"
)

type doublePlugin struct{}

func (doublePlugin) Tool() string { return "double" }
func (doublePlugin) Execute(ctx context.Context, cfg plugin.Config, execCtx map[string]any, eval *template.Evaluator, emit plugin.EventEmitter) plugin.Result {
	n, _ := cfg.With["n"].(float64)
	return plugin.Result{Status: plugin.StatusSuccess, Data: n * 2}
}

func newTestController() *Controller {
	plugins := plugin.NewRegistry()
	plugins.Register(doublePlugin{})
	eval := template.New()
	resolver := auth.New(credentialstore.NewMemoryStore(), eval)
	sinks := sink.New(plugins, resolver, eval)
	return New(plugins, sinks, resolver, eval)
}

func TestResolveCollectionExplicit(t *testing.T) {
	eval := template.New()
	loop := &playbook.Loop{Collection: "{{ items }}", Element: "item"}
	got, err := ResolveCollection(eval, loop, map[string]any{"items": []any{1.0, 2.0, 3.0}})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, got)
}

func TestResolveCollectionFallback(t *testing.T) {
	eval := template.New()
	loop := &playbook.Loop{Element: "row"}
	got, err := ResolveCollection(eval, loop, map[string]any{"with": map[string]any{"rows": []any{"a", "b"}}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)
}

func TestChunkItems(t *testing.T) {
	items := []any{1, 2, 3, 4, 5}
	got := chunkItems(items, 2)
	assert.Equal(t, [][]any{{1, 2}, {3, 4}, {5}}, got)
}

func TestChunkItemsSingleton(t *testing.T) {
	items := []any{1, 2}
	got := chunkItems(items, 0)
	assert.Equal(t, [][]any{{1}, {2}}, got)
}

func TestFilterItems(t *testing.T) {
	eval := template.New()
	loop := &playbook.Loop{Element: "n", Where: "{{ n > 2 }}"}
	got, err := filterItems(eval, loop, []any{1.0, 2.0, 3.0, 4.0}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []any{3.0, 4.0}, got)
}

func TestSortItems(t *testing.T) {
	eval := template.New()
	loop := &playbook.Loop{Element: "n", OrderBy: "{{ n }}"}
	got := sortItems(eval, loop, []any{3.0, 1.0, 2.0}, map[string]any{})
	assert.Equal(t, []any{1.0, 2.0, 3.0}, got)
}

func TestControllerRunSequential(t *testing.T) {
	c := newTestController()
	loop := &playbook.Loop{
		Collection: "{{ items }}",
		Element:    "item",
		Task: &playbook.NestedTask{
			Tool: "double",
			Args: map[string]any{"n": "{{ item }}"},
		},
	}

	var events []string
	emit := func(t event.Type, fields map[string]any) { events = append(events, string(t)) }

	result, err := c.Run(context.Background(), loop, map[string]any{"items": []any{1.0, 2.0, 3.0}}, emit)
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, []any{2.0, 4.0, 6.0}, result.Data)
	assert.Contains(t, events, string(event.TypeIteratorStarted))
	assert.Contains(t, events, string(event.TypeIteratorCompleted))
}

func TestControllerRunParallelPreservesOrder(t *testing.T) {
	c := newTestController()
	loop := &playbook.Loop{
		Collection:  "{{ items }}",
		Element:     "item",
		Mode:        "async",
		Concurrency: 4,
		Task: &playbook.NestedTask{
			Tool: "double",
			Args: map[string]any{"n": "{{ item }}"},
		},
	}

	items := make([]any, 20)
	for i := range items {
		items[i] = float64(i)
	}

	noop := func(event.Type, map[string]any) {}
	result, err := c.Run(context.Background(), loop, map[string]any{"items": items}, noop)
	require.NoError(t, err)
	for i, v := range result.Data {
		assert.Equal(t, float64(i)*2, v, fmt.Sprintf("index %d", i))
	}
}
