// Package iterator implements the loop controller described in spec §4.7:
// collection resolution, filter/sort/limit/chunk, sequential or bounded
// concurrent execution of a nested task per item, per-item sinks, and the
// paginated HTTP variant.
package iterator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"noetl/internal/auth"
	"noetl/internal/domain/event"
	"noetl/internal/domain/playbook"
	"noetl/internal/noerr"
	"noetl/internal/plugin"
	"noetl/internal/sink"
	"noetl/internal/template"
)

// DefaultConcurrency is used when mode is async/parallel and no explicit
// concurrency is configured.
const DefaultConcurrency = 8

// Result is the iterator's aggregate return value.
type Result struct {
	Status string
	Data   []any
	Errors []string
}

// IterationResult is one item's outcome, tagged with its logical index so
// out-of-order completions can be reassembled.
type IterationResult struct {
	Index  int
	Output any
	Err    error
}

// Controller runs loop bodies against the plugin registry and sink writer.
type Controller struct {
	plugins   *plugin.Registry
	sinks     *sink.Writer
	resolver  *auth.Resolver
	evaluator *template.Evaluator
}

// New constructs a Controller.
func New(plugins *plugin.Registry, sinks *sink.Writer, resolver *auth.Resolver, evaluator *template.Evaluator) *Controller {
	return &Controller{plugins: plugins, sinks: sinks, resolver: resolver, evaluator: evaluator}
}

// Emitter reports loop-scoped events (iterator_started/completed,
// iteration_started/completed/failed/filtered, save_started/completed/failed).
type Emitter func(eventType event.Type, fields map[string]any)

// Run executes loop against execCtx, returning the assembled result in
// logical order regardless of completion order under parallel mode.
func (c *Controller) Run(ctx context.Context, loop *playbook.Loop, execCtx map[string]any, emit Emitter) (*Result, error) {
	if emit == nil {
		emit = func(event.Type, map[string]any) {}
	}
	emit(event.TypeIteratorStarted, map[string]any{"collection": loop.Collection})

	items, err := ResolveCollection(c.evaluator, loop, execCtx)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindIteration, err, "resolving loop collection")
	}

	items, err = filterItems(c.evaluator, loop, items, execCtx)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindIteration, err, "filtering loop items")
	}

	items = sortItems(c.evaluator, loop, items, execCtx)

	if loop.Limit > 0 && len(items) > loop.Limit {
		items = items[:loop.Limit]
	}

	batches := chunkItems(items, loop.Chunk)

	results := make([]IterationResult, len(batches))
	async := loop.Mode == "async" || loop.Mode == "parallel"
	concurrency := loop.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	if async && len(batches) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		var mu sync.Mutex
		for i, batch := range batches {
			i, batch := i, batch
			g.Go(func() error {
				res := c.runIteration(gctx, loop, i, batch, execCtx, emit)
				mu.Lock()
				results[i] = res
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, batch := range batches {
			results[i] = c.runIteration(ctx, loop, i, batch, execCtx, emit)
		}
	}

	out := make([]any, len(results))
	var errs []string
	status := "success"
	for i, r := range results {
		out[i] = r.Output
		if r.Err != nil {
			status = "error"
			errs = append(errs, fmt.Sprintf("item %d: %v", r.Index, r.Err))
		}
	}

	emit(event.TypeIteratorCompleted, map[string]any{"count": len(out), "status": status})
	return &Result{Status: status, Data: out, Errors: errs}, nil
}

func (c *Controller) runIteration(ctx context.Context, loop *playbook.Loop, index int, batch []any, execCtx map[string]any, emit Emitter) IterationResult {
	var item any = batch
	if len(batch) == 1 && loop.Chunk <= 1 {
		item = batch[0]
	}

	loopCtx := template.Clone(execCtx)
	loopCtx[loop.Element] = item
	if loop.Enumerate {
		loopCtx["index"] = index
	}
	loopCtx["_loop"] = map[string]any{
		"loop_name":     loop.Element,
		"current_index": index,
		"current_item":  item,
	}
	loopCtx["parent"] = execCtx

	emit(event.TypeIterationStarted, map[string]any{"index": index, "item": item})

	if loop.Task == nil {
		emit(event.TypeIterationCompleted, map[string]any{"index": index})
		return IterationResult{Index: index, Output: item}
	}

	args, err := c.evaluator.RenderMap(plugin.WithFieldExtras(loop.Task.Args, loop.Task.Fields), loopCtx)
	if err != nil {
		emit(event.TypeIterationFailed, map[string]any{"index": index, "error": err.Error()})
		return IterationResult{Index: index, Err: err}
	}

	p, err := c.plugins.Get(loop.Task.Tool)
	if err != nil {
		emit(event.TypeIterationFailed, map[string]any{"index": index, "error": err.Error()})
		return IterationResult{Index: index, Err: err}
	}

	var resolution *auth.Resolution
	if loop.Task.Auth != nil {
		resolution, err = c.resolver.Resolve(ctx, loop.Task.Auth, loopCtx)
		if err != nil {
			emit(event.TypeIterationFailed, map[string]any{"index": index, "error": err.Error()})
			return IterationResult{Index: index, Err: err}
		}
	}

	cfg := plugin.Config{Tool: loop.Task.Tool, With: args, Auth: resolution, Fields: plugin.NormalizeFields(loop.Task.Fields)}
	taskEmit := func(eventType string, fields map[string]any) {}
	result := p.Execute(ctx, cfg, loopCtx, c.evaluator, taskEmit)
	if result.Status == plugin.StatusError {
		emit(event.TypeIterationFailed, map[string]any{"index": index, "error": result.Error})
		return IterationResult{Index: index, Err: fmt.Errorf("%s", result.Error)}
	}

	output := result.Data
	if loop.Task.Sink != nil {
		emit(event.TypeSaveStarted, map[string]any{"index": index})
		saveCtx := template.Clone(loopCtx)
		saveCtx["result"] = output
		if _, err := c.sinks.Write(ctx, loop.Task.Sink, saveCtx, taskEmit); err != nil {
			emit(event.TypeSaveFailed, map[string]any{"index": index, "error": err.Error()})
			return IterationResult{Index: index, Err: err}
		}
		emit(event.TypeSaveCompleted, map[string]any{"index": index})
	}

	emit(event.TypeIterationCompleted, map[string]any{"index": index})
	return IterationResult{Index: index, Output: output}
}

// ResolveCollection evaluates loop.Collection against ctx and coerces the
// result to a sequence. If Collection is empty, it falls back to an
// element-name-derived key under with/context.data|input|work, per
// spec §4.7.
func ResolveCollection(eval *template.Evaluator, loop *playbook.Loop, ctx map[string]any) ([]any, error) {
	if loop.Collection != "" {
		val, err := eval.Render(loop.Collection, ctx)
		if err != nil {
			return nil, err
		}
		return coerceSequence(val), nil
	}

	candidates := []string{loop.Element, loop.Element + "s"}
	for _, base := range []string{"", "with.", "context.data.", "context.input.", "context.work.", "data.", "input.", "work."} {
		for _, name := range candidates {
			if val, ok := template.Lookup(ctx, base+name); ok {
				return coerceSequence(val), nil
			}
		}
	}
	return nil, noerr.New(noerr.KindIteration, "could not resolve a collection for element %q", loop.Element)
}

func coerceSequence(val any) []any {
	switch v := val.(type) {
	case []any:
		return v
	case nil:
		return nil
	default:
		return []any{v}
	}
}

func filterItems(eval *template.Evaluator, loop *playbook.Loop, items []any, ctx map[string]any) ([]any, error) {
	if loop.Where == "" {
		return items, nil
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		itemCtx := template.Clone(ctx)
		itemCtx[loop.Element] = item
		val, err := eval.Render(loop.Where, itemCtx)
		if err != nil {
			return nil, err
		}
		if truthy(val) {
			out = append(out, item)
		}
	}
	return out, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	default:
		return true
	}
}

// sortItems sorts by order_by, stably, preserving original order on error
// or tie (best-effort per spec §4.7 step 4).
func sortItems(eval *template.Evaluator, loop *playbook.Loop, items []any, ctx map[string]any) []any {
	if loop.OrderBy == "" {
		return items
	}
	type keyed struct {
		item any
		key  any
		idx  int
	}
	keys := make([]keyed, len(items))
	ok := true
	for i, item := range items {
		itemCtx := template.Clone(ctx)
		itemCtx[loop.Element] = item
		val, err := eval.Render(loop.OrderBy, itemCtx)
		if err != nil {
			ok = false
			break
		}
		keys[i] = keyed{item: item, key: val, idx: i}
	}
	if !ok {
		return items
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return lessValue(keys[i].key, keys[j].key)
	})
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k.item
	}
	return out
}

func lessValue(a, b any) bool {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			return x < y
		}
	case string:
		if y, ok := b.(string); ok {
			return x < y
		}
	}
	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

func chunkItems(items []any, size int) [][]any {
	if size <= 1 {
		out := make([][]any, len(items))
		for i, item := range items {
			out[i] = []any{item}
		}
		return out
	}
	var out [][]any
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
