package iterator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"noetl/internal/auth"
	"noetl/internal/domain/event"
	"noetl/internal/domain/playbook"
	"noetl/internal/noerr"
	"noetl/internal/plugin"
	"noetl/internal/template"
)

// DefaultMaxIterations bounds a pagination loop lacking an explicit
// max_iterations, per spec §4.7.
const DefaultMaxIterations = 1000

// RunPagination executes the paginated HTTP loop variant: repeated HTTP
// calls driven by continue_while/next_page templates, merged per
// merge_strategy, optionally sinking each page before continuing.
func (c *Controller) RunPagination(ctx context.Context, p *playbook.Pagination, execCtx map[string]any, emit Emitter) (*Result, error) {
	if emit == nil {
		emit = func(event.Type, map[string]any) {}
	}
	if p.Request == nil {
		return nil, noerr.New(noerr.KindIteration, "pagination block requires a request task")
	}

	maxIter := p.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	mergeStrategy := p.MergeStrategy
	if mergeStrategy == "" {
		mergeStrategy = "append"
	}

	httpPlugin, err := c.plugins.Get(p.Request.Tool)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindIteration, err, "looking up pagination request tool")
	}

	emit(event.TypeIteratorStarted, map[string]any{"pagination": true})

	accumulated := []any{}
	var lastResponse any
	requestArgs := plugin.WithFieldExtras(template.Clone(p.Request.Args), p.Request.Fields)

	iteration := 0
	for ; iteration < maxIter; iteration++ {
		iterCtx := template.Clone(execCtx)
		iterCtx["iteration"] = iteration
		iterCtx["accumulated"] = accumulated
		iterCtx["response"] = lastResponse

		args, err := c.evaluator.RenderMap(requestArgs, iterCtx)
		if err != nil {
			return nil, noerr.Wrap(noerr.KindIteration, err, "rendering pagination request args")
		}

		var resolution *auth.Resolution
		if p.Request.Auth != nil {
			resolution, err = c.resolver.Resolve(ctx, p.Request.Auth, iterCtx)
			if err != nil {
				return nil, noerr.Wrap(noerr.KindIteration, err, "resolving pagination request auth")
			}
		}

		emit(event.TypeIterationStarted, map[string]any{"index": iteration})

		cfg := plugin.Config{Tool: p.Request.Tool, With: args, Auth: resolution, Fields: plugin.NormalizeFields(p.Request.Fields)}
		result, err := executeWithRetry(ctx, httpPlugin, cfg, iterCtx, c.evaluator, p.Retry)
		if err != nil {
			emit(event.TypeIterationFailed, map[string]any{"index": iteration, "error": err.Error()})
			return nil, noerr.Wrap(noerr.KindIteration, err, "pagination request failed at iteration %d", iteration)
		}
		lastResponse = result.Data

		if p.Sink != nil {
			emit(event.TypeSaveStarted, map[string]any{"index": iteration})
			sinkCtx := template.Clone(iterCtx)
			sinkCtx["response"] = lastResponse
			noop := func(string, map[string]any) {}
			if _, err := c.sinks.Write(ctx, p.Sink, sinkCtx, noop); err != nil {
				emit(event.TypeSaveFailed, map[string]any{"index": iteration, "error": err.Error()})
				return nil, noerr.Wrap(noerr.KindIteration, err, "pagination page sink failed at iteration %d", iteration)
			}
			emit(event.TypeSaveCompleted, map[string]any{"index": iteration})
		}

		accumulated = mergePage(accumulated, lastResponse, mergeStrategy, p.MergePath)
		emit(event.TypeIterationCompleted, map[string]any{"index": iteration})

		if p.ContinueWhile == "" {
			break
		}
		continueCtx := template.Clone(execCtx)
		continueCtx["iteration"] = iteration
		continueCtx["accumulated"] = accumulated
		continueCtx["response"] = lastResponse
		cont, err := c.evaluator.Render(p.ContinueWhile, continueCtx)
		if err != nil {
			return nil, noerr.Wrap(noerr.KindIteration, err, "evaluating continue_while")
		}
		if !truthy(cont) {
			break
		}

		nextCtx := template.Clone(continueCtx)
		nextArgs, err := c.evaluator.RenderMap(p.NextPage, nextCtx)
		if err != nil {
			return nil, noerr.Wrap(noerr.KindIteration, err, "rendering next_page template")
		}
		requestArgs = template.Merge(requestArgs, nextArgs)
	}

	emit(event.TypeIteratorCompleted, map[string]any{"count": len(accumulated)})
	return &Result{Status: "success", Data: accumulated}, nil
}

func executeWithRetry(ctx context.Context, p plugin.Plugin, cfg plugin.Config, execCtx map[string]any, eval *template.Evaluator, retry *playbook.Retry) (plugin.Result, error) {
	if retry == nil || retry.MaxAttempts <= 1 {
		noop := func(string, map[string]any) {}
		result := p.Execute(ctx, cfg, execCtx, eval, noop)
		if result.Status == plugin.StatusError {
			return result, fmt.Errorf("%s", result.Error)
		}
		return result, nil
	}

	var bo backoff.BackOff
	initial := time.Duration(retry.InitialDelay) * time.Second
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	switch retry.Backoff {
	case "fixed":
		bo = backoff.NewConstantBackOff(initial)
	default: // exponential
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = initial
		if retry.MaxDelay > 0 {
			eb.MaxInterval = time.Duration(retry.MaxDelay) * time.Second
		}
		bo = eb
	}
	bo = backoff.WithMaxRetries(bo, uint64(retry.MaxAttempts-1))

	var result plugin.Result
	err := backoff.Retry(func() error {
		noop := func(string, map[string]any) {}
		result = p.Execute(ctx, cfg, execCtx, eval, noop)
		if result.Status == plugin.StatusError {
			return fmt.Errorf("%s", result.Error)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	return result, err
}

// mergePage folds one page's response into accumulated per strategy:
// append adds the whole response as one element, extend flattens a
// response array/merge_path slice into accumulated, replace discards
// prior accumulation, collect behaves like append, and sink_only drops
// the page from accumulated entirely (it was already persisted above).
func mergePage(accumulated []any, response any, strategy, mergePath string) []any {
	value := response
	if mergePath != "" {
		if data, err := json.Marshal(response); err == nil {
			if result := gjson.GetBytes(data, mergePath); result.Exists() {
				value = result.Value()
			}
		}
	}

	switch strategy {
	case "extend":
		if items, ok := value.([]any); ok {
			return append(accumulated, items...)
		}
		return append(accumulated, value)
	case "replace":
		if items, ok := value.([]any); ok {
			return items
		}
		return []any{value}
	case "sink_only":
		return accumulated
	default: // append, collect
		return append(accumulated, value)
	}
}
