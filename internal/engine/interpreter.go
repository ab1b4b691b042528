// Package engine implements the step interpreter, transition evaluator and
// top-level execution engine described in spec §4.8-§4.10.
package engine

import (
	"context"
	"time"

	"noetl/internal/auth"
	"noetl/internal/domain/event"
	"noetl/internal/domain/playbook"
	"noetl/internal/iterator"
	"noetl/internal/logging"
	"noetl/internal/noerr"
	"noetl/internal/plugin"
	"noetl/internal/sink"
	"noetl/internal/store/eventlog"
	"noetl/internal/template"
)

// StepResult is what the interpreter returns after running one step: the
// data bound into context, and an optional override of the step the
// engine should advance to next (used by loop -> end_loop chaining).
type StepResult struct {
	Data     any
	NextStep string
	Err      error
}

// Interpreter executes one playbook step against a live execution context.
type Interpreter struct {
	pb        *playbook.Playbook
	plugins   *plugin.Registry
	sinks     *sink.Writer
	iterators *iterator.Controller
	resolver  *auth.Resolver
	evaluator *template.Evaluator
	events    eventlog.Store
	log       *logging.Logger
}

// NewInterpreter constructs an Interpreter bound to pb.
func NewInterpreter(pb *playbook.Playbook, plugins *plugin.Registry, sinks *sink.Writer, iterators *iterator.Controller, resolver *auth.Resolver, evaluator *template.Evaluator, events eventlog.Store) *Interpreter {
	return &Interpreter{
		pb: pb, plugins: plugins, sinks: sinks, iterators: iterators,
		resolver: resolver, evaluator: evaluator, events: events,
		log: logging.NewDefault("engine.interpreter"),
	}
}

// Run executes the step named stepName, persisting step_start/step_result/
// step_complete (or step_error) events and binding <step>, <step>.result,
// <step>.status and result into ctx (the caller's context map, mutated in
// place per spec §3's step-scope-monotonic invariant).
func (it *Interpreter) Run(ctx context.Context, executionID string, stepName string, execCtx map[string]any) StepResult {
	step, ok := it.pb.FindStep(stepName)
	if !ok {
		err := noerr.New(noerr.KindStep, "step %q not found in playbook %s", stepName, it.pb.Name)
		it.appendEvent(ctx, executionID, event.TypeStepError, stepName, "", event.StatusError, nil, err)
		return StepResult{Err: err}
	}

	rendered, err := it.evaluator.RenderMap(step.With, execCtx)
	if err != nil {
		err = noerr.Wrap(noerr.KindStep, err, "rendering 'with' for step %q", stepName)
		it.appendEvent(ctx, executionID, event.TypeStepError, stepName, "", event.StatusError, nil, err)
		return StepResult{Err: err}
	}
	stepCtx := template.Merge(execCtx, rendered)
	for k, v := range rendered {
		execCtx[k] = v
	}

	it.appendEvent(ctx, executionID, event.TypeStepStart, stepName, stepTypeOf(step), event.StatusInProgress, nil, nil)
	start := time.Now()

	var data any
	var nextStep string

	switch {
	case step.EndLoop != nil:
		data, err = it.runEndLoop(ctx, step, stepCtx, execCtx)
	case step.Loop != nil:
		data, nextStep, err = it.runLoop(ctx, executionID, step, stepCtx, execCtx)
	case step.Call != nil:
		data, err = it.runCall(ctx, executionID, step, stepCtx, execCtx)
	default:
		data = nil
	}

	duration := time.Since(start)

	if err != nil {
		it.appendEvent(ctx, executionID, event.TypeStepError, stepName, stepTypeOf(step), event.StatusError, nil, err)
		return StepResult{Err: err}
	}

	it.bindStepResult(execCtx, stepName, data)
	it.appendEventWithDuration(ctx, executionID, event.TypeStepResult, stepName, stepTypeOf(step), event.StatusSuccess, data, duration)
	it.appendEventWithDuration(ctx, executionID, event.TypeStepComplete, stepName, stepTypeOf(step), event.StatusSuccess, data, duration)

	return StepResult{Data: data, NextStep: nextStep}
}

func stepTypeOf(step playbook.Step) string {
	switch {
	case step.Loop != nil:
		return "loop"
	case step.EndLoop != nil:
		return "end_loop"
	case step.Call != nil:
		return "call"
	default:
		return "terminal"
	}
}

func (it *Interpreter) bindStepResult(ctx map[string]any, stepName string, data any) {
	ctx[stepName] = data
	ctx[stepName+".result"] = data
	ctx[stepName+".status"] = "success"
	ctx["result"] = data
}

func (it *Interpreter) runCall(ctx context.Context, executionID string, step playbook.Step, stepCtx, execCtx map[string]any) (any, error) {
	task, ok := it.pb.FindTask(step.Call.Name)
	if !ok {
		return nil, noerr.New(noerr.KindStep, "call references unknown task %q", step.Call.Name)
	}

	renderedCallWith, err := it.evaluator.RenderMap(step.Call.With, stepCtx)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindStep, err, "rendering call arguments for task %q", task.Name)
	}
	callCtx := template.Merge(stepCtx, renderedCallWith)

	taskFields := plugin.WithFieldExtras(task.With, task.Fields)
	args, err := it.evaluator.RenderMap(taskFields, callCtx)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindStep, err, "rendering call args for task %q", task.Name)
	}
	for k, v := range renderedCallWith {
		if _, ok := args[k]; !ok {
			args[k] = v
		}
	}

	var resolution *auth.Resolution
	if task.Auth != nil {
		resolution, err = it.resolver.Resolve(ctx, task.Auth, callCtx)
		if err != nil {
			return nil, noerr.Wrap(noerr.KindStep, err, "resolving auth for task %q", task.Name)
		}
	}

	p, err := it.plugins.Get(task.Tool)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindStep, err, "looking up plugin for task %q", task.Name)
	}

	emit := func(eventType string, fields map[string]any) {
		it.log.Debug("task event", logging.F("task", task.Name), logging.F("event", eventType))
	}
	cfg := plugin.Config{Tool: task.Tool, With: args, Auth: resolution, Fields: plugin.NormalizeFields(task.Fields)}
	result := p.Execute(ctx, cfg, callCtx, it.evaluator, emit)
	if result.Status == plugin.StatusError {
		return nil, noerr.New(noerr.KindPlugin, "task %q failed: %s", task.Name, result.Error)
	}

	data := result.Data
	if task.Return != "" {
		returnCtx := template.Clone(callCtx)
		returnCtx["result"] = data
		rendered, err := it.evaluator.Render(task.Return, returnCtx)
		if err != nil {
			return nil, noerr.Wrap(noerr.KindStep, err, "applying return transform for task %q", task.Name)
		}
		data = rendered
	}

	if task.Sink != nil {
		sinkCtx := template.Clone(callCtx)
		sinkCtx["result"] = data
		noop := func(string, map[string]any) {}
		if _, err := it.sinks.Write(ctx, task.Sink, sinkCtx, noop); err != nil {
			return nil, noerr.Wrap(noerr.KindSink, err, "executing sink for task %q", task.Name)
		}
	}

	return data, nil
}

func (it *Interpreter) runLoop(ctx context.Context, executionID string, step playbook.Step, stepCtx, execCtx map[string]any) (any, string, error) {
	emit := func(t event.Type, fields map[string]any) {
		it.appendEvent(ctx, executionID, t, step.Step, "loop", event.StatusInProgress, fields, nil)
	}

	var result *iterator.Result
	var err error
	if step.Loop.Pagination != nil {
		result, err = it.iterators.RunPagination(ctx, step.Loop.Pagination, stepCtx, emit)
	} else {
		result, err = it.iterators.Run(ctx, step.Loop, stepCtx, emit)
	}
	if err != nil {
		return nil, "", err
	}

	var nextStep string
	if target, ok := it.pb.FindMatchingEndLoop(step.Step); ok {
		nextStep = target
	}

	data := map[string]any{"status": result.Status, "data": result.Data}
	if len(result.Errors) > 0 {
		data["errors"] = result.Errors
	}
	return data, nextStep, nil
}

func (it *Interpreter) runEndLoop(ctx context.Context, step playbook.Step, stepCtx, execCtx map[string]any) (any, error) {
	loopData, _ := template.Lookup(execCtx, step.EndLoop.Loop)
	resultCtx := template.Clone(stepCtx)
	resultCtx["loop"] = loopData

	rendered, err := it.evaluator.RenderMap(step.EndLoop.Result, resultCtx)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindStep, err, "rendering end_loop result for %q", step.EndLoop.Loop)
	}
	for k, v := range rendered {
		execCtx[k] = v
	}
	return rendered, nil
}

func (it *Interpreter) appendEvent(ctx context.Context, executionID string, eventType event.Type, nodeName, nodeType string, status event.Status, data any, err error) {
	it.appendEventWithDuration(ctx, executionID, eventType, nodeName, nodeType, status, data, 0)
	if err != nil {
		it.log.Error("step error", logging.F("step", nodeName), logging.F("error", err.Error()))
	}
}

func (it *Interpreter) appendEventWithDuration(ctx context.Context, executionID string, eventType event.Type, nodeName, nodeType string, status event.Status, data any, duration time.Duration) {
	ev := &event.Event{
		ExecutionID:  executionID,
		EventType:    eventType,
		NodeName:     nodeName,
		NodeType:     nodeType,
		Status:       status,
		DurationMS:   duration.Milliseconds(),
		OutputResult: data,
	}
	if err := it.events.Append(ctx, ev); err != nil {
		it.log.Error("failed to append event", logging.F("event_type", string(eventType)), logging.F("error", err.Error()))
	}
}
