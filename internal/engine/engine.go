package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"noetl/internal/auth"
	"noetl/internal/domain/catalog"
	"noetl/internal/domain/event"
	"noetl/internal/domain/playbook"
	"noetl/internal/iterator"
	"noetl/internal/logging"
	"noetl/internal/noerr"
	"noetl/internal/plugin"
	"noetl/internal/sink"
	"noetl/internal/store/catalogstore"
	"noetl/internal/store/eventlog"
	"noetl/internal/template"
)

// MaxSteps bounds a single execution's step/transition loop, guarding
// against a malformed playbook cycling forever with no "end" transition.
const MaxSteps = 10000

// Engine is the top-level execution engine described in spec §4.10: it
// loads a playbook, seeds context from workload and inbound payload, and
// drives the execute-step / evaluate-transitions / advance loop until a
// terminal "end" or a fatal error.
type Engine struct {
	catalog   catalogstore.Store
	events    eventlog.Store
	plugins   *plugin.Registry
	resolver  *auth.Resolver
	evaluator *template.Evaluator
	sinks     *sink.Writer
	iterators *iterator.Controller
	log       *logging.Logger
}

// New constructs an Engine from its dependencies.
func New(catalogStore catalogstore.Store, events eventlog.Store, plugins *plugin.Registry, resolver *auth.Resolver, evaluator *template.Evaluator, sinks *sink.Writer, iterators *iterator.Controller) *Engine {
	return &Engine{
		catalog: catalogStore, events: events, plugins: plugins,
		resolver: resolver, evaluator: evaluator, sinks: sinks, iterators: iterators,
		log: logging.NewDefault("engine"),
	}
}

// ExecuteRequest selects a playbook (by catalog path/version, or a
// pre-parsed document) and the inbound payload merged over its workload.
type ExecuteRequest struct {
	Path        string
	Version     string
	Playbook    *playbook.Playbook
	Payload     map[string]any
	ExecutionID string
}

// ExecutionReport is the engine's return value: the execution id, the
// terminal status, and a mapping of successful step names to their
// results, collected from each step's result as the run progresses (the
// same data each step_result event carries).
type ExecutionReport struct {
	ExecutionID string
	Status      event.Status
	Steps       map[string]any
	Duration    time.Duration
	Err         error
}

// Execute runs req.Playbook (or the catalog entry at req.Path/req.Version)
// to completion, per spec §4.10.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) (*ExecutionReport, error) {
	pb, err := e.resolvePlaybook(ctx, req)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindCatalog, err, "resolving playbook for execution")
	}

	executionID := req.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}

	execCtx := template.Merge(pb.Workload, req.Payload)
	execCtx["workload"] = pb.Workload

	start := time.Now()
	e.appendEvent(ctx, executionID, event.TypeExecutionStart, "", "execution", event.StatusInProgress, map[string]any{
		"playbook": pb.Path, "version": pb.Version,
	})

	interp := NewInterpreter(pb, e.plugins, e.sinks, e.iterators, e.resolver, e.evaluator, e.events)
	transitions := NewTransitionEvaluator(e.evaluator, e.events)

	steps := make(map[string]any)
	current := playbook.StartStep

	for i := 0; i < MaxSteps; i++ {
		if current == playbook.EndStep {
			duration := time.Since(start)
			e.appendEventWithDuration(ctx, executionID, event.TypeExecutionComplete, "", "execution", event.StatusCompleted, map[string]any{"steps": len(steps)}, duration)
			return &ExecutionReport{ExecutionID: executionID, Status: event.StatusCompleted, Steps: steps, Duration: duration}, nil
		}

		step, ok := pb.FindStep(current)
		if !ok {
			err := noerr.New(noerr.KindStep, "execution %s: no such step %q", executionID, current)
			return e.fail(ctx, executionID, steps, start, err)
		}

		result := interp.Run(ctx, executionID, current, execCtx)
		if result.Err != nil {
			return e.fail(ctx, executionID, steps, start, result.Err)
		}
		steps[current] = result.Data

		if result.NextStep != "" {
			current = result.NextStep
			continue
		}

		outcome, err := transitions.Evaluate(ctx, executionID, current, step.Next, execCtx)
		if err != nil {
			return e.fail(ctx, executionID, steps, start, err)
		}
		if outcome == nil {
			if current == playbook.EndStep {
				continue
			}
			err := noerr.New(noerr.KindStep, "execution %s: step %q has no matching transition", executionID, current)
			return e.fail(ctx, executionID, steps, start, err)
		}

		for k, v := range outcome.With {
			execCtx[k] = v
		}
		current = outcome.NextStep
	}

	err = noerr.New(noerr.KindStep, "execution %s: exceeded %d steps without reaching 'end'", executionID, MaxSteps)
	return e.fail(ctx, executionID, steps, start, err)
}

func (e *Engine) fail(ctx context.Context, executionID string, steps map[string]any, start time.Time, err error) (*ExecutionReport, error) {
	duration := time.Since(start)
	e.appendEventWithDuration(ctx, executionID, event.TypeExecutionError, "", "execution", event.StatusError, map[string]any{"error": err.Error()}, duration)
	e.log.Error("execution failed", logging.F("execution_id", executionID), logging.F("error", err.Error()))
	return &ExecutionReport{ExecutionID: executionID, Status: event.StatusError, Steps: steps, Duration: duration, Err: err}, err
}

func (e *Engine) resolvePlaybook(ctx context.Context, req ExecuteRequest) (*playbook.Playbook, error) {
	if req.Playbook != nil {
		return req.Playbook, nil
	}
	var entry *catalog.Entry
	var err error
	if req.Version != "" {
		entry, err = e.catalog.Fetch(ctx, req.Path, req.Version)
	} else {
		entry, err = e.catalog.Latest(ctx, req.Path)
	}
	if err != nil {
		return nil, err
	}
	return playbook.Parse([]byte(entry.Content))
}

func (e *Engine) appendEvent(ctx context.Context, executionID string, eventType event.Type, nodeName, nodeType string, status event.Status, metadata map[string]any) {
	e.appendEventWithDuration(ctx, executionID, eventType, nodeName, nodeType, status, metadata, 0)
}

func (e *Engine) appendEventWithDuration(ctx context.Context, executionID string, eventType event.Type, nodeName, nodeType string, status event.Status, metadata map[string]any, duration time.Duration) {
	ev := &event.Event{
		ExecutionID: executionID,
		EventType:   eventType,
		NodeName:    nodeName,
		NodeType:    nodeType,
		Status:      status,
		DurationMS:  duration.Milliseconds(),
		Metadata:    metadata,
	}
	if err := e.events.Append(ctx, ev); err != nil {
		e.log.Error("failed to append execution event", logging.F("event_type", string(eventType)), logging.F("error", err.Error()))
	}
}
