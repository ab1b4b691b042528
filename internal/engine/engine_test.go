package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetl/internal/auth"
	"noetl/internal/domain/event"
	"noetl/internal/domain/playbook"
	"noetl/internal/iterator"
	"noetl/internal/plugin"
	"noetl/internal/sink"
	"noetl/internal/store/catalogstore"
	"noetl/internal/store/credentialstore"
	"noetl/internal/store/eventlog"
	"noetl/internal/template"
)

type incrementPlugin struct{}

func (incrementPlugin) Tool() string { return "increment" }
func (incrementPlugin) Execute(ctx context.Context, cfg plugin.Config, execCtx map[string]any, eval *template.Evaluator, emit plugin.EventEmitter) plugin.Result {
	n, _ := cfg.With["n"].(float64)
	return plugin.Result{Status: plugin.StatusSuccess, Data: n + 1}
}

func newTestEngine() (*Engine, *eventlog.MemoryStore) {
	plugins := plugin.NewRegistry()
	plugins.Register(incrementPlugin{})
	eval := template.New()
	resolver := auth.New(credentialstore.NewMemoryStore(), eval)
	sinks := sink.New(plugins, resolver, eval)
	iterators := iterator.New(plugins, sinks, resolver, eval)
	events := eventlog.NewMemoryStore()
	catalog := catalogstore.NewMemoryStore()
	return New(catalog, events, plugins, resolver, eval, sinks, iterators), events
}

func linearPlaybook() *playbook.Playbook {
	return &playbook.Playbook{
		Name: "linear",
		Path: "linear",
		Workload: map[string]any{
			"n": 0.0,
		},
		Workbook: []playbook.Task{
			{Name: "bump", Tool: "increment", With: map[string]any{"n": "{{ n }}"}},
		},
		Workflow: []playbook.Step{
			{Step: "start", Next: []playbook.Transition{{Step: "bump_step"}}},
			{
				Step: "bump_step",
				Call: &playbook.Call{Name: "bump"},
				Next: []playbook.Transition{
					{
						When: "{{ bump_step.result < 3 }}",
						Then: []playbook.Transition{{Step: "bump_step", With: map[string]any{"n": "{{ bump_step.result }}"}}},
						Else: []playbook.Transition{{Step: "end"}},
					},
				},
			},
		},
	}
}

func TestEngineExecuteLinearPlaybookReachesEnd(t *testing.T) {
	e, events := newTestEngine()
	report, err := e.Execute(context.Background(), ExecuteRequest{Playbook: linearPlaybook(), Payload: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, event.StatusCompleted, report.Status)

	all, _ := events.ByExecution(context.Background(), report.ExecutionID)
	var sawComplete bool
	for _, ev := range all {
		if ev.EventType == event.TypeExecutionComplete {
			sawComplete = true
		}
	}
	assert.True(t, sawComplete)
}

func TestEngineExecuteMissingStepFails(t *testing.T) {
	e, _ := newTestEngine()
	pb := &playbook.Playbook{
		Name:     "broken",
		Path:     "broken",
		Workload: map[string]any{},
		Workflow: []playbook.Step{
			{Step: "start", Next: []playbook.Transition{{Step: "nowhere"}}},
		},
	}
	report, err := e.Execute(context.Background(), ExecuteRequest{Playbook: pb})
	require.Error(t, err)
	assert.Equal(t, event.StatusError, report.Status)
}

func TestTransitionEvaluatorConditional(t *testing.T) {
	eval := template.New()
	events := eventlog.NewMemoryStore()
	te := NewTransitionEvaluator(eval, events)

	clauses := []playbook.Transition{
		{
			When: "{{ n > 1 }}",
			Then: []playbook.Transition{{Step: "big"}},
			Else: []playbook.Transition{{Step: "small"}},
		},
	}

	outcome, err := te.Evaluate(context.Background(), "exec-1", "start", clauses, map[string]any{"n": 2.0})
	require.NoError(t, err)
	assert.Equal(t, "big", outcome.NextStep)

	outcome, err = te.Evaluate(context.Background(), "exec-1", "start", clauses, map[string]any{"n": 0.0})
	require.NoError(t, err)
	assert.Equal(t, "small", outcome.NextStep)
}

func TestTransitionEvaluatorPlainStep(t *testing.T) {
	eval := template.New()
	events := eventlog.NewMemoryStore()
	te := NewTransitionEvaluator(eval, events)

	outcome, err := te.Evaluate(context.Background(), "exec-1", "start", []playbook.Transition{{Step: "next_step"}}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "next_step", outcome.NextStep)
}
