package engine

import (
	"context"

	"noetl/internal/domain/event"
	"noetl/internal/domain/playbook"
	"noetl/internal/noerr"
	"noetl/internal/store/eventlog"
	"noetl/internal/template"
)

// TransitionOutcome is one matched `next:` clause: the step to advance to,
// any with-params it carries, and a human-readable condition tag recorded
// alongside the step_transition event for offline analysis.
type TransitionOutcome struct {
	NextStep  string
	With      map[string]any
	Condition string
}

// TransitionEvaluator evaluates a step's `next:` clauses against the live
// context, per spec §4.9.
type TransitionEvaluator struct {
	evaluator *template.Evaluator
	events    eventlog.Store
}

// NewTransitionEvaluator constructs a TransitionEvaluator.
func NewTransitionEvaluator(evaluator *template.Evaluator, events eventlog.Store) *TransitionEvaluator {
	return &TransitionEvaluator{evaluator: evaluator, events: events}
}

// Evaluate walks clauses in order and returns the first match. A plain step
// name or a `{step, with?}` clause always matches. A `{when, then, else?}`
// clause matches whichever branch `when` selects, and recurses into that
// branch's own clause list. The reserved name "end" halts execution and is
// returned as-is with no further lookup.
//
// This evaluator does not implement the ML-recommended-next-step selection
// extension point mentioned in spec §4.9; first-match-in-order is the only
// selection strategy.
func (e *TransitionEvaluator) Evaluate(ctx context.Context, executionID, fromStep string, clauses []playbook.Transition, execCtx map[string]any) (*TransitionOutcome, error) {
	outcome, err := e.evaluateClauses(clauses, execCtx)
	if err != nil {
		return nil, noerr.Wrap(noerr.KindStep, err, "evaluating transitions for step %q", fromStep)
	}
	if outcome == nil {
		return nil, nil
	}

	e.logTransition(ctx, executionID, fromStep, outcome)
	return outcome, nil
}

func (e *TransitionEvaluator) evaluateClauses(clauses []playbook.Transition, execCtx map[string]any) (*TransitionOutcome, error) {
	for _, clause := range clauses {
		switch {
		case clause.When != "":
			val, err := e.evaluator.Render(clause.When, execCtx)
			if err != nil {
				return nil, err
			}
			if truthyValue(val) {
				if len(clause.Then) == 0 {
					return nil, noerr.New(noerr.KindStep, "transition 'when' clause matched but has no 'then' branch")
				}
				return e.evaluateClauses(clause.Then, execCtx)
			}
			if len(clause.Else) > 0 {
				return e.evaluateClauses(clause.Else, execCtx)
			}
			continue
		case clause.Step != "":
			with, err := e.evaluator.RenderMap(clause.With, execCtx)
			if err != nil {
				return nil, err
			}
			return &TransitionOutcome{NextStep: clause.Step, With: with, Condition: conditionTag(clause)}, nil
		}
	}
	return nil, nil
}

func conditionTag(clause playbook.Transition) string {
	if clause.When != "" {
		return clause.When
	}
	return "unconditional"
}

func truthyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	default:
		return true
	}
}

func (e *TransitionEvaluator) logTransition(ctx context.Context, executionID, fromStep string, outcome *TransitionOutcome) {
	ev := &event.Event{
		ExecutionID: executionID,
		EventType:   event.TypeStepTransition,
		NodeName:    fromStep,
		NodeType:    "transition",
		Status:      event.StatusCompleted,
		Metadata: map[string]any{
			"next_step": outcome.NextStep,
			"with":      outcome.With,
			"condition": outcome.Condition,
		},
	}
	_ = e.events.Append(ctx, ev)
}
