// Package event defines the immutable event record emitted by every engine
// component and appended to the event log (spec §3, §4.2).
package event

import "time"

// Type enumerates every event kind the engine can emit.
type Type string

const (
	TypeExecutionStart    Type = "execution_start"
	TypeExecutionComplete Type = "execution_complete"
	TypeExecutionError    Type = "execution_error"

	TypeStepStart      Type = "step_start"
	TypeStepComplete   Type = "step_complete"
	TypeStepResult     Type = "step_result"
	TypeStepError      Type = "step_error"
	TypeStepTransition Type = "step_transition"

	TypeTaskStart    Type = "task_start"
	TypeTaskExecute  Type = "task_execute"
	TypeTaskComplete Type = "task_complete"
	TypeTaskError    Type = "task_error"

	TypeIteratorStarted   Type = "iterator_started"
	TypeIteratorCompleted Type = "iterator_completed"

	TypeIterationStarted   Type = "iteration_started"
	TypeIterationCompleted Type = "iteration_completed"
	TypeIterationFailed    Type = "iteration_failed"
	TypeIterationFiltered  Type = "iteration_filtered"

	TypeSaveStarted   Type = "save_started"
	TypeSaveCompleted Type = "save_completed"
	TypeSaveFailed    Type = "save_failed"

	TypeContextUpdate Type = "context_update"

	TypeLoopStart    Type = "loop_start"
	TypeLoopIterate  Type = "loop_iteration"
	TypeLoopComplete Type = "loop_complete"
)

// Status enumerates the lifecycle status carried by an event.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusFiltered   Status = "filtered"
	StatusCreated    Status = "created"
	StatusCompleted  Status = "completed"
)

// Error carries the detailed error payload attached to an *_error event.
type Error struct {
	Message   string `json:"message"`
	Traceback string `json:"traceback,omitempty"`
}

// Loop carries the loop-specific fields a loop/iteration event sets.
type Loop struct {
	LoopID       string   `json:"loop_id,omitempty"`
	LoopName     string   `json:"loop_name,omitempty"`
	Iterator     string   `json:"iterator,omitempty"`
	Items        any      `json:"items,omitempty"`
	CurrentIndex *int     `json:"current_index,omitempty"`
	CurrentItem  any      `json:"current_item,omitempty"`
	Results      []any    `json:"results,omitempty"`
	DistState    string   `json:"distributed_state,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// Event is an immutable record describing one engine action.
type Event struct {
	ExecutionID   string         `json:"execution_id"`
	EventID       int64          `json:"event_id"`
	ParentEventID *int64         `json:"parent_event_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	EventType     Type           `json:"event_type"`
	NodeID        string         `json:"node_id,omitempty"`
	NodeName      string         `json:"node_name,omitempty"`
	NodeType      string         `json:"node_type,omitempty"`
	Status        Status         `json:"status,omitempty"`
	DurationMS    int64          `json:"duration_ms,omitempty"`
	InputContext  map[string]any `json:"input_context,omitempty"`
	OutputResult  any            `json:"output_result,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Error         *Error         `json:"error,omitempty"`
	Loop          *Loop          `json:"loop,omitempty"`
}

// PrivateContextKeys lists context keys stripped from InputContext snapshots
// before they are embedded in an event (spec §3: "minus private keys").
var PrivateContextKeys = map[string]bool{
	"_loop": true,
}

// SnapshotContext returns a shallow copy of ctx with private keys removed,
// suitable for embedding in an event's InputContext field.
func SnapshotContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if PrivateContextKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}
