// Package eventlog implements the append-only event store described in
// spec §4.2: append assigns an ordered event_id unique within
// execution_id; range reads return events ordered by event_id.
package eventlog

import (
	"context"

	"noetl/internal/domain/event"
)

// Store is the append/range/filter contract the engine depends on. The
// backing schema (relational tables event_log/catalog/credential/
// workflow/transition/context; there is no workbook table) is an
// implementation detail.
type Store interface {
	// Append assigns event_id (if zero) and timestamp (if zero), then
	// persists ev. A second Append with the same (execution_id, event_id)
	// updates the row in place (idempotent, per spec §5 "Shared resources").
	Append(ctx context.Context, ev *event.Event) error

	// ByExecution returns every event for executionID ordered by event_id.
	ByExecution(ctx context.Context, executionID string) ([]event.Event, error)

	// ByEvent returns one event by (execution_id, event_id).
	ByEvent(ctx context.Context, executionID string, eventID int64) (*event.Event, error)

	// LatestByLoop returns the most recent event for a named loop within
	// an execution, or nil if none exists.
	LatestByLoop(ctx context.Context, executionID, loopName string) (*event.Event, error)

	// ByType returns every event of the given type for an execution,
	// ordered by event_id, used by offline transition analysis and loop
	// state reconstruction.
	ByType(ctx context.Context, executionID string, eventType event.Type) ([]event.Event, error)
}
