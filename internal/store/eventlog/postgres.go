package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"noetl/internal/domain/event"
)

// PostgresStore is the durable Store backed by the event_log table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, ev *event.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.EventID == 0 {
		var id int64
		err := s.pool.QueryRow(ctx,
			`SELECT COALESCE(MAX(event_id), 0) + 1 FROM event_log WHERE execution_id = $1`,
			ev.ExecutionID).Scan(&id)
		if err != nil {
			return fmt.Errorf("allocating event_id: %w", err)
		}
		ev.EventID = id
	}

	inputCtx, err := marshalJSON(ev.InputContext)
	if err != nil {
		return err
	}
	output, err := marshalJSON(ev.OutputResult)
	if err != nil {
		return err
	}
	meta, err := marshalJSON(ev.Metadata)
	if err != nil {
		return err
	}
	errPayload, err := marshalJSON(ev.Error)
	if err != nil {
		return err
	}
	loopPayload, err := marshalJSON(ev.Loop)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO event_log (execution_id, event_id, parent_event_id, timestamp, event_type,
			node_id, node_name, node_type, status, duration_ms, input_context, output_result,
			metadata, error, loop_data)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (execution_id, event_id) DO UPDATE SET
			parent_event_id = EXCLUDED.parent_event_id,
			timestamp = EXCLUDED.timestamp,
			event_type = EXCLUDED.event_type,
			node_id = EXCLUDED.node_id,
			node_name = EXCLUDED.node_name,
			node_type = EXCLUDED.node_type,
			status = EXCLUDED.status,
			duration_ms = EXCLUDED.duration_ms,
			input_context = EXCLUDED.input_context,
			output_result = EXCLUDED.output_result,
			metadata = EXCLUDED.metadata,
			error = EXCLUDED.error,
			loop_data = EXCLUDED.loop_data
	`, ev.ExecutionID, ev.EventID, ev.ParentEventID, ev.Timestamp, ev.EventType,
		ev.NodeID, ev.NodeName, ev.NodeType, ev.Status, ev.DurationMS,
		inputCtx, output, meta, errPayload, loopPayload)
	if err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ByExecution(ctx context.Context, executionID string) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT execution_id, event_id, parent_event_id, timestamp, event_type, node_id, node_name,
			node_type, status, duration_ms, input_context, output_result, metadata, error, loop_data
		FROM event_log WHERE execution_id = $1 ORDER BY event_id ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ByEvent(ctx context.Context, executionID string, eventID int64) (*event.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT execution_id, event_id, parent_event_id, timestamp, event_type, node_id, node_name,
			node_type, status, duration_ms, input_context, output_result, metadata, error, loop_data
		FROM event_log WHERE execution_id = $1 AND event_id = $2`, executionID, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	defer rows.Close()
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (s *PostgresStore) LatestByLoop(ctx context.Context, executionID, loopName string) (*event.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT execution_id, event_id, parent_event_id, timestamp, event_type, node_id, node_name,
			node_type, status, duration_ms, input_context, output_result, metadata, error, loop_data
		FROM event_log WHERE execution_id = $1 AND loop_data->>'loop_name' = $2
		ORDER BY event_id DESC LIMIT 1`, executionID, loopName)
	if err != nil {
		return nil, fmt.Errorf("querying latest loop event: %w", err)
	}
	defer rows.Close()
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (s *PostgresStore) ByType(ctx context.Context, executionID string, eventType event.Type) ([]event.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT execution_id, event_id, parent_event_id, timestamp, event_type, node_id, node_name,
			node_type, status, duration_ms, input_context, output_result, metadata, error, loop_data
		FROM event_log WHERE execution_id = $1 AND event_type = $2 ORDER BY event_id ASC`,
		executionID, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("querying events by type: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]event.Event, error) {
	var out []event.Event
	for rows.Next() {
		var ev event.Event
		var inputCtx, output, meta, errPayload, loopPayload []byte
		if err := rows.Scan(&ev.ExecutionID, &ev.EventID, &ev.ParentEventID, &ev.Timestamp, &ev.EventType,
			&ev.NodeID, &ev.NodeName, &ev.NodeType, &ev.Status, &ev.DurationMS,
			&inputCtx, &output, &meta, &errPayload, &loopPayload); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		if err := unmarshalJSON(inputCtx, &ev.InputContext); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(output, &ev.OutputResult); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(meta, &ev.Metadata); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(errPayload, &ev.Error); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(loopPayload, &ev.Loop); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling event field: %w", err)
	}
	return b, nil
}

func unmarshalJSON(b []byte, out any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("unmarshaling event field: %w", err)
	}
	return nil
}
