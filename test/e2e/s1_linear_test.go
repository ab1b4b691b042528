package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetl/internal/domain/event"
	"noetl/internal/domain/playbook"
	"noetl/internal/engine"
	httpplugin "noetl/internal/plugin/http"
)

// S1 — linear playbook with an HTTP fetch step feeding a Postgres sink
// task (spec §8 S1).
func TestS1LinearPlaybookHTTPAndPostgresSink(t *testing.T) {
	h := newHarness()
	h.http.MockEnabled = true
	h.http.MockByPattern["/forecast"] = httpplugin.MockResponse{
		StatusCode: 200,
		Body:       map[string]any{"max_temp": 30.0},
	}

	pb := &playbook.Playbook{
		Name: "s1", Path: "s1",
		Workload: map[string]any{"city": "Bergen"},
		Workflow: []playbook.Step{
			{Step: "start", Next: []playbook.Transition{{Step: "fetch"}}},
			{
				Step: "fetch",
				Call: &playbook.Call{Name: "get_weather", With: map[string]any{"q": "{{ city }}"}},
				Next: []playbook.Transition{{Step: "save"}},
			},
			{
				Step: "save",
				Call: &playbook.Call{Name: "persist", With: map[string]any{"value": "{{ fetch.result.data.max_temp }}"}},
				Next: []playbook.Transition{{Step: "end"}},
			},
			{Step: "end"},
		},
		Workbook: []playbook.Task{
			{
				Name: "get_weather", Tool: "http",
				Fields: map[string]any{"endpoint": "http://api.local/forecast?q={{ q }}", "method": "GET"},
			},
			{
				Name: "persist", Tool: "postgres", Auth: "pg_local",
				Fields: map[string]any{"command": "INSERT INTO t(v) VALUES ({{ value }});"},
			},
		},
	}

	report, err := h.engine.Execute(context.Background(), engine.ExecuteRequest{Playbook: pb})
	require.NoError(t, err)
	assert.Equal(t, event.StatusCompleted, report.Status)

	results := h.eventsOfType(report.ExecutionID, event.TypeStepResult)
	require.Len(t, results, 3)
	assert.Equal(t, "fetch", results[1].NodeName)
	assert.Equal(t, "save", results[2].NodeName)

	require.Equal(t, 1, h.postgres.count())
	assert.Equal(t, 30.0, h.postgres.rows[0].Args["value"])
}
