package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetl/internal/domain/event"
	"noetl/internal/domain/playbook"
	"noetl/internal/engine"
)

// S5 — HTTP request that fails twice with 500 then succeeds, retried with
// exponential backoff until it does (spec §8 S5). The backoff delays are
// real (initial_delay/max_delay are whole seconds per spec), so this test
// takes a few seconds of wall-clock time to run.
func TestS5RetryOnTransientFailure(t *testing.T) {
	var requestCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requestCount, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer srv.Close()

	h := newHarness()

	pagination := &playbook.Pagination{
		Request: &playbook.NestedTask{
			Tool:   "http",
			Fields: map[string]any{"endpoint": srv.URL, "method": "GET"},
		},
		Retry: &playbook.Retry{
			MaxAttempts:  3,
			Backoff:      "exponential",
			InitialDelay: 1,
			MaxDelay:     10,
		},
	}

	pb := &playbook.Playbook{
		Name: "s5", Path: "s5",
		Workflow: []playbook.Step{
			{Step: "start", Next: []playbook.Transition{{Step: "fetch_flaky"}}},
			{Step: "fetch_flaky", Loop: &playbook.Loop{Element: "page", Pagination: pagination}, Next: []playbook.Transition{{Step: "end"}}},
			{Step: "end"},
		},
	}

	report, err := h.engine.Execute(context.Background(), engine.ExecuteRequest{Playbook: pb})
	require.NoError(t, err)
	assert.Equal(t, event.StatusCompleted, report.Status)

	result, ok := report.Steps["fetch_flaky"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "success", result["status"])

	assert.Equal(t, int32(3), atomic.LoadInt32(&requestCount))
}
