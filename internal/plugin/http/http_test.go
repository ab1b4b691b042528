package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetl/internal/plugin"
	"noetl/internal/template"
)

func noopEmit(string, map[string]any) {}

func TestPluginExecuteMockMode(t *testing.T) {
	p := New(0, true)
	p.MockByPattern["/forecast"] = MockResponse{StatusCode: 200, Body: map[string]any{"max_temp": 30}}

	eval := template.New()
	cfg := plugin.Config{With: map[string]any{
		"endpoint": "http://api.local/forecast?q=paris",
		"method":   "GET",
	}}

	result := p.Execute(context.Background(), cfg, map[string]any{}, eval, noopEmit)
	require.Equal(t, plugin.StatusSuccess, result.Status)
	data := result.Data.(map[string]any)
	assert.Equal(t, 200, data["status_code"])
	body := data["data"].(map[string]any)
	assert.Equal(t, 30, body["max_temp"])
}

func TestPluginExecuteRealGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"greeting":"` + r.URL.Query().Get("greeting") + `"}`))
	}))
	defer srv.Close()

	p := New(0, false)
	eval := template.New()
	cfg := plugin.Config{With: map[string]any{
		"endpoint": srv.URL + "/echo?greeting={{ greeting }}",
		"method":   "GET",
	}}

	result := p.Execute(context.Background(), cfg, map[string]any{"greeting": "hi"}, eval, noopEmit)
	require.Equal(t, plugin.StatusSuccess, result.Status)
	data := result.Data.(map[string]any)
	assert.Equal(t, 200, data["status_code"])
	body := data["data"].(map[string]any)
	assert.Equal(t, "hi", body["greeting"])
}
