package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetl/internal/auth"
	"noetl/internal/domain/catalog"
	"noetl/internal/engine"
	"noetl/internal/iterator"
	"noetl/internal/plugin"
	"noetl/internal/sink"
	"noetl/internal/store/catalogstore"
	"noetl/internal/store/credentialstore"
	"noetl/internal/store/eventlog"
	"noetl/internal/template"
)

func newTestServer() *Server {
	plugins := plugin.NewRegistry()
	eval := template.New()
	credentials := credentialstore.NewMemoryStore()
	resolver := auth.New(credentials, eval)
	sinks := sink.New(plugins, resolver, eval)
	iterators := iterator.New(plugins, sinks, resolver, eval)
	events := eventlog.NewMemoryStore()
	catalogStore := catalogstore.NewMemoryStore()
	eng := engine.New(catalogStore, events, plugins, resolver, eval, sinks, iterators)
	return New(catalogStore, credentials, events, eng, nil)
}

func minimalPlaybookYAML() []byte {
	return []byte(`apiVersion: noetl.io/v1
kind: Playbook
name: trivial
path: examples/trivial
workflow:
  - step: start
    next: [end]
  - step: end
`)
}

func TestCatalogRegisterAndFetch(t *testing.T) {
	s := newTestServer()
	mux := s.Routes()

	body, _ := json.Marshal(catalogRegisterRequest{
		ContentBase64: base64.StdEncoding.EncodeToString(minimalPlaybookYAML()),
		ResourceType:  "Playbook",
	})
	req := httptest.NewRequest(http.MethodPost, "/catalog/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var registered map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	assert.Equal(t, "examples/trivial", registered["resource_path"])
	assert.Equal(t, "0.1.0", registered["resource_version"])

	fetchReq := httptest.NewRequest(http.MethodGet, "/catalog/examples/trivial/0.1.0", nil)
	fetchRec := httptest.NewRecorder()
	mux.ServeHTTP(fetchRec, fetchReq)
	require.Equal(t, http.StatusOK, fetchRec.Code)
}

func TestCredentialPutAndGetHidesDataByDefault(t *testing.T) {
	s := newTestServer()
	mux := s.Routes()

	body, _ := json.Marshal(credentialPutRequest{Name: "pg_main", Type: "postgres", Data: map[string]any{"password": "secret"}})
	req := httptest.NewRequest(http.MethodPost, "/credentials", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/credentials/pg_main", nil)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	assert.Nil(t, got["data"])
}

func TestAgentExecuteSync(t *testing.T) {
	s := newTestServer()
	mux := s.Routes()

	syncYAML := []byte(`apiVersion: noetl.io/v1
kind: Playbook
name: sync
path: sync
workflow:
  - step: start
    next: [end]
  - step: end
`)
	_, err := s.catalog.Register(context.Background(), "sync", catalog.ResourcePlaybook, string(syncYAML), nil, nil)
	require.NoError(t, err)

	body, _ := json.Marshal(executeRequestBody{Path: "sync"})
	req := httptest.NewRequest(http.MethodPost, "/agent/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestAgentExecuteUnregisteredPathReturnsJSONError guards against a
// nil-report dereference on the playbook-resolution-failure path: Engine
// returns a nil report alongside the error when a path isn't in the
// catalog (engine.Engine.Execute, resolvePlaybook failure).
func TestAgentExecuteUnregisteredPathReturnsJSONError(t *testing.T) {
	s := newTestServer()
	mux := s.Routes()

	body, _ := json.Marshal(executeRequestBody{Path: "does-not-exist"})
	req := httptest.NewRequest(http.MethodPost, "/agent/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "error", got["status"])
	assert.Equal(t, "", got["execution_id"])
}
