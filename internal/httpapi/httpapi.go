// Package httpapi implements the thin REST layer over the catalog, engine
// and event log described in spec §4.11: catalog register/list/fetch,
// credential CRUD, synchronous/async execution, and event retrieval.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"noetl/internal/domain/catalog"
	"noetl/internal/domain/credential"
	"noetl/internal/domain/event"
	"noetl/internal/domain/playbook"
	"noetl/internal/engine"
	"noetl/internal/logging"
	"noetl/internal/store/catalogstore"
	"noetl/internal/store/credentialstore"
	"noetl/internal/store/eventlog"
)

// Server wires the catalog store, credential store, event log and
// execution engine behind a net/http.ServeMux, following the retrieved
// service-layer pack's handler-per-route convention.
type Server struct {
	catalog     catalogstore.Store
	credentials credentialstore.Store
	events      eventlog.Store
	engine      *engine.Engine
	log         *logging.Logger

	// asyncRunner executes an ExecuteRequest in the background; a real
	// deployment wires this to a worker queue, a test wires it to a
	// synchronous call.
	asyncRunner func(engine.ExecuteRequest)
}

// New constructs a Server. asyncRunner may be nil, in which case
// /agent/execute-async runs the execution in a background goroutine and
// returns immediately with only the assigned execution_id.
func New(catalogStore catalogstore.Store, credentials credentialstore.Store, events eventlog.Store, eng *engine.Engine, asyncRunner func(engine.ExecuteRequest)) *Server {
	return &Server{
		catalog: catalogStore, credentials: credentials, events: events, engine: eng,
		asyncRunner: asyncRunner,
		log:         logging.NewDefault("httpapi"),
	}
}

// Routes returns a ServeMux with every route registered, ready to be
// wrapped with middleware (logging, recovery, CORS) by the caller.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /catalog/register", s.handleCatalogRegister)
	mux.HandleFunc("GET /catalog/list", s.handleCatalogList)
	mux.HandleFunc("GET /catalog/", s.handleCatalogFetch)
	mux.HandleFunc("POST /credentials", s.handleCredentialPut)
	mux.HandleFunc("GET /credentials/{name}", s.handleCredentialGet)
	mux.HandleFunc("POST /agent/execute", s.handleAgentExecute)
	mux.HandleFunc("POST /agent/execute-async", s.handleAgentExecuteAsync)
	mux.HandleFunc("GET /events/{event_id}", s.handleEventByID)
	mux.HandleFunc("GET /events", s.handleEventsByExecution)
	return mux
}

type errorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Status: "error", Error: err.Error()})
}

// catalogRegisterRequest is the body of POST /catalog/register.
type catalogRegisterRequest struct {
	ContentBase64 string         `json:"content_base64"`
	ResourceType  string         `json:"resource_type"`
	Payload       map[string]any `json:"payload,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
}

func (s *Server) handleCatalogRegister(w http.ResponseWriter, r *http.Request) {
	var req catalogRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	typ := catalog.ResourceType(req.ResourceType)
	var path string
	switch typ {
	case catalog.ResourcePlaybook:
		pb, err := playbook.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		path = pb.Path
	default:
		path, _ = req.Payload["name"].(string)
	}
	if path == "" {
		writeError(w, http.StatusBadRequest, errBadPath)
		return
	}

	entry, err := s.catalog.Register(r.Context(), path, typ, string(raw), req.Payload, req.Meta)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource_path":    entry.Path,
		"resource_version": entry.Version,
		"status":           "registered",
	})
}

var errBadPath = &simpleErr{"content does not resolve to a resource path"}

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }

func (s *Server) handleCatalogList(w http.ResponseWriter, r *http.Request) {
	typ := catalog.ResourceType(r.URL.Query().Get("resource_type"))
	entries, err := s.catalog.List(r.Context(), typ)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleCatalogFetch serves GET /catalog/{path...}/{version}, accepting a
// path containing slashes by splitting off the final segment as version.
func (s *Server) handleCatalogFetch(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/catalog/")
	segments := strings.Split(trimmed, "/")
	if len(segments) < 2 {
		writeError(w, http.StatusBadRequest, &simpleErr{"expected /catalog/{path}/{version}"})
		return
	}
	version := segments[len(segments)-1]
	path := strings.Join(segments[:len(segments)-1], "/")

	entry, err := s.catalog.Fetch(r.Context(), path, version)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type credentialPutRequest struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Data        map[string]any `json:"data"`
	Meta        map[string]any `json:"meta,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Description string         `json:"description,omitempty"`
}

func (s *Server) handleCredentialPut(w http.ResponseWriter, r *http.Request) {
	var req credentialPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cred := credential.Credential{
		Name: req.Name, Type: req.Type, Data: req.Data, Meta: req.Meta,
		Tags: req.Tags, Description: req.Description,
	}
	if err := s.credentials.Put(r.Context(), cred); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "name": cred.Name})
}

func (s *Server) handleCredentialGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	cred, err := s.credentials.Get(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	includeData := r.URL.Query().Get("include_data") == "true"
	if !includeData {
		cred.Data = nil
	}
	writeJSON(w, http.StatusOK, cred)
}

type executeRequestBody struct {
	Path           string         `json:"path"`
	Version        string         `json:"version,omitempty"`
	InputPayload   map[string]any `json:"input_payload,omitempty"`
	Merge          map[string]any `json:"merge,omitempty"`
	SyncToPostgres bool           `json:"sync_to_postgres,omitempty"`
}

func (body executeRequestBody) toExecuteRequest() engine.ExecuteRequest {
	payload := make(map[string]any, len(body.InputPayload)+len(body.Merge))
	for k, v := range body.InputPayload {
		payload[k] = v
	}
	for k, v := range body.Merge {
		payload[k] = v
	}
	return engine.ExecuteRequest{Path: body.Path, Version: body.Version, Payload: payload}
}

func (s *Server) handleAgentExecute(w http.ResponseWriter, r *http.Request) {
	var body executeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	report, err := s.engine.Execute(r.Context(), body.toExecuteRequest())
	if err != nil {
		executionID := ""
		if report != nil {
			executionID = report.ExecutionID
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"execution_id": executionID,
			"status":       "error",
			"error":        err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id": report.ExecutionID,
		"result":       report.Steps,
	})
}

func (s *Server) handleAgentExecuteAsync(w http.ResponseWriter, r *http.Request) {
	var body executeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req := body.toExecuteRequest()
	req.ExecutionID = uuid.NewString()

	if s.asyncRunner != nil {
		s.asyncRunner(req)
	} else {
		go func() {
			if _, err := s.engine.Execute(context.Background(), req); err != nil {
				s.log.Error("async execution failed", logging.F("execution_id", req.ExecutionID), logging.F("error", err.Error()))
			}
		}()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"event_id": req.ExecutionID})
}

func (s *Server) handleEventByID(w http.ResponseWriter, r *http.Request) {
	executionID := r.URL.Query().Get("execution_id")
	eventIDStr := r.PathValue("event_id")
	eventID, err := strconv.ParseInt(eventIDStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ev, err := s.events.ByEvent(r.Context(), executionID, eventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, &simpleErr{"event not found"})
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleEventsByExecution(w http.ResponseWriter, r *http.Request) {
	executionID := r.URL.Query().Get("execution_id")
	if executionID == "" {
		writeError(w, http.StatusBadRequest, &simpleErr{"execution_id query param is required"})
		return
	}

	if typeFilter := r.URL.Query().Get("event_type"); typeFilter != "" {
		events, err := s.events.ByType(r.Context(), executionID, event.Type(typeFilter))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
		return
	}

	events, err := s.events.ByExecution(r.Context(), executionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
