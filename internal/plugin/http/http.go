// Package http implements the HTTP task plugin described in spec §4.5:
// endpoint/method/headers/data routing, resolver-driven auth headers, and a
// deterministic mock mode for `.local` hosts used in tests.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"noetl/internal/auth"
	"noetl/internal/plugin"
	"noetl/internal/template"
)

// ToolName is the task tool this plugin handles.
const ToolName = "http"

// MockResponse is a canned payload returned by the deterministic mock
// transport for one URL pattern.
type MockResponse struct {
	StatusCode int
	Body       any
}

// Plugin implements plugin.Plugin for HTTP tasks.
type Plugin struct {
	client *http.Client

	// MockEnabled activates the deterministic mock transport for `.local`
	// hostnames, matching spec §4.5's testing affordance.
	MockEnabled bool
	// MockByPattern maps a substring of the request URL to a canned
	// response. When several patterns match, which one is used is not
	// defined (the map is iterated in no fixed order).
	MockByPattern map[string]MockResponse
}

// New constructs an HTTP plugin with the given timeout.
func New(timeout time.Duration, mockEnabled bool) *Plugin {
	return &Plugin{
		client:        &http.Client{Timeout: timeout},
		MockEnabled:   mockEnabled,
		MockByPattern: map[string]MockResponse{},
	}
}

func (p *Plugin) Tool() string { return ToolName }

func (p *Plugin) Execute(ctx context.Context, cfg plugin.Config, execCtx map[string]any, eval *template.Evaluator, emit plugin.EventEmitter) plugin.Result {
	start := time.Now()
	emit("task_start", map[string]any{"tool": ToolName})

	rendered, err := eval.RenderMap(cfg.With, execCtx)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("expanding http task fields: %w", err))
	}

	endpointRaw, _ := rendered["endpoint"].(string)
	method, _ := rendered["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	if p.isMockTarget(endpointRaw) {
		return p.executeMock(emit, start, endpointRaw)
	}

	headers := map[string]string{}
	if h, ok := rendered["headers"].(map[string]any); ok {
		for k, v := range h {
			headers[k] = fmt.Sprintf("%v", v)
		}
	}
	if cfg.Auth != nil {
		for _, resolved := range cfg.Auth.Items {
			for k, v := range auth.HTTPHeaders(resolved) {
				headers[k] = v
			}
		}
	}

	data := extractData(rendered)

	req, err := p.buildRequest(ctx, method, endpointRaw, data, headers)
	if err != nil {
		return p.fail(emit, start, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.fail(emit, start, fmt.Errorf("reading response body: %w", err))
	}

	var parsedBody any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsedBody); err != nil {
			parsedBody = string(body)
		}
	}

	respHeaders := map[string]string{}
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	result := map[string]any{
		"data":        parsedBody,
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return p.fail(emit, start, fmt.Errorf("http request returned status %d", resp.StatusCode))
	}

	emit("task_complete", map[string]any{"duration_ms": time.Since(start).Milliseconds(), "status_code": resp.StatusCode})
	return plugin.Result{Status: plugin.StatusSuccess, Data: result}
}

func (p *Plugin) buildRequest(ctx context.Context, method, endpoint string, data map[string]any, headers map[string]string) (*http.Request, error) {
	switch method {
	case http.MethodGet, http.MethodDelete:
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parsing endpoint: %w", err)
		}
		q := u.Query()
		for k, v := range data {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
		if err != nil {
			return nil, err
		}
		applyHeaders(req, headers)
		return req, nil

	default: // POST, PUT, PATCH
		contentType := headers["Content-Type"]
		var body io.Reader
		switch {
		case strings.Contains(contentType, "form-urlencoded"):
			form := url.Values{}
			for k, v := range data {
				form.Set(k, fmt.Sprintf("%v", v))
			}
			body = strings.NewReader(form.Encode())
		default:
			b, err := json.Marshal(data)
			if err != nil {
				return nil, fmt.Errorf("encoding json body: %w", err)
			}
			body = bytes.NewReader(b)
			if contentType == "" {
				contentType = "application/json"
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		applyHeaders(req, headers)
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", contentType)
		}
		return req, nil
	}
}

func applyHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

// extractData prefers the unified data.query/data.body block, falling back
// to the legacy params/payload fields.
func extractData(rendered map[string]any) map[string]any {
	if d, ok := rendered["data"].(map[string]any); ok {
		merged := map[string]any{}
		for k, v := range d {
			if k == "query" || k == "body" {
				if inner, ok := v.(map[string]any); ok {
					for ik, iv := range inner {
						merged[ik] = iv
					}
					continue
				}
			}
			merged[k] = v
		}
		return merged
	}
	if params, ok := rendered["params"].(map[string]any); ok {
		return params
	}
	if payload, ok := rendered["payload"].(map[string]any); ok {
		return payload
	}
	return map[string]any{}
}

func (p *Plugin) isMockTarget(endpoint string) bool {
	if !p.MockEnabled {
		return false
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Hostname(), ".local")
}

func (p *Plugin) executeMock(emit plugin.EventEmitter, start time.Time, endpoint string) plugin.Result {
	for pattern, mock := range p.MockByPattern {
		if strings.Contains(endpoint, pattern) {
			emit("task_complete", map[string]any{"duration_ms": time.Since(start).Milliseconds(), "mock": true})
			return plugin.Result{Status: plugin.StatusSuccess, Data: map[string]any{
				"data":        mock.Body,
				"status_code": mock.StatusCode,
				"headers":     map[string]string{},
			}}
		}
	}
	emit("task_complete", map[string]any{"duration_ms": time.Since(start).Milliseconds(), "mock": true})
	return plugin.Result{Status: plugin.StatusSuccess, Data: map[string]any{
		"data":        map[string]any{},
		"status_code": 200,
		"headers":     map[string]string{},
	}}
}

func (p *Plugin) fail(emit plugin.EventEmitter, start time.Time, err error) plugin.Result {
	emit("task_error", map[string]any{"duration_ms": time.Since(start).Milliseconds(), "error": err.Error()})
	return plugin.Result{Status: plugin.StatusError, Error: err.Error()}
}
