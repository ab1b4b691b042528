package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiClient is a minimal REST client for the `catalog` subcommands, which
// talk to a running `noetl server start` process rather than opening their
// own database connection (spec §6: catalog subcommands take --host/--port).
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(host string, port int) *apiClient {
	return &apiClient{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) post(path string, body any) (map[string]any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decodeJSONObject(resp)
}

func (c *apiClient) get(path string) (map[string]any, error) {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decodeJSONObject(resp)
}

func decodeJSONObject(resp *http.Response) (map[string]any, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	var out map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decoding response body: %w", err)
		}
	}
	if resp.StatusCode >= 400 {
		if msg, ok := out["error"].(string); ok {
			return out, fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
		}
		return out, fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return out, nil
}
