package template

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Lookup resolves a dotted path (e.g. "fetch.result.data.max_temp") against
// a nested context map, without going through the expression engine. It is
// used by components that need a direct accessor rather than a full
// template render (collection resolution fallback, end_loop result binding).
// ctx is marshaled to JSON once and walked with gjson, which already
// understands dotted/array-index paths the same way the rest of this
// package's JSON-shaped contexts are produced and consumed.
func Lookup(ctx map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(data, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// RenderMap renders every value in m and returns the result as a
// map[string]any (the common case for `with:`/`args:` blocks).
func (e *Evaluator) RenderMap(m map[string]any, ctx map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	rendered, err := e.Render(map[string]any(m), ctx)
	if err != nil {
		return nil, err
	}
	out, ok := rendered.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return out, nil
}

// Merge returns a new map combining base with overlay (overlay wins).
func Merge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of m, used to build iteration-local context
// scopes that shadow without mutating the parent (spec §3 invariant).
func Clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
