package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAutoUnwrap(t *testing.T) {
	e := New()
	ctx := map[string]any{"city": "Bergen", "count": 3.0, "items": []any{1.0, 2.0}}

	out, err := e.Render("{{ city }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bergen", out)

	out, err = e.Render("{{ count }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, out)

	out, err = e.Render("{{ items }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, out)
}

func TestRenderStringInterpolation(t *testing.T) {
	e := New()
	ctx := map[string]any{"city": "Bergen"}
	out, err := e.Render("hello {{ city }}!", ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello Bergen!", out)
}

func TestRenderJSONAutoParse(t *testing.T) {
	e := New()
	ctx := map[string]any{"items": []any{1.0, 2.0}}
	out, err := e.Render("{{ to_json(items) }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, out)
}

func TestRenderStrictUndefinedErrors(t *testing.T) {
	e := New()
	_, err := e.Render("{{ missing_key }}", map[string]any{})
	assert.Error(t, err)
}

func TestRenderLenientSwallowsUndefined(t *testing.T) {
	e := New()
	out := e.RenderLenient("{{ missing_key }}", map[string]any{}, false)
	assert.Equal(t, "{{ missing_key }}", out)
}

// TestFlatStepResultReference exercises the literal dotted-key binding
// spec §4.8 describes (<step>.result/<step>.status alongside a nested
// <step> entry), for both a map step result (chained further, as spec
// §8 S1's "fetch.result.data.max_temp") and a scalar one (compared
// directly, as an engine transition condition would).
func TestFlatStepResultReference(t *testing.T) {
	e := New()
	ctx := map[string]any{
		"fetch":            map[string]any{"data": map[string]any{"max_temp": 30.0}, "status_code": 200.0},
		"fetch.result":     map[string]any{"data": map[string]any{"max_temp": 30.0}, "status_code": 200.0},
		"fetch.status":     "success",
		"bump_step":        1.0,
		"bump_step.result": 1.0,
	}

	out, err := e.Render("{{ fetch.result.data.max_temp }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, 30.0, out)

	out, err = e.Render(`{{ fetch.status == "success" }}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Render("{{ bump_step.result < 3 }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, true, out)

	// Plain nested field access unrelated to result/status binding must
	// still traverse normally, unaffected by the rewrite.
	ctx2 := map[string]any{"item": map[string]any{"id": 7.0}}
	out, err = e.Render("{{ item.id }}", ctx2)
	require.NoError(t, err)
	assert.Equal(t, 7.0, out)
}

func TestLookup(t *testing.T) {
	ctx := map[string]any{"a": map[string]any{"b": []any{10.0, 20.0}}}
	v, ok := Lookup(ctx, "a.b.1")
	require.True(t, ok)
	assert.Equal(t, 20.0, v)

	_, ok = Lookup(ctx, "a.missing")
	assert.False(t, ok)
}

func TestMergeAndClone(t *testing.T) {
	base := map[string]any{"a": 1}
	overlay := map[string]any{"b": 2}
	merged := Merge(base, overlay)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, merged)

	clone := Clone(base)
	clone["a"] = 99
	assert.Equal(t, 1, base["a"])
}
