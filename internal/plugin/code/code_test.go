package code

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetl/internal/plugin"
	"noetl/internal/template"
)

func noopEmit(string, map[string]any) {}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestPluginExecuteNoArgs(t *testing.T) {
	script := `function main() { return {greeting: "hi"}; }`
	cfg := plugin.Config{Fields: map[string]any{"code": b64(script)}}

	result := New().Execute(context.Background(), cfg, map[string]any{}, template.New(), noopEmit)
	require.Equal(t, plugin.StatusSuccess, result.Status)
	data := result.Data.(map[string]any)
	assert.Equal(t, "hi", data["greeting"])
}

func TestPluginExecuteWithArgs(t *testing.T) {
	script := `function main(input) { return {doubled: input.n * 2}; }`
	cfg := plugin.Config{
		Fields: map[string]any{"code": b64(script)},
		With:   map[string]any{"n": 21},
	}

	result := New().Execute(context.Background(), cfg, map[string]any{}, template.New(), noopEmit)
	require.Equal(t, plugin.StatusSuccess, result.Status)
	data := result.Data.(map[string]any)
	assert.Equal(t, float64(42), data["doubled"])
}

func TestPluginExecuteMissingMain(t *testing.T) {
	cfg := plugin.Config{Fields: map[string]any{"code": b64("var x = 1;")}}
	result := New().Execute(context.Background(), cfg, map[string]any{}, template.New(), noopEmit)
	assert.Equal(t, plugin.StatusError, result.Status)
}

func TestCoerceValueLiterals(t *testing.T) {
	assert.Equal(t, true, coerceValue("true"))
	assert.Equal(t, int64(42), coerceValue("42"))
	assert.Equal(t, nil, coerceValue("null"))
	assert.Equal(t, "plain", coerceValue("plain"))
}
