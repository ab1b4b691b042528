package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeInsertAppend(t *testing.T) {
	stmt, err := SynthesizeInsert("t", map[string]any{"b": 2, "a": 1}, "append", nil)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ({{ a }}, {{ b }})", stmt)
}

func TestSynthesizeInsertUpsert(t *testing.T) {
	stmt, err := SynthesizeInsert("t", map[string]any{"id": 1, "name": "x"}, "upsert", []string{"id"})
	require.NoError(t, err)
	assert.Contains(t, stmt, "ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name")
}

func TestSynthesizeInsertUpsertRequiresKey(t *testing.T) {
	_, err := SynthesizeInsert("t", map[string]any{"id": 1}, "upsert", nil)
	assert.Error(t, err)
}

func TestSynthesizeInsertRequiresTable(t *testing.T) {
	_, err := SynthesizeInsert("", map[string]any{"id": 1}, "append", nil)
	assert.Error(t, err)
}

func TestRewriteNamedBinds(t *testing.T) {
	got := RewriteNamedBinds("SELECT * FROM t WHERE id = :id", map[string]any{"id": 1})
	assert.Equal(t, "SELECT * FROM t WHERE id = {{ id }}", got)
}

func TestRewriteNamedBindsSkipsWhenTemplatePresent(t *testing.T) {
	stmt := "SELECT * FROM t WHERE id = {{ id }}"
	got := RewriteNamedBinds(stmt, map[string]any{"id": 1})
	assert.Equal(t, stmt, got)
}
