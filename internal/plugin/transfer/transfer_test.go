package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDMLPlainInsert(t *testing.T) {
	stmt := buildDML("t", []string{"a", "b"}, nil, "insert")
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", stmt)
}

func TestBuildDMLUpsert(t *testing.T) {
	stmt := buildDML("t", []string{"id", "name"}, []string{"id"}, "upsert")
	assert.Contains(t, stmt, "ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name")
}

func TestAsStringSlice(t *testing.T) {
	got := asStringSlice([]any{"a", "b", 3})
	assert.Equal(t, []string{"a", "b"}, got)
}
