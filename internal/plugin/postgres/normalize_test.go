package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeValueNumeric(t *testing.T) {
	var n pgtype.Numeric
	assert.NoError(t, n.Scan("1234.5"))
	assert.Equal(t, 1234.5, normalizeValue(n))
}

func TestNormalizeValueNumericNull(t *testing.T) {
	var n pgtype.Numeric
	assert.NoError(t, n.Scan(nil))
	assert.Nil(t, normalizeValue(n))
}

func TestNormalizeValueTime(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2026-01-02T03:04:05Z", normalizeValue(ts))
}

func TestNormalizeValuePassthrough(t *testing.T) {
	assert.Equal(t, int64(7), normalizeValue(int64(7)))
}
