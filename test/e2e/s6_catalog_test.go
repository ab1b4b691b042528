package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetl/internal/domain/catalog"
	"noetl/internal/store/catalogstore"
)

// S6 — registering the same playbook path twice advances its patch version
// and both entries surface from list(), newest first (spec §8 S6).
func TestS6CatalogReRegistration(t *testing.T) {
	ctx := context.Background()
	store := catalogstore.NewMemoryStore()

	first, err := store.Register(ctx, "p", catalog.ResourcePlaybook, "workflow: {}\n", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", first.Version)

	second, err := store.Register(ctx, "p", catalog.ResourcePlaybook, "workflow: {}\nversion: 2\n", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.1.1", second.Version)

	latest, err := store.Latest(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "0.1.1", latest.Version)

	entries, err := store.List(ctx, catalog.ResourcePlaybook)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0.1.1", entries[0].Version)
	assert.Equal(t, "0.1.0", entries[1].Version)
	assert.False(t, entries[0].Timestamp.Before(entries[1].Timestamp))
}
