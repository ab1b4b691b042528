package catalogstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetl/internal/domain/catalog"
)

func TestMemoryStoreRegisterVersions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.Register(ctx, "workflows/greet", catalog.ResourcePlaybook, "content-v1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", first.Version)

	second, err := store.Register(ctx, "workflows/greet", catalog.ResourcePlaybook, "content-v2", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "0.1.1", second.Version)
}

func TestMemoryStoreFetchFallback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Register(ctx, "greet", catalog.ResourcePlaybook, "content", nil, nil)
	require.NoError(t, err)

	entry, err := store.Fetch(ctx, "workflows/greet", "0.1.0")
	require.NoError(t, err)
	assert.Equal(t, "greet", entry.Path)
}

func TestMemoryStoreLatest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Register(ctx, "greet", catalog.ResourcePlaybook, "v1", nil, nil)
	require.NoError(t, err)
	_, err = store.Register(ctx, "greet", catalog.ResourcePlaybook, "v2", nil, nil)
	require.NoError(t, err)

	latest, err := store.Latest(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.Content)
	assert.Equal(t, "0.1.1", latest.Version)
}

func TestMemoryStoreListFiltersByType(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Register(ctx, "greet", catalog.ResourcePlaybook, "v1", nil, nil)
	require.NoError(t, err)
	_, err = store.Register(ctx, "db-cred", catalog.ResourceCredential, "v1", nil, nil)
	require.NoError(t, err)

	playbooks, err := store.List(ctx, catalog.ResourcePlaybook)
	require.NoError(t, err)
	require.Len(t, playbooks, 1)
	assert.Equal(t, "greet", playbooks[0].Path)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
