package credentialstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noetl/internal/domain/credential"
)

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	cred := credential.Credential{
		Name: "pg_main",
		Type: credential.TypePostgres,
		Data: map[string]any{"host": "localhost", "port": 5432},
	}
	require.NoError(t, store.Put(ctx, cred))

	got, err := store.Get(ctx, "pg_main")
	require.NoError(t, err)
	assert.Equal(t, "localhost", got.Data["host"])
}

func TestMemoryStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Get(ctx, "missing")
	assert.Error(t, err)
}

func TestMemoryStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, credential.Credential{Name: "a", Type: credential.TypeGCS}))
	require.NoError(t, store.Put(ctx, credential.Credential{Name: "a", Type: credential.TypeS3}))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, credential.TypeS3, got.Type)
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, credential.Credential{Name: "a", Type: credential.TypeGCS}))
	require.NoError(t, store.Put(ctx, credential.Credential{Name: "b", Type: credential.TypeS3}))

	gcsOnly, err := store.List(ctx, credential.TypeGCS)
	require.NoError(t, err)
	require.Len(t, gcsOnly, 1)
	assert.Equal(t, "a", gcsOnly[0].Name)

	require.NoError(t, store.Delete(ctx, "a"))
	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
