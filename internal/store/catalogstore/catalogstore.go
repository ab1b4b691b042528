// Package catalogstore implements the versioned catalog registry described
// in spec §4.3: register computes the next version, fetch resolves a
// (path, version) with filename fallback, latest resolves the
// highest dotted version, list returns entries ordered by insertion time
// descending.
package catalogstore

import (
	"context"

	"noetl/internal/domain/catalog"
)

// Store is the catalog contract the engine and REST surface depend on.
type Store interface {
	// Register computes the next version for (path, type) — 0.1.0 if
	// none exists, else PATCH+1, retrying a bounded number of times on a
	// unique-version collision — and persists content/payload/meta.
	Register(ctx context.Context, path string, typ catalog.ResourceType, content string, payload, meta map[string]any) (*catalog.Entry, error)

	// Fetch returns the entry at (path, version). If not found and path
	// contains '/', it retries with the last path segment.
	Fetch(ctx context.Context, path, version string) (*catalog.Entry, error)

	// Latest returns the entry with the lexicographically-highest dotted
	// version at path.
	Latest(ctx context.Context, path string) (*catalog.Entry, error)

	// List returns every entry (optionally filtered by type) ordered by
	// insertion time descending, without duplicates.
	List(ctx context.Context, typ catalog.ResourceType) ([]catalog.Entry, error)
}

// MaxRegisterRetries bounds the retry loop on unique-version collision.
const MaxRegisterRetries = 5
