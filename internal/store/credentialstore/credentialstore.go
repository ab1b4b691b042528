// Package credentialstore implements the named credential registry described
// in spec §4.4: secrets are stored by name, fetched by name, and listed for
// the catalog/CLI surfaces. Unlike catalogstore there is no versioning —
// registering a name again overwrites the previous record.
package credentialstore

import (
	"context"

	"noetl/internal/domain/credential"
)

// Store is the credential contract the auth resolver and REST surface
// depend on.
type Store interface {
	// Put creates or overwrites the credential named cred.Name.
	Put(ctx context.Context, cred credential.Credential) error

	// Get returns the credential named name, or an error if it doesn't exist.
	Get(ctx context.Context, name string) (*credential.Credential, error)

	// List returns every stored credential, optionally filtered by type.
	List(ctx context.Context, typ string) ([]credential.Credential, error)

	// Delete removes the credential named name. Deleting a name that does
	// not exist is not an error.
	Delete(ctx context.Context, name string) error
}
