package credentialstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"noetl/internal/domain/credential"
)

// PostgresStore is the durable Store backed by the credential table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Put(ctx context.Context, cred credential.Credential) error {
	data, err := json.Marshal(cred.Data)
	if err != nil {
		return fmt.Errorf("marshaling credential data: %w", err)
	}
	meta, err := json.Marshal(cred.Meta)
	if err != nil {
		return fmt.Errorf("marshaling credential meta: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO credential (name, type, data, meta, tags, description, "timestamp")
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type,
			data = EXCLUDED.data,
			meta = EXCLUDED.meta,
			tags = EXCLUDED.tags,
			description = EXCLUDED.description,
			"timestamp" = EXCLUDED."timestamp"
	`, cred.Name, cred.Type, data, meta, cred.Tags, cred.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing credential %s: %w", cred.Name, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, name string) (*credential.Credential, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, type, data, meta, tags, description FROM credential WHERE name = $1`, name)
	cred, err := scanCredential(row)
	if err != nil {
		return nil, fmt.Errorf("credential not found: %s: %w", name, err)
	}
	return cred, nil
}

func (s *PostgresStore) List(ctx context.Context, typ string) ([]credential.Credential, error) {
	var rows pgx.Rows
	var err error
	if typ == "" {
		rows, err = s.pool.Query(ctx, `SELECT name, type, data, meta, tags, description FROM credential ORDER BY name`)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT name, type, data, meta, tags, description FROM credential WHERE type = $1 ORDER BY name`, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var out []credential.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cred)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM credential WHERE name = $1`, name); err != nil {
		return fmt.Errorf("deleting credential %s: %w", name, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*credential.Credential, error) {
	var cred credential.Credential
	var data, meta []byte
	if err := row.Scan(&cred.Name, &cred.Type, &data, &meta, &cred.Tags, &cred.Description); err != nil {
		return nil, fmt.Errorf("scanning credential row: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cred.Data); err != nil {
			return nil, fmt.Errorf("unmarshaling credential data: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &cred.Meta); err != nil {
			return nil, fmt.Errorf("unmarshaling credential meta: %w", err)
		}
	}
	return &cred, nil
}
