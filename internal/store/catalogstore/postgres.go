package catalogstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"noetl/internal/domain/catalog"
)

// PostgresStore is the durable Store backed by the catalog table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Register(ctx context.Context, p string, typ catalog.ResourceType, content string, payload, meta map[string]any) (*catalog.Entry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling meta: %w", err)
	}

	for attempt := 0; attempt < MaxRegisterRetries; attempt++ {
		next, err := s.nextVersion(ctx, p, typ)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		_, err = s.pool.Exec(ctx, `
			INSERT INTO catalog (resource_path, resource_version, resource_type, content, payload, meta, "timestamp")
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			p, next.String(), typ, content, payloadJSON, metaJSON, now)
		if err == nil {
			return &catalog.Entry{
				Path: p, Version: next.String(), Type: typ, Content: content,
				Payload: payload, Meta: meta, Timestamp: now,
			}, nil
		}
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("registering catalog entry: %w", err)
		}
		// Collision: retry with a freshly computed version.
	}
	return nil, fmt.Errorf("registering catalog entry: exhausted %d retries on version collision", MaxRegisterRetries)
}

func (s *PostgresStore) nextVersion(ctx context.Context, p string, typ catalog.ResourceType) (catalog.Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT resource_version FROM catalog WHERE resource_path = $1 AND resource_type = $2`, p, typ)
	if err != nil {
		return catalog.Version{}, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	best := catalog.Version{}
	found := false
	for rows.Next() {
		var vs string
		if err := rows.Scan(&vs); err != nil {
			return catalog.Version{}, fmt.Errorf("scanning version: %w", err)
		}
		v, err := catalog.ParseVersion(vs)
		if err != nil {
			continue
		}
		if !found || best.Less(v) {
			best = v
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return catalog.Version{}, err
	}
	if !found {
		return catalog.DefaultVersion, nil
	}
	return best.NextPatch(), nil
}

func (s *PostgresStore) Fetch(ctx context.Context, p, version string) (*catalog.Entry, error) {
	if e, err := s.fetchOne(ctx, p, version); err == nil {
		return e, nil
	}
	if strings.Contains(p, "/") {
		if e, err := s.fetchOne(ctx, path.Base(p), version); err == nil {
			return e, nil
		}
	}
	return nil, fmt.Errorf("catalog entry not found: %s@%s", p, version)
}

func (s *PostgresStore) fetchOne(ctx context.Context, p, version string) (*catalog.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT resource_path, resource_version, resource_type, content, payload, meta, "timestamp"
		FROM catalog WHERE resource_path = $1 AND resource_version = $2`, p, version)
	return scanEntry(row)
}

func (s *PostgresStore) Latest(ctx context.Context, p string) (*catalog.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT resource_path, resource_version, resource_type, content, payload, meta, "timestamp"
		FROM catalog WHERE resource_path = $1`, p)
	if err != nil {
		return nil, fmt.Errorf("querying latest: %w", err)
	}
	defer rows.Close()

	var best *catalog.Entry
	var bestV catalog.Version
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		v, err := catalog.ParseVersion(e.Version)
		if err != nil {
			continue
		}
		if best == nil || bestV.Less(v) {
			bestV = v
			best = e
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no versions found for path %s", p)
	}
	return best, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context, typ catalog.ResourceType) ([]catalog.Entry, error) {
	var rows pgx.Rows
	var err error
	if typ == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT resource_path, resource_version, resource_type, content, payload, meta, "timestamp"
			FROM catalog ORDER BY "timestamp" DESC`)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT resource_path, resource_version, resource_type, content, payload, meta, "timestamp"
			FROM catalog WHERE resource_type = $1 ORDER BY "timestamp" DESC`, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	defer rows.Close()

	var out []catalog.Entry
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*catalog.Entry, error) {
	var e catalog.Entry
	var payload, meta []byte
	if err := row.Scan(&e.Path, &e.Version, &e.Type, &e.Content, &payload, &meta, &e.Timestamp); err != nil {
		return nil, fmt.Errorf("scanning catalog row: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshaling payload: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Meta); err != nil {
			return nil, fmt.Errorf("unmarshaling meta: %w", err)
		}
	}
	return &e, nil
}

func scanRow(rows pgx.Rows) (*catalog.Entry, error) { return scanEntry(rows) }

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint")
}
