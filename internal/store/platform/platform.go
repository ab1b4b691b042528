// Package platform opens the pgxpool.Pool shared by the event log, catalog
// and credential stores, following the retrieved pack's database.Open idiom
// (connect, ping with a bounded timeout, return a ready-to-use handle).
package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open establishes a pgx connection pool and verifies connectivity with a
// ping bounded by pingTimeout.
func Open(ctx context.Context, dsn string, pingTimeout time.Duration) (*pgxpool.Pool, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// OpenWithRetry calls Open every interval until it succeeds or deadline
// elapses, then returns the last error wrapped (or ctx's error if ctx is
// done first). It blocks the caller for the whole retry period.
func OpenWithRetry(ctx context.Context, dsn string, deadline, interval time.Duration) (*pgxpool.Pool, error) {
	start := time.Now()
	var lastErr error
	for {
		pool, err := Open(ctx, dsn, 10*time.Second)
		if err == nil {
			return pool, nil
		}
		lastErr = err
		if time.Since(start) >= deadline {
			return nil, fmt.Errorf("postgres unreachable after %s: %w", deadline, lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
