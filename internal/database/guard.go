package database

import (
	"context"
	"sync"

	"hospital-backup/internal/errors"
)

// IntegrityGuard holds referential-integrity enforcement off on one session until released.
// Release is safe to call on every exit path; after a successful release further calls are no-ops.
type IntegrityGuard struct {
	mu       sync.Mutex
	q        Queryer
	dialect  Dialect
	released bool
}

// DisableIntegrityChecks turns off referential-integrity enforcement on q and returns
// the guard that re-enables it. q should be a dedicated *sql.Conn so the toggle stays
// on the session that replays statements.
func DisableIntegrityChecks(ctx context.Context, q Queryer, d Dialect) (*IntegrityGuard, error) {
	if _, err := q.ExecContext(ctx, d.DisableIntegrityChecks()); err != nil {
		return nil, errors.WrapError(err, "failed to disable integrity checks")
	}
	return &IntegrityGuard{q: q, dialect: d}, nil
}

// Release re-enables integrity checks. A failed release can be retried.
func (g *IntegrityGuard) Release(ctx context.Context) error {
	if g == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return nil
	}

	// the session must be restored even when the caller's context is already canceled
	if _, err := g.q.ExecContext(context.WithoutCancel(ctx), g.dialect.EnableIntegrityChecks()); err != nil {
		return errors.NewFatalExecutionError("failed to re-enable integrity checks", err)
	}

	g.released = true
	return nil
}

// Released reports whether integrity checks have been re-enabled
func (g *IntegrityGuard) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}
