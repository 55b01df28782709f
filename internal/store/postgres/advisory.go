package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// AdvisoryLocker serializes ledger work across processes with session-level
// advisory locks. Each Lock call pins one pooled connection until unlocked.
type AdvisoryLocker struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewAdvisoryLocker(db *sql.DB, logger *slog.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{db: db, logger: logger}
}

func (a *AdvisoryLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	held := make([]string, 0, len(keys))
	release := func() {
		if err := unlockAll(conn, held); err != nil {
			// A session that may still hold locks must not go back to the pool.
			a.logger.Error("advisory unlock failed, discarding connection", "keys", held, "error", err)
			conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		conn.Close()
	}

	for _, key := range keys {
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
			release()
			return nil, fmt.Errorf("advisory lock %s: %w", key, err)
		}
		held = append(held, key)
	}
	return release, nil
}

// unlockAll releases keys newest first and reports every key that was not
// released.
func unlockAll(conn *sql.Conn, keys []string) error {
	ctx := context.Background()
	var errs []error
	for i := len(keys) - 1; i >= 0; i-- {
		var released bool
		err := conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, keys[i]).Scan(&released)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("advisory unlock %s: %w", keys[i], err))
		case !released:
			errs = append(errs, fmt.Errorf("advisory unlock %s: lock was not held", keys[i]))
		}
	}
	return errors.Join(errs...)
}
