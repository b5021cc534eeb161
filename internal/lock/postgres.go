package lock

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/loykin/sqlupgrade/internal/common"
)

// PostgresLock uses a session advisory lock. The lock and unlock run on
// the same dedicated connection since advisory locks belong to a session.
type PostgresLock struct {
	db *sql.DB
	id int64
	// Wait blocks until the lock is free instead of failing with ErrLocked.
	Wait bool
}

// NewPostgresLock creates a lock whose id is derived from key.
func NewPostgresLock(db *sql.DB, key string) *PostgresLock {
	return &PostgresLock{db: db, id: HashKey(key)}
}

func (l *PostgresLock) Acquire(ctx context.Context) (func() error, error) {
	logger := common.GetLogger().WithComponent("lock")

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	if l.Wait {
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, l.id); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("pg_advisory_lock(%d): %w", l.id, err)
		}
	} else {
		var got bool
		if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.id).Scan(&got); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("pg_try_advisory_lock(%d): %w", l.id, err)
		}
		if !got {
			_ = conn.Close()
			return nil, ErrLocked
		}
	}
	logger.Debug("advisory lock acquired", "lock_id", l.id)

	release := func() error {
		defer func() { _ = conn.Close() }()
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, l.id); err != nil {
			return fmt.Errorf("pg_advisory_unlock(%d): %w", l.id, err)
		}
		logger.Debug("advisory lock released", "lock_id", l.id)
		return nil
	}
	return release, nil
}
