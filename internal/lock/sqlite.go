package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/sqlupgrade/internal/common"
	"github.com/loykin/sqlupgrade/internal/constants"
)

// SQLiteLock holds the lock as a single row in a lock table. A crashed run
// leaves the row behind; ForceRelease clears it.
type SQLiteLock struct {
	db    *sql.DB
	table string
	Owner string
}

// NewSQLiteLock creates a lock backed by table (default schema_lock).
func NewSQLiteLock(db *sql.DB, table string) *SQLiteLock {
	if table == "" {
		table = constants.DefaultLockTable
	}
	return &SQLiteLock{db: db, table: table, Owner: defaultOwner()}
}

func (l *SQLiteLock) ensure(ctx context.Context) error {
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY CHECK (id = 1), owner TEXT NOT NULL, acquired_at TEXT NOT NULL)", l.table)
	if _, err := l.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create lock table: %w", err)
	}
	return nil
}

func (l *SQLiteLock) Acquire(ctx context.Context) (func() error, error) {
	logger := common.GetLogger().WithComponent("lock")
	if err := l.ensure(ctx); err != nil {
		return nil, err
	}

	q := fmt.Sprintf("INSERT OR IGNORE INTO %s(id, owner, acquired_at) VALUES(1, ?, ?)", l.table)
	res, err := l.db.ExecContext(ctx, q, l.Owner, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if n == 0 {
		holder, _ := l.Holder(ctx)
		logger.Warn("upgrade lock is held", "holder", holder)
		return nil, ErrLocked
	}
	logger.Debug("lock row acquired", "owner", l.Owner)

	release := func() error {
		q := fmt.Sprintf("DELETE FROM %s WHERE id = 1 AND owner = ?", l.table)
		if _, err := l.db.ExecContext(context.Background(), q, l.Owner); err != nil {
			return fmt.Errorf("release lock: %w", err)
		}
		return nil
	}
	return release, nil
}

// Holder returns the owner of the lock row, or "" when unlocked.
func (l *SQLiteLock) Holder(ctx context.Context) (string, error) {
	if err := l.ensure(ctx); err != nil {
		return "", err
	}
	var owner string
	err := l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT owner FROM %s WHERE id = 1", l.table)).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return owner, err
}

// ForceRelease removes the lock row regardless of owner.
func (l *SQLiteLock) ForceRelease(ctx context.Context) error {
	if err := l.ensure(ctx); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = 1", l.table))
	return err
}
