// Package lock provides the mutual exclusion an upgrade run needs. The
// runner itself never locks; callers hold a Locker around it.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"

	"github.com/loykin/sqlupgrade/internal/store"
)

// ErrLocked is returned when another process holds the upgrade lock.
var ErrLocked = errors.New("another upgrade is already in progress")

// Locker obtains the upgrade lock. The returned release function must be
// called when the run finishes.
type Locker interface {
	Acquire(ctx context.Context) (release func() error, err error)
}

// New returns the locker suited to the store driver.
func New(driver string, db *sql.DB, th store.TableNames, key string) (Locker, error) {
	switch store.NormalizeDriver(driver) {
	case store.DriverPostgresql:
		return NewPostgresLock(db, key), nil
	case store.DriverSqlite:
		return NewSQLiteLock(db, th.Lock), nil
	default:
		return nil, fmt.Errorf("no lock implementation for driver %q", driver)
	}
}

// HashKey maps a lock name to an advisory lock id (FNV-1a, non-negative).
func HashKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF) //nolint:gosec // truncation is intended
}

func defaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + ":" + strconv.Itoa(os.Getpid())
}
