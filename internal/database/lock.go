package database

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
)

// ErrNoTransaction indicates a transaction-scoped operation was called
// without a transaction in the context.
var ErrNoTransaction = errors.New("no transaction in context")

// LockManager hands out non-blocking advisory locks keyed by a namespace and
// a resource name. Locks are held until the surrounding transaction ends;
// there is no unlock call.
type LockManager struct {
	db        Database
	namespace int32
}

// NewLockManager creates a LockManager whose keys live under namespace.
func NewLockManager(db Database, namespace string) LockManager {
	return LockManager{db: db, namespace: LockKey(namespace)}
}

// TryAcquire attempts to take the lock for resource in the transaction
// carried by ctx. It returns false without waiting if another session holds it.
// SQLite serialises writers itself, so the lock is always granted there.
func (m LockManager) TryAcquire(ctx context.Context, resource string) (bool, error) {
	if !InTransaction(ctx) {
		return false, ErrNoTransaction
	}
	if !m.db.IsPostgres() {
		return true, nil
	}

	var acquired bool
	err := m.db.Session(ctx).
		Raw("SELECT pg_catalog.pg_try_advisory_xact_lock(?, ?)", m.namespace, LockKey(resource)).
		Scan(&acquired).Error
	if err != nil {
		return false, fmt.Errorf("try advisory lock %s: %w", resource, err)
	}
	return acquired, nil
}

// LockKey returns a stable 32-bit hash of name.
func LockKey(name string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int32(h.Sum32())
}
