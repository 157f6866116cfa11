package database

import (
	"context"
	"errors"
	"testing"
)

func TestLockKey_Stable(t *testing.T) {
	if LockKey("public.docs_embedding_store") != LockKey("public.docs_embedding_store") {
		t.Error("LockKey should be deterministic")
	}
	if LockKey("public.a") == LockKey("public.b") {
		t.Error("distinct names should hash differently")
	}
}

func TestLockManager_RequiresTransaction(t *testing.T) {
	db := openTestDB(t)
	m := NewLockManager(db, "vectorizer.index")

	_, err := m.TryAcquire(context.Background(), "public.t")
	if !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("expected ErrNoTransaction, got %v", err)
	}
}

func TestLockManager_SQLiteAlwaysGranted(t *testing.T) {
	db := openTestDB(t)
	m := NewLockManager(db, "vectorizer.index")

	err := WithTransaction(context.Background(), db, func(ctx context.Context) error {
		ok, err := m.TryAcquire(ctx, "public.t")
		if err != nil {
			return err
		}
		if !ok {
			t.Error("expected lock to be granted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}
	if m.namespace != LockKey("vectorizer.index") {
		t.Error("namespace should be the hash of its name")
	}
}
