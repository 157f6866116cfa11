package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type txKey struct{}

// ContextWithTx returns a context carrying tx. Database.Session picks it up.
func ContextWithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}

// InTransaction reports whether ctx carries an open transaction.
func InTransaction(ctx context.Context) bool {
	return txFromContext(ctx) != nil
}

// Transaction wraps a GORM transaction with commit/rollback semantics.
type Transaction struct {
	tx       *gorm.DB
	finished bool
}

// NewTransaction starts a new database transaction.
func NewTransaction(ctx context.Context, db Database) (Transaction, error) {
	tx := db.GORM().WithContext(ctx).Begin()
	if tx.Error != nil {
		return Transaction{}, fmt.Errorf("begin transaction: %w", tx.Error)
	}
	return Transaction{tx: tx}, nil
}

// Session returns the transaction session for executing queries.
func (t Transaction) Session() *gorm.DB {
	return t.tx
}

// Commit commits the transaction.
func (t *Transaction) Commit() error {
	if t.finished {
		return nil
	}
	if err := t.tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	t.finished = true
	return nil
}

// Rollback rolls back the transaction if not already finished.
func (t *Transaction) Rollback() error {
	if t.finished {
		return nil
	}
	if err := t.tx.Rollback().Error; err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	t.finished = true
	return nil
}

// WithTransaction executes fn within a transaction, committing on success or
// rolling back on error. The context handed to fn carries the transaction so
// stores built on the same Database join it. If ctx already carries a
// transaction, fn runs inside it and the outer caller owns commit.
func WithTransaction(ctx context.Context, db Database, fn func(ctx context.Context) error) error {
	_, err := WithTransactionResult(ctx, db, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// WithTransactionResult executes fn within a transaction, returning the result on success.
func WithTransactionResult[T any](ctx context.Context, db Database, fn func(ctx context.Context) (T, error)) (T, error) {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	var result T

	txn, err := NewTransaction(ctx, db)
	if err != nil {
		return result, err
	}

	defer func() {
		if !txn.finished {
			_ = txn.Rollback()
		}
	}()

	result, err = fn(ContextWithTx(ctx, txn.Session()))
	if err != nil {
		return result, err
	}

	if err := txn.Commit(); err != nil {
		return result, err
	}

	return result, nil
}
