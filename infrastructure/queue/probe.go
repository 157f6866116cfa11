// Package queue measures vectorizer queue and target table depth.
package queue

import (
	"context"
	"fmt"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/schema"
	"github.com/helixml/vectorizer/internal/database"
)

const (
	sqlBoundedCountTemplate = `SELECT count(1) FROM (SELECT 1 FROM %s LIMIT %d) q`
	sqlExactCountTemplate   = `SELECT count(1) FROM %s`

	sqlRelationExistsPostgres = `SELECT count(1) FROM (SELECT pg_catalog.to_regclass(?) AS oid) r WHERE r.oid IS NOT NULL`
	sqlRelationExistsSQLite   = `SELECT count(1) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`
)

// Probe counts rows without paying for a full scan unless asked to.
type Probe struct {
	db database.Database
}

// NewProbe creates a Probe.
func NewProbe(db database.Database) Probe {
	return Probe{db: db}
}

// Pending returns the backlog of a queue table. The bounded count stops
// after BacklogCap rows and returns BacklogSentinel beyond it; exact counts
// every row.
func (p Probe) Pending(ctx context.Context, queue vectorizer.TableRef, exact bool) (int64, error) {
	if exact {
		var n int64
		stmt := fmt.Sprintf(sqlExactCountTemplate, schema.QuoteRef(queue))
		if err := p.db.Session(ctx).Raw(stmt).Scan(&n).Error; err != nil {
			return 0, fmt.Errorf("count queue %s: %w", queue, err)
		}
		return n, nil
	}

	n, err := p.boundedCount(ctx, queue, vectorizer.BacklogCap+1)
	if err != nil {
		return 0, err
	}
	if n > vectorizer.BacklogCap {
		return vectorizer.BacklogSentinel, nil
	}
	return n, nil
}

// Exists reports whether table is present, so callers can tell an empty
// queue from one dropped out of band.
func (p Probe) Exists(ctx context.Context, table vectorizer.TableRef) (bool, error) {
	var n int64
	var err error
	if p.db.IsPostgres() {
		err = p.db.Session(ctx).Raw(sqlRelationExistsPostgres, schema.QuoteRef(table)).Scan(&n).Error
	} else {
		err = p.db.Session(ctx).Raw(sqlRelationExistsSQLite, table.Name()).Scan(&n).Error
	}
	if err != nil {
		return false, fmt.Errorf("check %s: %w", table, err)
	}
	return n > 0, nil
}

// AtLeast reports whether table holds at least n rows, reading no more than n.
func (p Probe) AtLeast(ctx context.Context, table vectorizer.TableRef, n int64) (bool, error) {
	if n <= 0 {
		return true, nil
	}
	count, err := p.boundedCount(ctx, table, n)
	if err != nil {
		return false, err
	}
	return count >= n, nil
}

func (p Probe) boundedCount(ctx context.Context, table vectorizer.TableRef, limit int64) (int64, error) {
	var n int64
	stmt := fmt.Sprintf(sqlBoundedCountTemplate, schema.QuoteRef(table), limit)
	if err := p.db.Session(ctx).Raw(stmt).Scan(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
