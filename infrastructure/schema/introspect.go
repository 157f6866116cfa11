package schema

import (
	"context"
	"fmt"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/internal/database"
)

// Catalog queries. Relation arguments are quoted references resolved with
// to_regclass, so a missing relation yields no rows instead of an error.
const (
	sqlRelationExists = `SELECT pg_catalog.to_regclass(?) IS NOT NULL`

	sqlPrimaryKey = `
SELECT a.attnum AS ordinal, a.attname AS name, pg_catalog.format_type(a.atttypid, a.atttypmod) AS type
FROM pg_catalog.pg_constraint k
JOIN pg_catalog.pg_attribute a ON a.attrelid = k.conrelid AND a.attnum = ANY(k.conkey)
WHERE k.conrelid = pg_catalog.to_regclass(?)
AND k.contype = 'p'
ORDER BY pg_catalog.array_position(k.conkey, a.attnum)`

	sqlColumns = `
SELECT a.attname AS name, pg_catalog.format_type(a.atttypid, a.atttypmod) AS type
FROM pg_catalog.pg_attribute a
WHERE a.attrelid = pg_catalog.to_regclass(?)
AND a.attnum > 0
AND NOT a.attisdropped
ORDER BY a.attnum`

	sqlIsSuperuser = `SELECT r.rolsuper FROM pg_catalog.pg_roles r WHERE r.rolname = current_user`

	sqlIsOwner = `
SELECT pg_catalog.pg_has_role(current_user, c.relowner, 'MEMBER')
FROM pg_catalog.pg_class c
WHERE c.oid = pg_catalog.to_regclass(?)`

	sqlTriggerExists = `
SELECT EXISTS (
    SELECT 1 FROM pg_catalog.pg_trigger g
    WHERE g.tgrelid = pg_catalog.to_regclass(?)
    AND g.tgname = ?
)`

	sqlTriggerFunction = `
SELECT n.nspname AS schema, p.proname AS name
FROM pg_catalog.pg_trigger g
JOIN pg_catalog.pg_proc p ON p.oid = g.tgfoid
JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
WHERE g.tgrelid = pg_catalog.to_regclass(?)
AND g.tgname = ?`

	sqlFunctionBySignature = `
SELECT n.nspname AS schema, p.proname AS name
FROM pg_catalog.pg_proc p
JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
WHERE n.nspname = ?
AND p.proname = ?
AND p.pronargs = 0
AND p.prorettype = 'pg_catalog.trigger'::pg_catalog.regtype`

	sqlVectorIndexExists = `
SELECT EXISTS (
    SELECT 1
    FROM pg_catalog.pg_index i
    JOIN pg_catalog.pg_class c ON c.oid = i.indexrelid
    JOIN pg_catalog.pg_am am ON am.oid = c.relam
    JOIN pg_catalog.pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
    WHERE i.indrelid = pg_catalog.to_regclass(?)
    AND a.attname = ?
    AND am.amname = ?
)`
)

// Introspector reads the PostgreSQL catalog. Every call runs on the session of
// ctx, joining an ambient transaction when there is one.
type Introspector struct {
	db database.Database
}

// NewIntrospector creates an Introspector.
func NewIntrospector(db database.Database) Introspector {
	return Introspector{db: db}
}

// RelationExists reports whether a table or view named ref exists.
func (i Introspector) RelationExists(ctx context.Context, ref vectorizer.TableRef) (bool, error) {
	var exists bool
	if err := i.db.Session(ctx).Raw(sqlRelationExists, QuoteRef(ref)).Scan(&exists).Error; err != nil {
		return false, fmt.Errorf("check relation %s: %w", ref, err)
	}
	return exists, nil
}

// PrimaryKey returns the ordered primary key of source. It fails with
// ErrSourceNotFound or ErrNoPrimaryKey.
func (i Introspector) PrimaryKey(ctx context.Context, source vectorizer.TableRef) (vectorizer.PrimaryKey, error) {
	exists, err := i.RelationExists(ctx, source)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", vectorizer.ErrSourceNotFound, source)
	}

	var rows []struct {
		Ordinal int
		Name    string
		Type    string
	}
	if err := i.db.Session(ctx).Raw(sqlPrimaryKey, QuoteRef(source)).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("introspect primary key of %s: %w", source, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", vectorizer.ErrNoPrimaryKey, source)
	}

	pk := make(vectorizer.PrimaryKey, len(rows))
	for n, r := range rows {
		pk[n] = vectorizer.PrimaryKeyColumn{Ordinal: r.Ordinal, Name: r.Name, Type: r.Type}
	}
	return pk, nil
}

// Columns returns the columns of ref in table order.
func (i Introspector) Columns(ctx context.Context, ref vectorizer.TableRef) ([]Column, error) {
	var cols []Column
	if err := i.db.Session(ctx).Raw(sqlColumns, QuoteRef(ref)).Scan(&cols).Error; err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", ref, err)
	}
	return cols, nil
}

// IsSuperuser reports whether the current role is a superuser.
func (i Introspector) IsSuperuser(ctx context.Context) (bool, error) {
	var super bool
	if err := i.db.Session(ctx).Raw(sqlIsSuperuser).Scan(&super).Error; err != nil {
		return false, fmt.Errorf("check superuser: %w", err)
	}
	return super, nil
}

// IsOwner reports whether the current role owns ref, directly or through
// role membership.
func (i Introspector) IsOwner(ctx context.Context, ref vectorizer.TableRef) (bool, error) {
	var owner bool
	if err := i.db.Session(ctx).Raw(sqlIsOwner, QuoteRef(ref)).Scan(&owner).Error; err != nil {
		return false, fmt.Errorf("check ownership of %s: %w", ref, err)
	}
	return owner, nil
}

// TriggerExists reports whether source has a trigger called name.
func (i Introspector) TriggerExists(ctx context.Context, source vectorizer.TableRef, name string) (bool, error) {
	var exists bool
	if err := i.db.Session(ctx).Raw(sqlTriggerExists, QuoteRef(source), name).Scan(&exists).Error; err != nil {
		return false, fmt.Errorf("check trigger %s: %w", name, err)
	}
	return exists, nil
}

// FunctionExists reports whether a zero-argument trigger function fn exists.
func (i Introspector) FunctionExists(ctx context.Context, fn vectorizer.TableRef) (bool, error) {
	_, found, err := i.functionBySignature(ctx, fn)
	return found, err
}

// TriggerFunction locates the function behind a change-capture trigger. When
// the trigger is gone, for example after a restore that skipped it, the
// function is looked up by its expected signature instead.
func (i Introspector) TriggerFunction(
	ctx context.Context,
	source vectorizer.TableRef,
	trigger string,
	expected vectorizer.TableRef,
) (fn vectorizer.TableRef, triggerFound bool, functionFound bool, err error) {
	var rows []struct {
		Schema string
		Name   string
	}
	if err := i.db.Session(ctx).Raw(sqlTriggerFunction, QuoteRef(source), trigger).Scan(&rows).Error; err != nil {
		return vectorizer.TableRef{}, false, false, fmt.Errorf("find trigger %s: %w", trigger, err)
	}
	if len(rows) > 0 {
		return vectorizer.NewTableRef(rows[0].Schema, rows[0].Name), true, true, nil
	}

	fn, found, err := i.functionBySignature(ctx, expected)
	return fn, false, found, err
}

func (i Introspector) functionBySignature(ctx context.Context, fn vectorizer.TableRef) (vectorizer.TableRef, bool, error) {
	var rows []struct {
		Schema string
		Name   string
	}
	if err := i.db.Session(ctx).Raw(sqlFunctionBySignature, fn.Schema(), fn.Name()).Scan(&rows).Error; err != nil {
		return vectorizer.TableRef{}, false, fmt.Errorf("find function %s: %w", fn, err)
	}
	if len(rows) == 0 {
		return vectorizer.TableRef{}, false, nil
	}
	return vectorizer.NewTableRef(rows[0].Schema, rows[0].Name), true, nil
}

// VectorIndexExists reports whether target has an index of the given
// implementation on its embedding column.
func (i Introspector) VectorIndexExists(ctx context.Context, target vectorizer.TableRef, implementation string) (bool, error) {
	am, err := AccessMethod(implementation)
	if err != nil {
		return false, err
	}
	var exists bool
	err = i.db.Session(ctx).Raw(sqlVectorIndexExists, QuoteRef(target), ColumnEmbedding, am).Scan(&exists).Error
	if err != nil {
		return false, fmt.Errorf("check vector index on %s: %w", target, err)
	}
	return exists, nil
}
