package schema

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/helixml/vectorizer/domain/vectorizer"
)

// Generated column names on the target table.
const (
	ColumnEmbeddingUUID = "embedding_uuid"
	ColumnChunkSeq      = "chunk_seq"
	ColumnChunk         = "chunk"
	ColumnEmbedding     = "embedding"
	ColumnQueuedAt      = "queued_at"
)

var targetColumns = []string{ColumnEmbeddingUUID, ColumnChunkSeq, ColumnChunk, ColumnEmbedding}

// Column is a table column with its formatted type.
type Column struct {
	Name string
	Type string
}

// Builder generates DDL for the objects of one vectorizer. Every statement is
// executed on its own; none contains bind parameters.
type Builder struct {
	source vectorizer.TableRef
	pk     vectorizer.PrimaryKey
	names  vectorizer.Names
}

// NewBuilder validates every identifier involved and returns a Builder.
func NewBuilder(source vectorizer.TableRef, pk vectorizer.PrimaryKey, names vectorizer.Names) (Builder, error) {
	if len(pk) == 0 {
		return Builder{}, vectorizer.ErrNoPrimaryKey
	}
	for _, ref := range []vectorizer.TableRef{source, names.Target, names.View, names.Queue} {
		if err := ValidateRef(ref); err != nil {
			return Builder{}, err
		}
	}
	if err := ValidateIdentifier(names.Trigger); err != nil {
		return Builder{}, err
	}
	for _, c := range pk {
		if err := ValidateIdentifier(c.Name); err != nil {
			return Builder{}, err
		}
		if slices.Contains(targetColumns, c.Name) {
			return Builder{}, fmt.Errorf("%w: primary key column %q clashes with a generated column", vectorizer.ErrInvalidIdentifier, c.Name)
		}
	}
	return Builder{source: source, pk: pk, names: names}, nil
}

// ForVectorizer returns the Builder of a registered vectorizer.
func ForVectorizer(v vectorizer.Vectorizer) (Builder, error) {
	return NewBuilder(v.Source(), v.PrimaryKey(), v.Names())
}

func (b Builder) pkList(prefix string) string {
	return quoteColumns(b.pk.Names(), prefix)
}

func (b Builder) pkJoin(left, right string) string {
	parts := make([]string, len(b.pk))
	for i, c := range b.pk {
		col := QuoteIdent(c.Name)
		parts[i] = left + "." + col + " = " + right + "." + col
	}
	return strings.Join(parts, " AND ")
}

// CreateTarget returns the statements creating the target table.
func (b Builder) CreateTarget(dimensions int) []string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", QuoteRef(b.names.Target))
	fmt.Fprintf(&sb, "    %s uuid NOT NULL PRIMARY KEY DEFAULT gen_random_uuid(),\n", QuoteIdent(ColumnEmbeddingUUID))
	for _, c := range b.pk {
		fmt.Fprintf(&sb, "    %s %s NOT NULL,\n", QuoteIdent(c.Name), c.Type)
	}
	fmt.Fprintf(&sb, "    %s integer NOT NULL,\n", QuoteIdent(ColumnChunkSeq))
	fmt.Fprintf(&sb, "    %s text NOT NULL,\n", QuoteIdent(ColumnChunk))
	fmt.Fprintf(&sb, "    %s vector(%d) NOT NULL,\n", QuoteIdent(ColumnEmbedding), dimensions)
	fmt.Fprintf(&sb, "    UNIQUE (%s, %s),\n", b.pkList(""), QuoteIdent(ColumnChunkSeq))
	fmt.Fprintf(&sb, "    FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE CASCADE\n", b.pkList(""), QuoteRef(b.source), b.pkList(""))
	sb.WriteString(")")

	return []string{
		sb.String(),
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET STORAGE MAIN", QuoteRef(b.names.Target), QuoteIdent(ColumnEmbedding)),
	}
}

// CreateQueue returns the statements creating the queue table and its index.
func (b Builder) CreateQueue() []string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", QuoteRef(b.names.Queue))
	for _, c := range b.pk {
		fmt.Fprintf(&sb, "    %s %s NOT NULL,\n", QuoteIdent(c.Name), c.Type)
	}
	fmt.Fprintf(&sb, "    %s timestamptz NOT NULL DEFAULT now()\n", QuoteIdent(ColumnQueuedAt))
	sb.WriteString(")")

	return []string{
		sb.String(),
		fmt.Sprintf("CREATE INDEX ON %s (%s)", QuoteRef(b.names.Queue), b.pkList("")),
	}
}

// CreateView returns the join view statement. Primary key values come from
// the target so the planner can drop the join when only target columns are
// read. Source columns that clash with generated columns are left out.
func (b Builder) CreateView(sourceColumns []Column) string {
	cols := make([]string, 0, len(targetColumns)+len(sourceColumns))
	for _, c := range targetColumns {
		cols = append(cols, "t."+QuoteIdent(c))
	}
	cols = append(cols, quoteColumns(b.pk.Names(), "t."))

	pkNames := b.pk.Names()
	for _, c := range sourceColumns {
		if slices.Contains(pkNames, c.Name) || slices.Contains(targetColumns, c.Name) {
			continue
		}
		cols = append(cols, "s."+QuoteIdent(c.Name))
	}

	return fmt.Sprintf("CREATE VIEW %s AS\nSELECT %s\nFROM %s t\nLEFT JOIN %s s ON (%s)",
		QuoteRef(b.names.View),
		strings.Join(cols, ", "),
		QuoteRef(b.names.Target),
		QuoteRef(b.source),
		b.pkJoin("t", "s"),
	)
}

// CreateTriggerFunction returns the statement creating the trigger's backing
// function, which enqueues the primary key of the new row.
func (b Builder) CreateTriggerFunction() string {
	values := make([]string, len(b.pk))
	for i, c := range b.pk {
		values[i] = "NEW." + QuoteIdent(c.Name)
	}
	return fmt.Sprintf(`CREATE FUNCTION %s() RETURNS trigger
LANGUAGE plpgsql
VOLATILE
SECURITY DEFINER
SET search_path = pg_catalog, pg_temp
AS $trg$
BEGIN
    INSERT INTO %s (%s)
    VALUES (%s);
    RETURN NULL;
END;
$trg$`,
		QuoteRef(b.names.TriggerFunction()),
		QuoteRef(b.names.Queue),
		b.pkList(""),
		strings.Join(values, ", "),
	)
}

// CreateTrigger returns the statement attaching the trigger to the source.
func (b Builder) CreateTrigger() string {
	return fmt.Sprintf("CREATE TRIGGER %s AFTER INSERT OR UPDATE ON %s FOR EACH ROW EXECUTE FUNCTION %s()",
		QuoteIdent(b.names.Trigger),
		QuoteRef(b.source),
		QuoteRef(b.names.TriggerFunction()),
	)
}

// Dependencies returns statements recording queue->source, queue->target and
// target->source as normal catalog dependencies, so DROP ... CASCADE on the
// source also removes the derived tables. Requires superuser.
func (b Builder) Dependencies() []string {
	edge := func(from, to vectorizer.TableRef) string {
		return fmt.Sprintf(`INSERT INTO pg_catalog.pg_depend (classid, objid, objsubid, refclassid, refobjid, refobjsubid, deptype)
VALUES ('pg_catalog.pg_class'::pg_catalog.regclass, %s, 0, 'pg_catalog.pg_class'::pg_catalog.regclass, %s, 0, 'n')`,
			regclass(from), regclass(to))
	}
	return []string{
		edge(b.names.Queue, b.source),
		edge(b.names.Queue, b.names.Target),
		edge(b.names.Target, b.source),
	}
}

// Grants returns the statements granting role access to the generated objects.
func (b Builder) Grants(role string) []string {
	r := QuoteIdent(role)

	schemas := []string{vectorizer.CatalogSchema}
	for _, s := range []string{b.names.Target.Schema(), b.names.Queue.Schema(), b.names.View.Schema()} {
		if !slices.Contains(schemas, s) {
			schemas = append(schemas, s)
		}
	}

	stmts := make([]string, 0, len(schemas)+6)
	for _, s := range schemas {
		stmts = append(stmts, fmt.Sprintf("GRANT USAGE ON SCHEMA %s TO %s", QuoteIdent(s), r))
	}
	catalog := vectorizer.NewTableRef(vectorizer.CatalogSchema, "vectorizer")
	jobs := vectorizer.NewTableRef(vectorizer.CatalogSchema, "vectorizer_job")
	status := vectorizer.NewTableRef(vectorizer.CatalogSchema, "vectorizer_status")
	return append(stmts,
		fmt.Sprintf("GRANT SELECT ON %s, %s, %s TO %s", QuoteRef(catalog), QuoteRef(jobs), QuoteRef(status), r),
		fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON %s TO %s", QuoteRef(b.names.Target), r),
		fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON %s TO %s", QuoteRef(b.names.Queue), r),
		fmt.Sprintf("GRANT SELECT ON %s TO %s", QuoteRef(b.names.View), r),
		fmt.Sprintf("GRANT EXECUTE ON FUNCTION %s() TO %s", QuoteRef(b.names.TriggerFunction()), r),
	)
}

// Backfill returns the statement enqueueing every existing source row.
func (b Builder) Backfill() string {
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		QuoteRef(b.names.Queue), b.pkList(""), b.pkList(""), QuoteRef(b.source))
}

// DropTrigger returns the statement removing the trigger from the source.
func (b Builder) DropTrigger(name string) string {
	return fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", QuoteIdent(name), QuoteRef(b.source))
}

// DropFunction returns the statement removing a trigger function.
func DropFunction(fn vectorizer.TableRef) string {
	return fmt.Sprintf("DROP FUNCTION IF EXISTS %s()", QuoteRef(fn))
}

// DropQueue returns the statement removing the queue table.
func (b Builder) DropQueue() string {
	return "DROP TABLE IF EXISTS " + QuoteRef(b.names.Queue)
}

// DropView returns the statement removing the join view.
func (b Builder) DropView() string {
	return "DROP VIEW IF EXISTS " + QuoteRef(b.names.View)
}

// DropTarget returns the statement removing the target table.
func (b Builder) DropTarget() string {
	return "DROP TABLE IF EXISTS " + QuoteRef(b.names.Target)
}

// AccessMethod returns the index access method of an indexing implementation.
func AccessMethod(implementation string) (string, error) {
	switch implementation {
	case vectorizer.IndexHNSW, vectorizer.IndexDiskANN, vectorizer.IndexIVFFlat:
		return implementation, nil
	default:
		return "", fmt.Errorf("%w: no access method for indexing %q", vectorizer.ErrInvalidConfig, implementation)
	}
}

// CreateIndex returns the statement building the vector index on target.
func CreateIndex(target vectorizer.TableRef, cfg vectorizer.IndexingConfig) (string, error) {
	am, err := AccessMethod(cfg.Implementation)
	if err != nil {
		return "", err
	}

	column := QuoteIdent(ColumnEmbedding)
	var params []string
	switch cfg.Implementation {
	case vectorizer.IndexHNSW:
		column = withOpclass(column, cfg.Opclass)
		params = appendInt(params, "m", cfg.M)
		params = appendInt(params, "ef_construction", cfg.EfConstruction)
	case vectorizer.IndexIVFFlat:
		column = withOpclass(column, cfg.Opclass)
		params = appendInt(params, "lists", cfg.Lists)
	case vectorizer.IndexDiskANN:
		if cfg.StorageLayout != "" {
			params = append(params, fmt.Sprintf("storage_layout = '%s'", cfg.StorageLayout))
		}
		params = appendInt(params, "num_neighbors", cfg.NumNeighbors)
		params = appendInt(params, "search_list_size", cfg.SearchListSize)
		if cfg.MaxAlpha > 0 {
			params = append(params, "max_alpha = "+strconv.FormatFloat(cfg.MaxAlpha, 'f', -1, 64))
		}
		params = appendInt(params, "num_dimensions", cfg.NumDimensions)
		params = appendInt(params, "num_bits_per_dimension", cfg.NumBitsPerDimension)
	}

	stmt := fmt.Sprintf("CREATE INDEX ON %s USING %s (%s)", QuoteRef(target), am, column)
	if len(params) > 0 {
		stmt += " WITH (" + strings.Join(params, ", ") + ")"
	}
	return stmt, nil
}

func withOpclass(column, opclass string) string {
	if opclass == "" {
		return column
	}
	return column + " " + opclass
}

func appendInt(params []string, name string, value int) []string {
	if value <= 0 {
		return params
	}
	return append(params, fmt.Sprintf("%s = %d", name, value))
}
