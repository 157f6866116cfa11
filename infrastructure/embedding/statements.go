package embedding

import (
	"fmt"
	"strings"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/schema"
	"github.com/helixml/vectorizer/internal/database"
)

// maxInsertRows bounds the rows of one multi-row INSERT so the statement stays
// well under the 65535 bind parameter limit.
const maxInsertRows = 1000

// statements renders the SQL of one vectorizer's unit of work. Identifiers are
// validated by schema.ForVectorizer; values are always bound.
type statements struct {
	pk     vectorizer.PrimaryKey
	source string
	target string
	queue  string
	lockNS int32
}

func newStatements(v vectorizer.Vectorizer) (statements, error) {
	if _, err := schema.ForVectorizer(v); err != nil {
		return statements{}, err
	}
	return statements{
		pk:     v.PrimaryKey(),
		source: schema.QuoteRef(v.Source()),
		target: schema.QuoteRef(v.Target()),
		queue:  schema.QuoteRef(v.Queue()),
		lockNS: database.LockKey(v.Queue().String()),
	}, nil
}

func (s statements) columns(prefix string) string {
	parts := make([]string, len(s.pk))
	for i, c := range s.pk {
		parts[i] = prefix + schema.QuoteIdent(c.Name)
	}
	return strings.Join(parts, ", ")
}

func (s statements) asText(prefix string) string {
	parts := make([]string, len(s.pk))
	for i, c := range s.pk {
		parts[i] = "CAST(" + prefix + schema.QuoteIdent(c.Name) + " AS text)"
	}
	return strings.Join(parts, ", ")
}

func (s statements) joinOn(left, right string) string {
	parts := make([]string, len(s.pk))
	for i, c := range s.pk {
		col := schema.QuoteIdent(c.Name)
		parts[i] = left + "." + col + " = " + right + "." + col
	}
	return strings.Join(parts, " AND ")
}

// keyTuple is one parenthesised, typed placeholder tuple for a primary key.
func (s statements) keyTuple() string {
	parts := make([]string, len(s.pk))
	for i, c := range s.pk {
		parts[i] = "CAST(? AS " + c.Type + ")"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (s statements) keyIn(prefix string, keys []Key) (string, []any) {
	tuples := make([]string, len(keys))
	args := make([]any, 0, len(keys)*len(s.pk))
	for i, k := range keys {
		tuples[i] = s.keyTuple()
		for _, v := range k {
			args = append(args, v)
		}
	}
	return fmt.Sprintf("(%s) IN (%s)", s.columns(prefix), strings.Join(tuples, ", ")), args
}

// Claim takes up to batch queue rows that no other session holds, keeps the
// distinct keys whose per-key advisory lock is free, deletes every queue row
// of those keys and returns them as text.
func (s statements) Claim(batch int) string {
	cols := s.columns("")
	return fmt.Sprintf(`WITH selected AS (
    SELECT %[1]s FROM %[2]s
    LIMIT %[3]d
    FOR UPDATE SKIP LOCKED
), keys AS (
    SELECT DISTINCT %[1]s FROM selected
), locked AS (
    SELECT %[1]s FROM keys
    WHERE pg_catalog.pg_try_advisory_xact_lock(%[4]d, pg_catalog.hashtext(pg_catalog.concat_ws('|', %[1]s)))
), deleted AS (
    DELETE FROM %[2]s q USING locked l
    WHERE %[5]s
)
SELECT %[6]s FROM locked l`, cols, s.queue, batch, s.lockNS, s.joinOn("q", "l"), s.asText("l."))
}

// Load selects the current source rows of keys as JSON objects.
func (s statements) Load(keys []Key) (string, []any) {
	in, args := s.keyIn("s.", keys)
	return fmt.Sprintf("SELECT %s, CAST(pg_catalog.to_jsonb(s) AS text) FROM %s s WHERE %s",
		s.asText("s."), s.source, in), args
}

// DeleteTarget removes every stored chunk of keys.
func (s statements) DeleteTarget(keys []Key) (string, []any) {
	in, args := s.keyIn("", keys)
	return fmt.Sprintf("DELETE FROM %s WHERE %s", s.target, in), args
}

// InsertTarget writes rows into the target table. Callers keep len(rows) at
// or below maxInsertRows.
func (s statements) InsertTarget(rows []Row) (string, []any) {
	tuple := strings.TrimSuffix(s.keyTuple(), ")") + ", ?, ?, CAST(? AS vector))"
	tuples := make([]string, len(rows))
	args := make([]any, 0, len(rows)*(len(s.pk)+3))
	for i, r := range rows {
		tuples[i] = tuple
		for _, v := range r.Key {
			args = append(args, v)
		}
		args = append(args, r.Seq, r.Chunk, r.Embedding)
	}
	return fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES %s",
		s.target, s.columns(""),
		schema.QuoteIdent(schema.ColumnChunkSeq),
		schema.QuoteIdent(schema.ColumnChunk),
		schema.QuoteIdent(schema.ColumnEmbedding),
		strings.Join(tuples, ", ")), args
}
