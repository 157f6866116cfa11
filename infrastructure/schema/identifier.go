// Package schema generates and manages the database objects behind a
// vectorizer: target table, queue table, join view and change-capture trigger.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// maxIdentifierLength is PostgreSQL's NAMEDATALEN - 1.
const maxIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidateIdentifier checks name against the identifier allow-list.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", vectorizer.ErrInvalidIdentifier)
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("%w: %q exceeds %d bytes", vectorizer.ErrInvalidIdentifier, name, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", vectorizer.ErrInvalidIdentifier, name)
	}
	return nil
}

// ValidateRef checks both parts of a table reference.
func ValidateRef(ref vectorizer.TableRef) error {
	if err := ValidateIdentifier(ref.Schema()); err != nil {
		return err
	}
	return ValidateIdentifier(ref.Name())
}

// QuoteIdent quotes a single identifier.
func QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// QuoteRef quotes a schema-qualified reference.
func QuoteRef(ref vectorizer.TableRef) string {
	if ref.Schema() == "" {
		return QuoteIdent(ref.Name())
	}
	return pgx.Identifier{ref.Schema(), ref.Name()}.Sanitize()
}

// regclass renders ref as a regclass literal for catalog statements.
// Callers validate ref first, so it contains no quote characters.
func regclass(ref vectorizer.TableRef) string {
	return "'" + QuoteRef(ref) + "'::pg_catalog.regclass"
}

func quoteColumns(names []string, prefix string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = prefix + QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// PostgreSQL error codes mapped onto the vectorizer error taxonomy.
const (
	codeInsufficientPrivilege = "42501"
	codeDuplicateTable        = "42P07"
	codeDuplicateObject       = "42710"
	codeDuplicateFunction     = "42723"
)

// Classify wraps PostgreSQL errors with the matching vectorizer sentinel.
func Classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeInsufficientPrivilege:
		return errors.Join(vectorizer.ErrPermissionDenied, err)
	case codeDuplicateTable, codeDuplicateObject, codeDuplicateFunction:
		return errors.Join(vectorizer.ErrNameCollision, err)
	default:
		return err
	}
}
