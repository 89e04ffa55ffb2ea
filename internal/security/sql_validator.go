package security

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

var (
	ErrNotSelectQuery    = errors.New("only SELECT queries are allowed")
	ErrSQLSyntaxError    = errors.New("SQL syntax error")
	ErrUnboundedQuery    = errors.New("query must have a LIMIT")
	ErrEmptyQuery        = errors.New("query cannot be empty")
	ErrQueryTooLong      = errors.New("query exceeds maximum length")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Catalog database, schema and table names: letters, digits and underscores.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,254}$`)

// SQLValidator checks generated read-back queries before they are sent to a
// query engine.
type SQLValidator struct {
	maxQueryLength int
	parser         *sqlparser.Parser
}

// NewSQLValidator creates a new SQLValidator instance
func NewSQLValidator(maxQueryLength int) *SQLValidator {
	if maxQueryLength <= 0 {
		maxQueryLength = 10000 // Default max query length
	}
	return &SQLValidator{
		maxQueryLength: maxQueryLength,
		parser:         sqlparser.NewTestParser(),
	}
}

// ValidateIdentifier rejects names that cannot be interpolated into SQL unquoted.
func (sv *SQLValidator) ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// ValidateStatement checks that sql is a single SELECT with a LIMIT clause.
func (sv *SQLValidator) ValidateStatement(sql string) error {
	sql = sv.normalizeSQL(sql)
	if sql == "" {
		return ErrEmptyQuery
	}
	if len(sql) > sv.maxQueryLength {
		return ErrQueryTooLong
	}

	stmt, err := sv.parser.Parse(sql)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSQLSyntaxError, err)
	}

	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return ErrNotSelectQuery
	}
	if sel.Limit == nil || sel.Limit.Rowcount == nil {
		return ErrUnboundedQuery
	}

	return nil
}

// ValidateTableQuery checks names and the "SELECT * FROM <names> LIMIT limit"
// statement built from them. Names are backquoted for the parse so words the
// parser's grammar reserves (key, rank) are still accepted as table names.
func (sv *SQLValidator) ValidateTableQuery(limit int, names ...string) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: no table name", ErrInvalidIdentifier)
	}

	quoted := make([]string, len(names))
	for i, name := range names {
		if err := sv.ValidateIdentifier(name); err != nil {
			return err
		}
		quoted[i] = "`" + name + "`"
	}

	return sv.ValidateStatement(fmt.Sprintf("SELECT * FROM %s LIMIT %d", strings.Join(quoted, "."), limit))
}

func (sv *SQLValidator) normalizeSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	return strings.TrimSpace(strings.TrimSuffix(sql, ";"))
}
