package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// Executor is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var validIdentifier = regexp.MustCompile(`^[A-Za-z0-9_$][A-Za-z0-9_$\-]*$`)

// quoteIdent backtick-quotes a table, column or index name after checking
// it is a plain identifier of legal length.
func quoteIdent(name string) (string, error) {
	if len(name) == 0 || len(name) > maxIdentifierLength || !validIdentifier.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return "`" + name + "`", nil
}

// truncateIdent shortens generated names to the identifier limit.
func truncateIdent(name string) string {
	if len(name) > maxIdentifierLength {
		return name[:maxIdentifierLength]
	}
	return name
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
