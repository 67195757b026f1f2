package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	"github.com/digi-serve/ab-service-definition-manager/internal/infrastructure/database"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

// SchemaSessions hands out schema builders bound to a dedicated connection
// with a widened lock wait timeout and foreign key checks disabled.
type SchemaSessions struct {
	db       *sql.DB
	columns  *ColumnCache
	lockWait time.Duration
}

func NewSchemaSessions(db *sql.DB, columns *ColumnCache, lockWait time.Duration) *SchemaSessions {
	return &SchemaSessions{db: db, columns: columns, lockWait: lockWait}
}

var _ ports.SchemaSessionProvider = (*SchemaSessions)(nil)

func (s *SchemaSessions) WithSession(ctx context.Context, fn func(ctx context.Context, b ports.SchemaBuilder) error) error {
	return database.WithLockWaitTimeout(ctx, s.db, s.lockWait, func(ctx context.Context, conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS=0"); err != nil {
			log.Printf("⚠️ Failed to disable FK checks: %v", err)
		} else {
			defer func() {
				if _, err := conn.ExecContext(context.WithoutCancel(ctx), "SET FOREIGN_KEY_CHECKS=1"); err != nil {
					log.Printf("⚠️ Failed to re-enable FK checks: %v", err)
				}
			}()
		}
		return fn(ctx, NewMySQLSchemaBuilder(conn, s.columns))
	})
}

// SchemaInspector describes live tables of one tenant.
type SchemaInspector struct {
	db Executor
}

func NewSchemaInspector(db Executor) *SchemaInspector {
	return &SchemaInspector{db: db}
}

var _ ports.SchemaInspector = (*SchemaInspector)(nil)

func (i *SchemaInspector) Describe(ctx context.Context, table string) ([]ports.ColumnInfo, error) {
	quoted, err := quoteIdent(table)
	if err != nil {
		return nil, apperrors.NewValidationError("table", err.Error())
	}
	rows, err := i.db.QueryContext(ctx, "DESCRIBE "+quoted)
	if err != nil {
		if IsNoSuchTable(err) {
			return nil, apperrors.NewNotFoundError("table", table)
		}
		return nil, fmt.Errorf("failed to describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ports.ColumnInfo
	for rows.Next() {
		var (
			c   ports.ColumnInfo
			def sql.NullString
		)
		if err := rows.Scan(&c.Field, &c.Type, &c.Null, &c.Key, &def, &c.Extra); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		if def.Valid {
			v := def.String
			c.Default = &v
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}
