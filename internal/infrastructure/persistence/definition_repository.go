package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

const definitionColumns = "`id`, `name`, `type`, `json`, `createdAt`, `updatedAt`"

// DefinitionRepository stores definitions in one tenant schema.
type DefinitionRepository struct {
	db *sql.DB
	tm *TransactionManager
}

func NewDefinitionRepository(db *sql.DB) *DefinitionRepository {
	return &DefinitionRepository{db: db, tm: NewTransactionManager(db)}
}

var _ ports.DefinitionRepository = (*DefinitionRepository)(nil)

// EnsureTable creates the definition table of a fresh tenant.
func (r *DefinitionRepository) EnsureTable(ctx context.Context) error {
	var ddl strings.Builder
	ddl.WriteString(fmt.Sprintf("%s `%s` (\n", KeywordCreateTable, TableDefinitions))
	ddl.WriteString("  `id` VARCHAR(255) NOT NULL,\n")
	ddl.WriteString("  `name` VARCHAR(255) NULL,\n")
	ddl.WriteString("  `type` VARCHAR(64) NULL,\n")
	ddl.WriteString("  `json` LONGTEXT NULL,\n")
	ddl.WriteString("  `createdAt` DATETIME NULL,\n")
	ddl.WriteString("  `updatedAt` DATETIME NULL,\n")
	ddl.WriteString("  PRIMARY KEY (`id`)\n")
	ddl.WriteString(") " + TableOptions)

	if _, err := r.db.ExecContext(ctx, ddl.String()); err != nil {
		return fmt.Errorf("failed to create %s: %w", TableDefinitions, err)
	}
	return nil
}

func (r *DefinitionRepository) Create(ctx context.Context, def *models.Definition) error {
	query := fmt.Sprintf("%s `%s` (%s) VALUES (?, ?, ?, ?, %s, %s)",
		KeywordInsertInto, TableDefinitions, definitionColumns, FuncNow, FuncNow)
	if _, err := r.db.ExecContext(ctx, query, def.ID, def.Name, string(def.Type), string(def.JSON)); err != nil {
		if IsDuplicateEntry(err) {
			c := apperrors.NewConflictError("definition", "id", def.ID)
			c.Cause = err
			return c
		}
		return fmt.Errorf("failed to insert definition %s: %w", def.ID, err)
	}
	return nil
}

func (r *DefinitionRepository) Update(ctx context.Context, def *models.Definition) error {
	query := fmt.Sprintf("UPDATE `%s` SET `name` = ?, `type` = ?, `json` = ?, `updatedAt` = %s WHERE `id` = ?",
		TableDefinitions, FuncNow)
	res, err := r.db.ExecContext(ctx, query, def.Name, string(def.Type), string(def.JSON), def.ID)
	if err != nil {
		return fmt.Errorf("failed to update definition %s: %w", def.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("definition", def.ID)
	}
	return nil
}

// Delete removes the row inside a transaction so the returned copy is
// exactly what was deleted.
func (r *DefinitionRepository) Delete(ctx context.Context, id string) (*models.Definition, error) {
	var deleted *models.Definition
	err := r.tm.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf("SELECT %s FROM `%s` WHERE `id` = ? FOR UPDATE", definitionColumns, TableDefinitions)
		def, err := scanDefinition(tx.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError("definition", id)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM `%s` WHERE `id` = ?", TableDefinitions), id); err != nil {
			return fmt.Errorf("failed to delete definition %s: %w", id, err)
		}
		deleted = def
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *DefinitionRepository) FindByID(ctx context.Context, id string) (*models.Definition, error) {
	query := fmt.Sprintf("SELECT %s FROM `%s` WHERE `id` = ?", definitionColumns, TableDefinitions)
	def, err := scanDefinition(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("definition", id)
	}
	return def, err
}

func (r *DefinitionRepository) FindAll(ctx context.Context) ([]*models.Definition, error) {
	query := fmt.Sprintf("SELECT %s FROM `%s`", definitionColumns, TableDefinitions)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*models.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDefinition(row rowScanner) (*models.Definition, error) {
	var (
		def       models.Definition
		name, typ sql.NullString
		body      []byte
		created   sql.NullTime
		updated   sql.NullTime
	)
	if err := row.Scan(&def.ID, &name, &typ, &body, &created, &updated); err != nil {
		return nil, fmt.Errorf("failed to scan definition: %w", err)
	}
	def.Name = name.String
	def.Type = models.DefinitionType(typ.String)
	def.JSON = json.RawMessage(body)
	def.CreatedAt = created.Time
	def.UpdatedAt = updated.Time
	if err := def.Normalize(); err != nil {
		return nil, apperrors.NewInternalError("stored definition "+def.ID+" is corrupt", err)
	}
	return &def, nil
}
