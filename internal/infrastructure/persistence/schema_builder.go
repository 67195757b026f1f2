package persistence

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

// MySQLSchemaBuilder emits the DDL for single schema changes. Every method
// is idempotent: objects, columns, keys and views that already exist are
// left in place.
type MySQLSchemaBuilder struct {
	exec    Executor
	columns *ColumnCache
}

func NewMySQLSchemaBuilder(exec Executor, columns *ColumnCache) *MySQLSchemaBuilder {
	return &MySQLSchemaBuilder{exec: exec, columns: columns}
}

var _ ports.SchemaBuilder = (*MySQLSchemaBuilder)(nil)

func (b *MySQLSchemaBuilder) CreateObject(ctx context.Context, obj *models.SchemaObject) error {
	if obj.IsExternal() {
		log.Printf("⏭️ Skipping external object %s (%s)", obj.Name, obj.TableName)
		return nil
	}
	table, err := tableIdent(obj)
	if err != nil {
		return err
	}

	cols, exists, err := b.columns.Columns(ctx, obj.TableName)
	if err != nil {
		return err
	}
	defer b.columns.Invalidate(obj.TableName)

	plain := baseColumnFields(obj)
	if exists {
		for _, f := range plain {
			if cols[strings.ToLower(f.ColumnName)] {
				continue
			}
			if err := b.addColumn(ctx, table, obj, f); err != nil {
				return err
			}
		}
		return nil
	}

	var ddl strings.Builder
	ddl.WriteString(fmt.Sprintf("%s %s (\n", KeywordCreateTable, table))
	ddl.WriteString("  `" + ColumnID + "` INT UNSIGNED NOT NULL AUTO_INCREMENT,\n")
	ddl.WriteString("  `" + ColumnUUID + "` VARCHAR(255) NOT NULL,\n")
	ddl.WriteString("  `" + ColumnCreatedAt + "` DATETIME NULL,\n")
	ddl.WriteString("  `" + ColumnUpdatedAt + "` DATETIME NULL,\n")
	ddl.WriteString("  `" + ColumnProperties + "` TEXT NULL,\n")
	for _, f := range plain {
		col, err := columnDDL(f)
		if err != nil {
			return apperrors.NewSchemaError(f.ID, "invalid column", err)
		}
		ddl.WriteString("  " + col + ",\n")
	}
	ddl.WriteString("  PRIMARY KEY (`" + ColumnID + "`),\n")
	ddl.WriteString("  UNIQUE KEY `" + ColumnUUID + "` (`" + ColumnUUID + "`)\n")
	ddl.WriteString(") " + TableOptions)

	log.Printf("📐 Creating table: %s", obj.TableName)
	if _, err := b.exec.ExecContext(ctx, ddl.String()); err != nil && !IsAlreadyExists(err) {
		log.Printf("❌ Failed to create table %s: %v", obj.TableName, err)
		return fmt.Errorf("failed to create table %s: %w", obj.TableName, err)
	}
	return nil
}

// baseColumnFields are the active fields stored as plain columns.
func baseColumnFields(obj *models.SchemaObject) []*models.Field {
	var out []*models.Field
	for _, f := range obj.Fields() {
		if f.IsConnect() || f.IsCombine() || !f.HasColumn() {
			continue
		}
		out = append(out, f)
	}
	return out
}

// tableIdent quotes an object's table name, rejecting names that are not
// plain identifiers.
func tableIdent(obj *models.SchemaObject) (string, error) {
	table, err := quoteIdent(obj.TableName)
	if err != nil {
		return "", apperrors.NewSchemaError(obj.ID, "invalid table name", err)
	}
	return table, nil
}

func columnIdent(f *models.Field) (string, error) {
	column, err := quoteIdent(f.ColumnName)
	if err != nil {
		return "", apperrors.NewSchemaError(f.ID, "invalid column", err)
	}
	return column, nil
}

func (b *MySQLSchemaBuilder) addColumn(ctx context.Context, table string, obj *models.SchemaObject, f *models.Field) error {
	col, err := columnDDL(f)
	if err != nil {
		return apperrors.NewSchemaError(f.ID, "invalid column", err)
	}
	ddl := fmt.Sprintf("%s %s ADD COLUMN %s", KeywordAlterTable, table, col)
	log.Printf("➕ Adding column %s to table %s", f.ColumnName, obj.TableName)
	if _, err := b.exec.ExecContext(ctx, ddl); err != nil && !IsAlreadyExists(err) {
		return fmt.Errorf("failed to add column %s.%s: %w", obj.TableName, f.ColumnName, err)
	}
	return nil
}

func (b *MySQLSchemaBuilder) CreateField(ctx context.Context, obj *models.SchemaObject, f *models.Field) error {
	if obj.IsExternal() {
		return nil
	}
	table, err := tableIdent(obj)
	if err != nil {
		return err
	}
	defer b.columns.Invalidate(obj.TableName)

	switch {
	case f.IsCombine():
		return b.createCombineField(ctx, table, obj, f)
	case f.IsConnect():
		return b.createConnectField(ctx, table, obj, f)
	case !f.HasColumn():
		return nil
	}

	has, err := b.columns.HasColumn(ctx, obj.TableName, f.ColumnName)
	if err != nil || has {
		return err
	}
	return b.addColumn(ctx, table, obj, f)
}

func (b *MySQLSchemaBuilder) createConnectField(ctx context.Context, table string, obj *models.SchemaObject, f *models.Field) error {
	linked := f.LinkedObject
	if linked == nil {
		return apperrors.NewSchemaError(f.ID,
			fmt.Sprintf("connect field %q links to unknown object %q", f.Name, f.Settings.LinkObject), nil)
	}
	linkedTable, err := tableIdent(linked)
	if err != nil {
		return err
	}

	switch f.Relation() {
	case models.RelationColumn:
		return b.createLinkColumn(ctx, table, linkedTable, obj, linked, f)
	case models.RelationJoinTable:
		return b.createJoinTable(ctx, table, linkedTable, obj, linked, f)
	default:
		return nil
	}
}

func (b *MySQLSchemaBuilder) createLinkColumn(ctx context.Context, table, linkedTable string, obj, linked *models.SchemaObject, f *models.Field) error {
	column, err := columnIdent(f)
	if err != nil {
		return err
	}

	has, err := b.columns.HasColumn(ctx, obj.TableName, f.ColumnName)
	if err != nil {
		return err
	}
	created := false
	if !has {
		ddl := fmt.Sprintf("%s %s ADD COLUMN %s %s NULL", KeywordAlterTable, table, column, SQLTypeVarchar255)
		if _, err := b.exec.ExecContext(ctx, ddl); err != nil && !IsAlreadyExists(err) {
			return fmt.Errorf("failed to add connect column %s.%s: %w", obj.TableName, f.ColumnName, err)
		}
		created = true
	}

	if linked.IsExternal() {
		return nil
	}

	fkName := truncateIdent("fk_" + obj.TableName + "_" + f.ColumnName)
	fkDDL := fmt.Sprintf("%s %s ADD CONSTRAINT `%s` FOREIGN KEY (%s) REFERENCES %s (`%s`) ON DELETE SET NULL ON UPDATE CASCADE",
		KeywordAlterTable, table, fkName, column, linkedTable, ColumnUUID)
	if _, err := b.exec.ExecContext(ctx, fkDDL); err != nil {
		if IsAlreadyExists(err) {
			log.Printf("⚠️ FK constraint %s already exists, skipping...", fkName)
			return nil
		}
		if created && !IsDeadlock(err) {
			log.Printf("⚠️ Failed to add FK, rolling back column %s.%s: %v", obj.TableName, f.ColumnName, err)
			if _, dropErr := b.exec.ExecContext(ctx, fmt.Sprintf("%s %s DROP COLUMN %s", KeywordAlterTable, table, column)); dropErr != nil {
				log.Printf("⚠️ Rollback column drop failed: %v", dropErr)
			}
		}
		return fmt.Errorf("failed to add foreign key %s: %w", fkName, err)
	}
	return nil
}

func (b *MySQLSchemaBuilder) createJoinTable(ctx context.Context, table, linkedTable string, obj, linked *models.SchemaObject, f *models.Field) error {
	join := JoinTableName(obj, linked, f)
	joinTable, err := quoteIdent(join)
	if err != nil {
		return apperrors.NewSchemaError(f.ID, "invalid join table name", err)
	}
	src, dst := joinColumns(obj, linked)

	var ddl strings.Builder
	ddl.WriteString(fmt.Sprintf("%s %s (\n", KeywordCreateTable, joinTable))
	ddl.WriteString("  `" + ColumnID + "` INT UNSIGNED NOT NULL AUTO_INCREMENT,\n")
	ddl.WriteString("  `" + ColumnCreatedAt + "` DATETIME NULL,\n")
	ddl.WriteString("  `" + ColumnUpdatedAt + "` DATETIME NULL,\n")
	ddl.WriteString(fmt.Sprintf("  `%s` %s NULL,\n", src, SQLTypeVarchar255))
	ddl.WriteString(fmt.Sprintf("  `%s` %s NULL,\n", dst, SQLTypeVarchar255))
	ddl.WriteString("  PRIMARY KEY (`" + ColumnID + "`)")
	if !obj.IsExternal() && !linked.IsExternal() {
		ddl.WriteString(fmt.Sprintf(",\n  CONSTRAINT `%s` FOREIGN KEY (`%s`) REFERENCES %s (`%s`) ON DELETE CASCADE",
			truncateIdent("fk_"+join+"_s"), src, table, ColumnUUID))
		ddl.WriteString(fmt.Sprintf(",\n  CONSTRAINT `%s` FOREIGN KEY (`%s`) REFERENCES %s (`%s`) ON DELETE CASCADE",
			truncateIdent("fk_"+join+"_t"), dst, linkedTable, ColumnUUID))
	}
	ddl.WriteString("\n) " + TableOptions)

	log.Printf("🔗 Creating join table: %s", join)
	if _, err := b.exec.ExecContext(ctx, ddl.String()); err != nil && !IsAlreadyExists(err) {
		return fmt.Errorf("failed to create join table %s: %w", join, err)
	}
	b.columns.Invalidate(join)
	return nil
}

func (b *MySQLSchemaBuilder) createCombineField(ctx context.Context, table string, obj *models.SchemaObject, f *models.Field) error {
	column, err := columnIdent(f)
	if err != nil {
		return err
	}
	if len(f.Settings.CombinedFields) == 0 {
		return apperrors.NewSchemaError(f.ID, "combined field has no source fields", nil)
	}

	sources := make([]string, 0, len(f.Settings.CombinedFields))
	for _, id := range f.Settings.CombinedFields {
		src, ok := obj.Field(id)
		if !ok || !src.HasColumn() {
			return apperrors.NewSchemaError(f.ID, fmt.Sprintf("combined field %q uses unknown field %q", f.Name, id), nil)
		}
		has, err := b.columns.HasColumn(ctx, obj.TableName, src.ColumnName)
		if err != nil {
			return err
		}
		if !has {
			return apperrors.NewSchemaError(f.ID,
				fmt.Sprintf("combined field %q uses column %q which does not exist", f.Name, src.ColumnName), nil)
		}
		source, err := columnIdent(src)
		if err != nil {
			return err
		}
		sources = append(sources, source)
	}

	has, err := b.columns.HasColumn(ctx, obj.TableName, f.ColumnName)
	if err != nil || has {
		return err
	}

	ddl := fmt.Sprintf("%s %s ADD COLUMN %s %s GENERATED ALWAYS AS (CONCAT_WS(%s, %s)) STORED",
		KeywordAlterTable, table, column, SQLTypeText, quoteLiteral(f.Settings.Delimiter), strings.Join(sources, ", "))
	if _, err := b.exec.ExecContext(ctx, ddl); err != nil && !IsAlreadyExists(err) {
		return fmt.Errorf("failed to add combined column %s.%s: %w", obj.TableName, f.ColumnName, err)
	}
	return nil
}

func (b *MySQLSchemaBuilder) CreateIndex(ctx context.Context, obj *models.SchemaObject, idx *models.Index) error {
	if obj.IsExternal() {
		return nil
	}
	if len(idx.Fields) == 0 {
		return apperrors.NewSchemaError(idx.ID, fmt.Sprintf("index %q has no known fields", idx.Name), nil)
	}
	table, err := tableIdent(obj)
	if err != nil {
		return err
	}

	cols := make([]string, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		if !f.HasColumn() {
			return apperrors.NewSchemaError(idx.ID, fmt.Sprintf("index %q uses field %q which has no column", idx.Name, f.Name), nil)
		}
		has, err := b.columns.HasColumn(ctx, obj.TableName, f.ColumnName)
		if err != nil {
			return err
		}
		if !has {
			return apperrors.NewSchemaError(idx.ID, fmt.Sprintf("index %q uses column %q which does not exist", idx.Name, f.ColumnName), nil)
		}
		col, err := columnIdent(f)
		if err != nil {
			return err
		}
		cols = append(cols, col)
	}

	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	name := indexName(idx)
	ddl := fmt.Sprintf("CREATE %s `%s` ON %s (%s)", kind, name, table, strings.Join(cols, ", "))
	log.Printf("🗂️ Creating index %s on %s", name, obj.TableName)
	if _, err := b.exec.ExecContext(ctx, ddl); err != nil {
		if IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("failed to create index %s: %w", name, err)
	}
	return nil
}

func (b *MySQLSchemaBuilder) CreateQuery(ctx context.Context, q *models.Query) error {
	if strings.TrimSpace(q.SQL) == "" {
		return apperrors.NewSchemaError(q.ID, fmt.Sprintf("query %q has no SQL", q.Name), nil)
	}
	view, err := quoteIdent(q.ViewName)
	if err != nil {
		return apperrors.NewSchemaError(q.ID, "invalid view name", err)
	}
	sql, tables, err := ParseViewQuery(q.SQL)
	if err != nil {
		return apperrors.NewSchemaError(q.ID, fmt.Sprintf("query %q is not valid", q.Name), err)
	}
	for _, t := range tables {
		_, exists, err := b.columns.Columns(ctx, t)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.NewSchemaError(q.ID, fmt.Sprintf("query %q reads table %q which does not exist", q.Name, t), nil)
		}
	}

	log.Printf("🔎 Creating view %s", q.ViewName)
	if _, err := b.exec.ExecContext(ctx, fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", view, sql)); err != nil {
		return fmt.Errorf("failed to create view %s: %w", q.ViewName, err)
	}
	return nil
}

func (b *MySQLSchemaBuilder) RefreshBinding(_ context.Context, obj *models.SchemaObject) {
	b.columns.Invalidate(obj.TableName)
}
