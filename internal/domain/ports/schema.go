package ports

import (
	"context"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
)

// SchemaBuilder applies single schema changes to a tenant database.
type SchemaBuilder interface {
	// CreateObject creates the base table from the object's active fields.
	// External objects are left alone.
	CreateObject(ctx context.Context, obj *models.SchemaObject) error
	CreateField(ctx context.Context, obj *models.SchemaObject, field *models.Field) error
	CreateIndex(ctx context.Context, obj *models.SchemaObject, idx *models.Index) error
	CreateQuery(ctx context.Context, q *models.Query) error
	// RefreshBinding drops cached column information for the object's table.
	RefreshBinding(ctx context.Context, obj *models.SchemaObject)
}

// SchemaSessionProvider runs fn with a SchemaBuilder bound to one database
// session. Session settings changed for the run are restored on return.
type SchemaSessionProvider interface {
	WithSession(ctx context.Context, fn func(ctx context.Context, b SchemaBuilder) error) error
}

// ColumnInfo is one row of a table description.
type ColumnInfo struct {
	Field   string  `json:"Field"`
	Type    string  `json:"Type"`
	Null    string  `json:"Null"`
	Key     string  `json:"Key"`
	Default *string `json:"Default"`
	Extra   string  `json:"Extra"`
}

// SchemaInspector describes live tables.
type SchemaInspector interface {
	Describe(ctx context.Context, table string) ([]ColumnInfo, error)
}
