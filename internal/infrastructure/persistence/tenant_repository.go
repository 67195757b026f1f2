package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
)

// TenantRepository reads the tenant list from the site schema.
type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

var _ ports.TenantDirectory = (*TenantRepository)(nil)

func (r *TenantRepository) TenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT `uuid` FROM `%s`", TableTenants))
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
