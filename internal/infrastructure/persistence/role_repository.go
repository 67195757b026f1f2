package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

// RoleRepository stores roles and scopes in one tenant schema.
type RoleRepository struct {
	db *sql.DB
	tm *TransactionManager
}

func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db, tm: NewTransactionManager(db)}
}

var _ ports.RoleStore = (*RoleRepository)(nil)

func (r *RoleRepository) UpsertScope(ctx context.Context, scope *models.Scope) error {
	filter := nullJSON(scope.Filter)
	query := fmt.Sprintf("%s `%s` (`uuid`, `name`, `description`, `isGlobal`, `allowAll`, `filter`, `createdAt`, `updatedAt`) "+
		"VALUES (?, ?, ?, ?, ?, ?, %s, %s) %s "+
		"`name` = VALUES(`name`), `description` = VALUES(`description`), `isGlobal` = VALUES(`isGlobal`), "+
		"`allowAll` = VALUES(`allowAll`), `filter` = VALUES(`filter`), `updatedAt` = %s",
		KeywordInsertInto, TableScopes, FuncNow, FuncNow, KeywordOnDuplicate, FuncNow)

	return r.tm.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, scope.UUID, scope.Name, scope.Description, scope.IsGlobal, scope.AllowAll, filter); err != nil {
			return fmt.Errorf("failed to upsert scope %s: %w", scope.UUID, err)
		}
		return nil
	})
}

// UpsertRole inserts a role or updates its name, description and scopes.
// The users column is written on insert only.
func (r *RoleRepository) UpsertRole(ctx context.Context, role *models.Role) error {
	scopes, err := json.Marshal(nonNilStrings(role.Scopes))
	if err != nil {
		return apperrors.NewInternalError("encode role scopes", err)
	}
	users := role.Users
	if users == nil {
		users = []json.RawMessage{}
	}
	usersJSON, err := json.Marshal(users)
	if err != nil {
		return apperrors.NewInternalError("encode role users", err)
	}

	query := fmt.Sprintf("%s `%s` (`uuid`, `name`, `description`, `scopes`, `users`, `createdAt`, `updatedAt`) "+
		"VALUES (?, ?, ?, ?, ?, %s, %s) %s "+
		"`name` = VALUES(`name`), `description` = VALUES(`description`), `scopes` = VALUES(`scopes`), `updatedAt` = %s",
		KeywordInsertInto, TableRoles, FuncNow, FuncNow, KeywordOnDuplicate, FuncNow)

	return r.tm.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, role.UUID, role.Name, role.Description, string(scopes), string(usersJSON)); err != nil {
			return fmt.Errorf("failed to upsert role %s: %w", role.UUID, err)
		}
		return nil
	})
}

func (r *RoleRepository) RolesByIDs(ctx context.Context, ids []string) ([]*models.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT `uuid`, `name`, `description`, `scopes`, `users` FROM `%s` WHERE `uuid` IN (%s)",
		TableRoles, placeholders(len(ids)))
	rows, err := r.db.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		var (
			role              models.Role
			desc              sql.NullString
			scopesRaw, usersR []byte
		)
		if err := rows.Scan(&role.UUID, &role.Name, &desc, &scopesRaw, &usersR); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		role.Description = desc.String
		if len(scopesRaw) > 0 {
			if err := json.Unmarshal(scopesRaw, &role.Scopes); err != nil {
				return nil, apperrors.NewInternalError("role "+role.UUID+" has corrupt scopes", err)
			}
		}
		if len(usersR) > 0 {
			if err := json.Unmarshal(usersR, &role.Users); err != nil {
				return nil, apperrors.NewInternalError("role "+role.UUID+" has corrupt users", err)
			}
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (r *RoleRepository) ScopesByIDs(ctx context.Context, ids []string) ([]*models.Scope, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT `uuid`, `name`, `description`, `isGlobal`, `allowAll`, `filter` FROM `%s` WHERE `uuid` IN (%s)",
		TableScopes, placeholders(len(ids)))
	rows, err := r.db.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load scopes: %w", err)
	}
	defer rows.Close()

	var scopes []*models.Scope
	for rows.Next() {
		var (
			scope  models.Scope
			desc   sql.NullString
			filter []byte
		)
		if err := rows.Scan(&scope.UUID, &scope.Name, &desc, &scope.IsGlobal, &scope.AllowAll, &filter); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scope.Description = desc.String
		if len(filter) > 0 {
			scope.Filter = json.RawMessage(filter)
		}
		scopes = append(scopes, &scope)
	}
	return scopes, rows.Err()
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
