package persistence

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ColumnCache is the per-tenant binding cache: the column set of each table
// as last read from INFORMATION_SCHEMA. It is never updated in place;
// callers that change a table must Invalidate it.
type ColumnCache struct {
	db Executor

	mu     sync.RWMutex
	tables map[string]map[string]bool
}

func NewColumnCache(db Executor) *ColumnCache {
	return &ColumnCache{db: db, tables: make(map[string]map[string]bool)}
}

// Columns returns the lower-cased column names of table and whether the
// table exists.
func (c *ColumnCache) Columns(ctx context.Context, table string) (map[string]bool, bool, error) {
	key := strings.ToLower(table)

	c.mu.RLock()
	cols, ok := c.tables[key]
	c.mu.RUnlock()
	if ok {
		return cols, len(cols) > 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cols, ok := c.tables[key]; ok {
		return cols, len(cols) > 0, nil
	}

	rows, err := c.db.QueryContext(ctx,
		"SELECT `COLUMN_NAME` FROM INFORMATION_SCHEMA.COLUMNS WHERE `TABLE_SCHEMA` = DATABASE() AND `TABLE_NAME` = ?",
		table)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols = make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, false, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	c.tables[key] = cols
	return cols, len(cols) > 0, nil
}

// HasColumn reports whether table currently has column.
func (c *ColumnCache) HasColumn(ctx context.Context, table, column string) (bool, error) {
	cols, _, err := c.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	return cols[strings.ToLower(column)], nil
}

// Invalidate forgets one table.
func (c *ColumnCache) Invalidate(table string) {
	c.mu.Lock()
	delete(c.tables, strings.ToLower(table))
	c.mu.Unlock()
}

// Clear forgets every table.
func (c *ColumnCache) Clear() {
	c.mu.Lock()
	c.tables = make(map[string]map[string]bool)
	c.mu.Unlock()
}
