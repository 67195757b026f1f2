package persistence

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// ParseViewQuery checks that sql is a single SELECT, returns it in
// canonical form and lists the tables it reads from.
func ParseViewQuery(sql string) (string, []string, error) {
	stmtNodes, _, err := parser.New().Parse(sql, "", "")
	if err != nil {
		return "", nil, fmt.Errorf("SQL parse error: %v", err)
	}
	if len(stmtNodes) != 1 {
		return "", nil, fmt.Errorf("a query must be a single SQL statement, got %d", len(stmtNodes))
	}

	stmt := stmtNodes[0]
	switch stmt.(type) {
	case *ast.SelectStmt, *ast.SetOprStmt:
	default:
		return "", nil, fmt.Errorf("only SELECT statements can back a query")
	}

	collector := &tableCollector{seen: make(map[string]bool)}
	stmt.Accept(collector)

	var sb strings.Builder
	if err := stmt.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)); err != nil {
		return "", nil, fmt.Errorf("SQL restore error: %v", err)
	}
	return sb.String(), collector.tables, nil
}

// tableCollector gathers unqualified table names in order of appearance.
type tableCollector struct {
	seen   map[string]bool
	tables []string
}

func (c *tableCollector) Enter(in ast.Node) (ast.Node, bool) {
	if t, ok := in.(*ast.TableName); ok {
		name := t.Name.O
		if name != "" && t.Schema.O == "" && !c.seen[strings.ToLower(name)] {
			c.seen[strings.ToLower(name)] = true
			c.tables = append(c.tables, name)
		}
	}
	return in, false
}

func (c *tableCollector) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}
