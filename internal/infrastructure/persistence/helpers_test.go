package persistence

import (
	"database/sql"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
)

// sqlLog records every statement sqlmock was asked to match.
type sqlLog struct {
	mu  sync.Mutex
	all []string
}

func (l *sqlLog) statements() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.all...)
}

func (l *sqlLog) joined() string { return strings.Join(l.statements(), "\n") }

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *sqlLog) {
	t.Helper()
	rec := &sqlLog{}
	matcher := sqlmock.QueryMatcherFunc(func(expected, actual string) error {
		rec.mu.Lock()
		rec.all = append(rec.all, actual)
		rec.mu.Unlock()
		return sqlmock.QueryMatcherRegexp.Match(expected, actual)
	})
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock, rec
}

// sqlPattern matches a statement containing every fragment in order.
func sqlPattern(fragments ...string) string {
	quoted := make([]string, len(fragments))
	for i, f := range fragments {
		quoted[i] = regexp.QuoteMeta(f)
	}
	return "(?s)" + strings.Join(quoted, ".*")
}

const columnsQuery = "SELECT `COLUMN_NAME` FROM INFORMATION_SCHEMA.COLUMNS"

func expectColumns(mock sqlmock.Sqlmock, table string, cols ...string) {
	rows := sqlmock.NewRows([]string{"COLUMN_NAME"})
	for _, c := range cols {
		rows.AddRow(c)
	}
	mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).WithArgs(table).WillReturnRows(rows)
}

func def(id string, typ models.DefinitionType, name, body string) *models.Definition {
	return &models.Definition{ID: id, Type: typ, Name: name, JSON: json.RawMessage(body)}
}

// contactFixture is a Contact object linked to a Company object.
func contactFixture(t *testing.T) (contact, company *models.SchemaObject) {
	t.Helper()
	defs := models.DefinitionMap{
		"f-name":    def("f-name", models.TypeField, "name", `{"key":"string","columnName":"name","settings":{"required":1}}`),
		"f-age":     def("f-age", models.TypeField, "age", `{"key":"number","columnName":"age","settings":{"default":"3"}}`),
		"f-email":   def("f-email", models.TypeField, "email", `{"key":"email","columnName":"email"}`),
		"f-company": def("f-company", models.TypeField, "company", `{"key":"connectObject","columnName":"company","settings":{"linkObject":"o-company","linkType":"one","linkViaType":"many"}}`),
		"f-tags":    def("f-tags", models.TypeField, "tags", `{"key":"connectObject","columnName":"tags","settings":{"linkObject":"o-company","linkType":"many","linkViaType":"many","isSource":1}}`),
		"f-label":   def("f-label", models.TypeField, "label", `{"key":"combined","columnName":"label","settings":{"combinedFields":["f-name","f-email"],"delimiter":"-"}}`),
		"f-calc":    def("f-calc", models.TypeField, "calc", `{"key":"calculate","columnName":"calc"}`),
		"i-email":   def("i-email", models.TypeIndex, "email_idx", `{"indexName":"IDX_email","unique":1,"fieldIDs":["f-email"]}`),
		"i-name":    def("i-name", models.TypeIndex, "name_idx", `{"fieldIDs":["f-name"]}`),
	}
	defs["o-contact"] = def("o-contact", models.TypeObject, "Contact",
		`{"tableName":"AB_Contact","fieldIDs":["f-name","f-age","f-email","f-company","f-tags","f-label","f-calc"],"indexIDs":["i-email","i-name"]}`)
	defs["o-company"] = def("o-company", models.TypeObject, "Company", `{"tableName":"AB_Company"}`)

	var err error
	contact, err = models.NewSchemaObject(defs["o-contact"], defs)
	require.NoError(t, err)
	company, err = models.NewSchemaObject(defs["o-company"], defs)
	require.NoError(t, err)
	for _, f := range contact.ConnectFields() {
		f.LinkedObject = company
	}
	return contact, company
}

func field(t *testing.T, obj *models.SchemaObject, id string) *models.Field {
	t.Helper()
	f, ok := obj.Field(id)
	require.True(t, ok, "field %s", id)
	return f
}

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
