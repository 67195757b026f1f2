package persistence

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
)

// SQLTypeFor maps a field key to its column type.
func SQLTypeFor(f *models.Field) string {
	switch f.Key {
	case models.FieldKeyConnect, "string", "email", "list", "AutoIndex_string":
		return SQLTypeVarchar255
	case "LongText":
		return SQLTypeLongText
	case "number":
		return SQLTypeDouble
	case "AutoIndex":
		return SQLTypeInt
	case "boolean":
		return SQLTypeTinyInt1
	case "date":
		return SQLTypeDate
	case "datetime":
		return SQLTypeDateTime
	case "json":
		return SQLTypeJSON
	case models.FieldKeyCombined, "user", "file", "image", "tree", "selectivity":
		return SQLTypeText
	default:
		return SQLTypeVarchar255
	}
}

// supportsDefault reports whether MySQL accepts a literal DEFAULT for the
// column type.
func supportsDefault(sqlType string) bool {
	switch sqlType {
	case SQLTypeText, SQLTypeLongText, SQLTypeJSON:
		return false
	}
	return true
}

func isNumericType(sqlType string) bool {
	switch sqlType {
	case SQLTypeInt, SQLTypeDouble, SQLTypeTinyInt1:
		return true
	}
	return false
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `''`)
	return "'" + s + "'"
}

// columnDDL builds "`name` TYPE [NOT NULL] [DEFAULT x] [UNIQUE]".
func columnDDL(f *models.Field) (string, error) {
	name, err := quoteIdent(f.ColumnName)
	if err != nil {
		return "", err
	}
	sqlType := SQLTypeFor(f)

	var b strings.Builder
	b.WriteString(name)
	b.WriteString(" ")
	b.WriteString(sqlType)
	if bool(f.Settings.Required) {
		b.WriteString(" NOT NULL")
	} else {
		b.WriteString(" NULL")
	}
	if def := f.Settings.DefaultString(); def != "" && supportsDefault(sqlType) {
		if isNumericType(sqlType) {
			if _, err := strconv.ParseFloat(def, 64); err == nil {
				b.WriteString(" DEFAULT " + def)
			}
		} else {
			b.WriteString(" DEFAULT " + quoteLiteral(def))
		}
	}
	if bool(f.Settings.Unique) && sqlType != SQLTypeText && sqlType != SQLTypeLongText && sqlType != SQLTypeJSON {
		b.WriteString(" UNIQUE")
	}
	return b.String(), nil
}

var indexNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]+`)

func indexName(idx *models.Index) string {
	name := indexNameSanitizer.ReplaceAllString(idx.Name, "_")
	if strings.Trim(name, "_") == "" {
		name = "IDX_" + indexNameSanitizer.ReplaceAllString(idx.ID, "")
	}
	return truncateIdent(name)
}

// JoinTableName names the table backing a many-to-many connect field.
func JoinTableName(obj, linked *models.SchemaObject, f *models.Field) string {
	return truncateIdent("AB_JOIN_" + obj.TableName + "_" + linked.TableName + "_" + f.ColumnName)
}

// joinColumns returns the column names of a join table; self references
// get a distinct target column.
func joinColumns(obj, linked *models.SchemaObject) (string, string) {
	src, dst := truncateIdent(obj.TableName), truncateIdent(linked.TableName)
	if strings.EqualFold(src, dst) {
		dst = truncateIdent(linked.TableName + "_link")
		if strings.EqualFold(src, dst) {
			dst = "link_uuid"
		}
	}
	return src, dst
}
