package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Field keys with special migration handling.
const (
	FieldKeyConnect  = "connectObject"
	FieldKeyCombined = "combined"
)

// virtualFieldKeys are computed at read time and own no column.
var virtualFieldKeys = map[string]bool{
	"calculate":   true,
	"formula":     true,
	"TextFormula": true,
}

// Flag decodes booleans that arrive as true/false, 0/1 or "0"/"1".
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

// FieldSettings holds the settings the schema builder reads.
type FieldSettings struct {
	Required       Flag            `json:"required"`
	Unique         Flag            `json:"unique"`
	Default        json.RawMessage `json:"default,omitempty"`
	LinkObject     string          `json:"linkObject,omitempty"`
	LinkType       string          `json:"linkType,omitempty"`
	LinkViaType    string          `json:"linkViaType,omitempty"`
	IsSource       Flag            `json:"isSource"`
	CombinedFields []string        `json:"combinedFields,omitempty"`
	Delimiter      string          `json:"delimiter,omitempty"`
}

// DefaultString renders the default value as text, or "" when unset.
func (s FieldSettings) DefaultString() string {
	return rawString(s.Default)
}

// rawString renders a JSON scalar as text. Strings are unquoted.
func rawString(v json.RawMessage) string {
	raw := bytes.TrimSpace(v)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return string(raw)
}

// Relation describes where a connect field keeps its link.
type Relation int

const (
	// RelationNone: the linked object holds the column.
	RelationNone Relation = iota
	// RelationColumn: this object holds a foreign key column.
	RelationColumn
	// RelationJoinTable: both sides are "many". Only the source side owns
	// the join table.
	RelationJoinTable
)

// Field is a hydrated field definition. Fields belong to exactly one object.
type Field struct {
	def *Definition

	ID         string
	Name       string
	Key        string
	ColumnName string
	Settings   FieldSettings
	ObjectID   string

	// LinkedObject is resolved by the importer before a connect field is
	// created.
	LinkedObject *SchemaObject
}

type fieldJSON struct {
	ID         string        `json:"id"`
	Key        string        `json:"key"`
	ColumnName string        `json:"columnName"`
	Settings   FieldSettings `json:"settings"`
}

// NewField hydrates a field definition.
func NewField(def *Definition) (*Field, error) {
	var fj fieldJSON
	if err := def.Decode(&fj); err != nil {
		return nil, err
	}
	f := &Field{
		def:        def,
		ID:         def.ID,
		Name:       def.Name,
		Key:        fj.Key,
		ColumnName: fj.ColumnName,
		Settings:   fj.Settings,
	}
	if f.ColumnName == "" {
		f.ColumnName = def.Name
	}
	return f, nil
}

func (f *Field) Definition() *Definition { return f.def }

func (f *Field) IsConnect() bool { return f.Key == FieldKeyConnect }
func (f *Field) IsCombine() bool { return f.Key == FieldKeyCombined }

// HasColumn reports whether the field is stored in its object's table.
func (f *Field) HasColumn() bool {
	if virtualFieldKeys[f.Key] || f.ColumnName == "" {
		return false
	}
	return !f.IsConnect() || f.Relation() == RelationColumn
}

// Relation classifies a connect field. Non-connect fields report RelationNone.
func (f *Field) Relation() Relation {
	if !f.IsConnect() {
		return RelationNone
	}
	from, via := f.Settings.LinkType, f.Settings.LinkViaType
	switch {
	case from == "many" && via == "many":
		if bool(f.Settings.IsSource) {
			return RelationJoinTable
		}
		return RelationNone
	case from == "one" && via == "many":
		return RelationColumn
	case from == "one" && via == "one":
		if bool(f.Settings.IsSource) {
			return RelationColumn
		}
		return RelationNone
	default:
		return RelationNone
	}
}

func (f *Field) ExportIDs(ids *IDSet, _ Resolver) {
	ids.Add(f.ID)
}
