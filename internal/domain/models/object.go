package models

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"

	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

// FieldCategory decides the import phase a field is migrated in.
type FieldCategory int

const (
	CategoryNormal FieldCategory = iota
	CategoryConnect
	CategoryIndexBearing
	CategoryCombine
)

func (c FieldCategory) String() string {
	switch c {
	case CategoryConnect:
		return "connect"
	case CategoryIndexBearing:
		return "index-bearing"
	case CategoryCombine:
		return "combine"
	default:
		return "normal"
	}
}

var tableNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]+`)

type objectJSON struct {
	TableName        string   `json:"tableName"`
	IsExternal       Flag     `json:"isExternal"`
	IsImported       Flag     `json:"isImported"`
	IsSystemObject   Flag     `json:"isSystemObject"`
	FieldIDs         []string `json:"fieldIDs"`
	IndexIDs         []string `json:"indexIDs"`
	ImportedFieldIDs []string `json:"importedFieldIDs"`
}

// SchemaObject is a hydrated object definition. During an import its active
// field and index lists are narrowed with the Stash methods and restored
// phase by phase with the matching Apply methods.
type SchemaObject struct {
	def *Definition
	raw map[string]json.RawMessage

	ID        string
	Name      string
	TableName string

	external bool
	imported bool
	system   bool

	fieldIDs         []string
	indexIDs         []string
	importedFieldIDs []string

	byID    map[string]*Field
	fields  []*Field
	indexes []*Index

	stashedCombine      []*Field
	stashedConnect      []*Field
	stashedIndexConnect []*Index
	stashedIndexNormal  []*Index
}

// NewSchemaObject hydrates an object and the fields and indexes it lists.
// Listed ids that cannot be resolved are skipped with a warning.
func NewSchemaObject(def *Definition, r Resolver) (*SchemaObject, error) {
	var raw map[string]json.RawMessage
	if err := def.Decode(&raw); err != nil {
		return nil, err
	}
	var oj objectJSON
	if err := def.Decode(&oj); err != nil {
		return nil, err
	}

	o := &SchemaObject{
		def:              def,
		raw:              raw,
		ID:               def.ID,
		Name:             def.Name,
		TableName:        oj.TableName,
		external:         bool(oj.IsExternal),
		imported:         bool(oj.IsImported),
		system:           bool(oj.IsSystemObject),
		fieldIDs:         oj.FieldIDs,
		indexIDs:         oj.IndexIDs,
		importedFieldIDs: oj.ImportedFieldIDs,
		byID:             make(map[string]*Field),
	}
	if o.TableName == "" {
		o.TableName = "AB_" + tableNameSanitizer.ReplaceAllString(def.Name, "_")
	}

	for _, id := range oj.FieldIDs {
		fd, ok := r.Definition(id)
		if !ok {
			log.Printf("⚠️ Object %s lists unknown field %s", o.ID, id)
			continue
		}
		f, err := NewField(fd)
		if err != nil {
			return nil, err
		}
		f.ObjectID = o.ID
		o.byID[f.ID] = f
		o.fields = append(o.fields, f)
	}

	for _, id := range oj.IndexIDs {
		idef, ok := r.Definition(id)
		if !ok {
			log.Printf("⚠️ Object %s lists unknown index %s", o.ID, id)
			continue
		}
		idx, err := NewIndex(idef, o.byID)
		if err != nil {
			return nil, err
		}
		idx.ObjectID = o.ID
		o.indexes = append(o.indexes, idx)
	}
	return o, nil
}

func (o *SchemaObject) Definition() *Definition { return o.def }

// IsExternal reports a pass-through object whose table is owned elsewhere.
func (o *SchemaObject) IsExternal() bool { return o.external }
func (o *SchemaObject) IsImported() bool { return o.imported }
func (o *SchemaObject) IsSystemObject() bool { return o.system }

// Fields returns the active fields.
func (o *SchemaObject) Fields() []*Field { return append([]*Field(nil), o.fields...) }

// Indexes returns the active indexes.
func (o *SchemaObject) Indexes() []*Index { return append([]*Index(nil), o.indexes...) }

// Field looks up any field of the object, active or stashed.
func (o *SchemaObject) Field(id string) (*Field, bool) {
	f, ok := o.byID[id]
	return f, ok
}

// FieldByColumn looks up a field by column name.
func (o *SchemaObject) FieldByColumn(column string) (*Field, bool) {
	for _, f := range o.byID {
		if strings.EqualFold(f.ColumnName, column) {
			return f, true
		}
	}
	return nil, false
}

// ConnectFields returns the active connect fields.
func (o *SchemaObject) ConnectFields() []*Field {
	var out []*Field
	for _, f := range o.fields {
		if f.IsConnect() {
			out = append(out, f)
		}
	}
	return out
}

// Category classifies a field of this object.
func (o *SchemaObject) Category(f *Field) FieldCategory {
	switch {
	case f.IsCombine():
		return CategoryCombine
	case f.IsConnect():
		return CategoryConnect
	}
	for _, idx := range o.allIndexes() {
		for _, id := range idx.FieldIDs {
			if id == f.ID {
				return CategoryIndexBearing
			}
		}
	}
	return CategoryNormal
}

func (o *SchemaObject) allIndexes() []*Index {
	all := append([]*Index(nil), o.indexes...)
	all = append(all, o.stashedIndexConnect...)
	return append(all, o.stashedIndexNormal...)
}

func (o *SchemaObject) removeFields(match func(*Field) bool) []*Field {
	var kept, removed []*Field
	for _, f := range o.fields {
		if match(f) {
			removed = append(removed, f)
		} else {
			kept = append(kept, f)
		}
	}
	o.fields = kept
	return removed
}

func (o *SchemaObject) removeIndexes(match func(*Index) bool) []*Index {
	var kept, removed []*Index
	for _, idx := range o.indexes {
		if match(idx) {
			removed = append(removed, idx)
		} else {
			kept = append(kept, idx)
		}
	}
	o.indexes = kept
	return removed
}

func (o *SchemaObject) StashCombineFields() {
	o.stashedCombine = append(o.stashedCombine, o.removeFields((*Field).IsCombine)...)
}

func (o *SchemaObject) StashConnectFields() {
	o.stashedConnect = append(o.stashedConnect, o.removeFields((*Field).IsConnect)...)
}

// StashIndexesWithConnection must run before StashIndexNormal, which takes
// every index that is still active.
func (o *SchemaObject) StashIndexesWithConnection() {
	o.stashedIndexConnect = append(o.stashedIndexConnect, o.removeIndexes((*Index).IsConnectDependent)...)
}

func (o *SchemaObject) StashIndexNormal() {
	o.stashedIndexNormal = append(o.stashedIndexNormal, o.removeIndexes(func(*Index) bool { return true })...)
}

// StashDeferred stashes everything that cannot be created with the base table.
func (o *SchemaObject) StashDeferred() {
	o.StashCombineFields()
	o.StashConnectFields()
	o.StashIndexesWithConnection()
	o.StashIndexNormal()
}

// ApplyIndexNormal reinstates the stashed normal indexes and returns them.
func (o *SchemaObject) ApplyIndexNormal() []*Index {
	out := o.stashedIndexNormal
	o.indexes = append(o.indexes, out...)
	o.stashedIndexNormal = nil
	return out
}

// ApplyConnectFields reinstates the stashed connect fields and returns them.
func (o *SchemaObject) ApplyConnectFields() []*Field {
	out := o.stashedConnect
	o.fields = append(o.fields, out...)
	o.stashedConnect = nil
	return out
}

// ApplyIndexesWithConnection reinstates connect-dependent indexes.
func (o *SchemaObject) ApplyIndexesWithConnection() []*Index {
	out := o.stashedIndexConnect
	o.indexes = append(o.indexes, out...)
	o.stashedIndexConnect = nil
	return out
}

// ApplyCombineFields reinstates the stashed combine fields.
func (o *SchemaObject) ApplyCombineFields() []*Field {
	out := o.stashedCombine
	o.fields = append(o.fields, out...)
	o.stashedCombine = nil
	return out
}

// ImportField attaches a field defined elsewhere to this object and makes
// it active. Importing a field twice is a no-op.
func (o *SchemaObject) ImportField(f *Field) {
	if _, ok := o.byID[f.ID]; ok {
		return
	}
	f.ObjectID = o.ID
	o.byID[f.ID] = f
	o.fields = append(o.fields, f)
	o.fieldIDs = append(o.fieldIDs, f.ID)
	o.importedFieldIDs = append(o.importedFieldIDs, f.ID)
}

// ToDefinition renders the object, including imported fields, back into a
// definition. Keys the model does not know about are preserved.
func (o *SchemaObject) ToDefinition() (*Definition, error) {
	raw := make(map[string]json.RawMessage, len(o.raw)+2)
	for k, v := range o.raw {
		raw[k] = v
	}
	for key, ids := range map[string][]string{
		"fieldIDs":         o.fieldIDs,
		"importedFieldIDs": o.importedFieldIDs,
	} {
		if ids == nil {
			ids = []string{}
		}
		b, err := json.Marshal(ids)
		if err != nil {
			return nil, apperrors.NewInternalError("encode object "+o.ID, err)
		}
		raw[key] = b
	}
	body, err := json.Marshal(raw)
	if err != nil {
		return nil, apperrors.NewInternalError("encode object "+o.ID, err)
	}
	def := o.def.Clone()
	def.JSON = body
	return def, nil
}

// ExportIDs adds the object with its fields and indexes.
func (o *SchemaObject) ExportIDs(ids *IDSet, _ Resolver) {
	if !ids.Add(o.ID) {
		return
	}
	for _, id := range o.fieldIDs {
		ids.Add(id)
	}
	for _, id := range o.indexIDs {
		ids.Add(id)
	}
}

// exportObjectIDs exports an object without hydrating its fields.
func exportObjectIDs(id string, ids *IDSet, r Resolver) {
	if ids.Has(id) {
		return
	}
	def, ok := r.Definition(id)
	if !ok {
		return
	}
	var oj objectJSON
	if err := def.Decode(&oj); err != nil {
		ids.Add(id)
		return
	}
	ids.Add(id)
	for _, fid := range oj.FieldIDs {
		ids.Add(fid)
	}
	for _, iid := range oj.IndexIDs {
		ids.Add(iid)
	}
}
