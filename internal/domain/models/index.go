package models

// Index is a hydrated index definition over fields of one object.
type Index struct {
	def *Definition

	ID       string
	Name     string
	Unique   bool
	FieldIDs []string
	Fields   []*Field
	ObjectID string
}

type indexJSON struct {
	IndexName string   `json:"indexName"`
	Unique    Flag     `json:"unique"`
	FieldIDs  []string `json:"fieldIDs"`
}

// NewIndex hydrates an index and binds it to the fields of its object.
// Unknown field ids are kept in FieldIDs but have no entry in Fields.
func NewIndex(def *Definition, fields map[string]*Field) (*Index, error) {
	var ij indexJSON
	if err := def.Decode(&ij); err != nil {
		return nil, err
	}
	idx := &Index{
		def:      def,
		ID:       def.ID,
		Name:     ij.IndexName,
		Unique:   bool(ij.Unique),
		FieldIDs: ij.FieldIDs,
	}
	if idx.Name == "" {
		idx.Name = def.Name
	}
	for _, id := range ij.FieldIDs {
		if f, ok := fields[id]; ok {
			idx.Fields = append(idx.Fields, f)
		}
	}
	return idx, nil
}

func (i *Index) Definition() *Definition { return i.def }

// IsConnectDependent reports whether any indexed field is a connect field.
func (i *Index) IsConnectDependent() bool {
	for _, f := range i.Fields {
		if f.IsConnect() {
			return true
		}
	}
	return false
}

func (i *Index) ExportIDs(ids *IDSet, _ Resolver) {
	ids.Add(i.ID)
}
