package models

// Query is a hydrated query definition, materialized as a view.
type Query struct {
	def *Definition

	ID        string
	Name      string
	ViewName  string
	ObjectIDs []string
	SQL       string

	// Objects is resolved by the importer before the view is created.
	Objects []*SchemaObject
}

type queryJSON struct {
	ViewName  string   `json:"viewName"`
	ObjectIDs []string `json:"objectIDs"`
	SQL       string   `json:"sql"`
}

func NewQuery(def *Definition) (*Query, error) {
	var qj queryJSON
	if err := def.Decode(&qj); err != nil {
		return nil, err
	}
	q := &Query{
		def:       def,
		ID:        def.ID,
		Name:      def.Name,
		ViewName:  qj.ViewName,
		ObjectIDs: qj.ObjectIDs,
		SQL:       qj.SQL,
	}
	if q.ViewName == "" {
		q.ViewName = "AB_QUERY_" + tableNameSanitizer.ReplaceAllString(def.Name, "_")
	}
	return q, nil
}

func (q *Query) Definition() *Definition { return q.def }

func (q *Query) ExportIDs(ids *IDSet, r Resolver) {
	if !ids.Add(q.ID) {
		return
	}
	for _, id := range q.ObjectIDs {
		exportObjectIDs(id, ids, r)
	}
}
