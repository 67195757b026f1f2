package models

import "encoding/json"

// Application is a hydrated application definition.
type Application struct {
	def *Definition

	ID            string
	Name          string
	RoleAccess    []string
	ObjectIDs     []string
	QueryIDs      []string
	DefinitionIDs []string
	Version       string
	NetworkType   string
	system        bool
}

type applicationJSON struct {
	RoleAccess     []string        `json:"roleAccess"`
	ObjectIDs      []string        `json:"objectIDs"`
	QueryIDs       []string        `json:"queryIDs"`
	DefinitionIDs  []string        `json:"definitionIDs"`
	Version        json.RawMessage `json:"version"`
	NetworkType    string          `json:"networkType"`
	IsSystemObject Flag            `json:"isSystemObject"`
}

func NewApplication(def *Definition) (*Application, error) {
	var aj applicationJSON
	if err := def.Decode(&aj); err != nil {
		return nil, err
	}
	app := &Application{
		def:           def,
		ID:            def.ID,
		Name:          def.Name,
		RoleAccess:    aj.RoleAccess,
		ObjectIDs:     aj.ObjectIDs,
		QueryIDs:      aj.QueryIDs,
		DefinitionIDs: aj.DefinitionIDs,
		Version:       rawString(aj.Version),
		NetworkType:   aj.NetworkType,
		system:        bool(aj.IsSystemObject),
	}
	if app.NetworkType == "" {
		app.NetworkType = "rest"
	}
	return app, nil
}

func (a *Application) Definition() *Definition { return a.def }

func (a *Application) IsSystemObject() bool { return a.system }

// IsAccessibleForRoles reports whether any of the roles is granted access.
func (a *Application) IsAccessibleForRoles(roleIDs []string) bool {
	for _, granted := range a.RoleAccess {
		for _, id := range roleIDs {
			if granted == id {
				return true
			}
		}
	}
	return false
}

// ExportIDs adds the application and everything it is built from.
func (a *Application) ExportIDs(ids *IDSet, r Resolver) {
	if !ids.Add(a.ID) {
		return
	}
	for _, id := range a.ObjectIDs {
		exportObjectIDs(id, ids, r)
	}
	for _, id := range a.QueryIDs {
		if def, ok := r.Definition(id); ok {
			if q, err := NewQuery(def); err == nil {
				q.ExportIDs(ids, r)
				continue
			}
		}
		ids.Add(id)
	}
	for _, id := range a.DefinitionIDs {
		ids.Add(id)
	}
}

var (
	_ RoleAccessible = (*Application)(nil)
	_ IDExporter     = (*Application)(nil)
	_ SystemScoped   = (*Application)(nil)
	_ SystemScoped   = (*SchemaObject)(nil)
	_ IDExporter     = (*SchemaObject)(nil)
	_ IDExporter     = (*Query)(nil)
	_ IDExporter     = (*Field)(nil)
	_ IDExporter     = (*Index)(nil)
)
