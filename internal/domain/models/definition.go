package models

import (
	"bytes"
	"encoding/json"
	"time"

	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

// DefinitionType selects the model a Definition hydrates into.
type DefinitionType string

const (
	TypeApplication DefinitionType = "application"
	TypeObject      DefinitionType = "object"
	TypeField       DefinitionType = "field"
	TypeIndex       DefinitionType = "index"
	TypeQuery       DefinitionType = "query"
	TypeRole        DefinitionType = "role"
	TypeScope       DefinitionType = "scope"
)

// SchemaTypes are persisted first during an import since every later phase
// resolves against them.
var SchemaTypes = map[DefinitionType]bool{
	TypeApplication: true,
	TypeObject:      true,
	TypeField:       true,
	TypeIndex:       true,
	TypeQuery:       true,
}

// Definition is one stored metadata record. JSON always holds an object;
// each write replaces it entirely.
type Definition struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      DefinitionType  `json:"type"`
	JSON      json.RawMessage `json:"json"`
	CreatedAt time.Time       `json:"createdAt,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt,omitempty"`
}

// Normalize validates the definition and unwraps a payload that was sent as
// a JSON-encoded string.
func (d *Definition) Normalize() error {
	if d.ID == "" {
		return apperrors.NewValidationError("id", "definition id is required")
	}
	if d.Type == "" {
		return apperrors.NewValidationError("type", "definition type is required")
	}
	raw := bytes.TrimSpace(d.JSON)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		d.JSON = json.RawMessage("{}")
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return apperrors.NewValidationError("json", err.Error())
		}
		raw = bytes.TrimSpace([]byte(s))
	}
	if len(raw) == 0 || raw[0] != '{' || !json.Valid(raw) {
		return apperrors.NewValidationError("json", "definition json must be an object")
	}
	d.JSON = json.RawMessage(raw)
	return nil
}

// Decode unmarshals the payload into v.
func (d *Definition) Decode(v any) error {
	if err := json.Unmarshal(d.JSON, v); err != nil {
		return apperrors.NewValidationError("json", "definition "+d.ID+": "+err.Error())
	}
	return nil
}

// Clone returns a copy that shares no memory with d.
func (d *Definition) Clone() *Definition {
	c := *d
	c.JSON = append(json.RawMessage(nil), d.JSON...)
	return &c
}

// Resolver looks definitions up by id. Imports resolve against the bundle
// first and the tenant store second.
type Resolver interface {
	Definition(id string) (*Definition, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(id string) (*Definition, bool)

func (f ResolverFunc) Definition(id string) (*Definition, bool) { return f(id) }

// ChainResolver tries each resolver in order.
type ChainResolver []Resolver

func (c ChainResolver) Definition(id string) (*Definition, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if d, ok := r.Definition(id); ok {
			return d, true
		}
	}
	return nil, false
}

// DefinitionMap is a Resolver over an in-memory set of definitions.
type DefinitionMap map[string]*Definition

func (m DefinitionMap) Definition(id string) (*Definition, bool) {
	d, ok := m[id]
	return d, ok
}
