package models

import (
	"encoding/json"
	"strconv"

	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

// FileAttachment is a file shipped with a bundle. Contents is base64.
type FileAttachment struct {
	Meta     json.RawMessage `json:"meta,omitempty"`
	Contents string          `json:"contents"`
}

// Scope is an authorization scope.
type Scope struct {
	UUID        string          `json:"uuid"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	IsGlobal    bool            `json:"isGlobal,omitempty"`
	AllowAll    bool            `json:"allowAll,omitempty"`
	Filter      json.RawMessage `json:"filter,omitempty"`
}

// Role groups scopes and is assigned to users.
type Role struct {
	UUID        string            `json:"uuid"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Scopes      []string          `json:"scopes"`
	Users       []json.RawMessage `json:"users"`
}

// Bundle is the unit of import. It is consumed exactly once.
type Bundle struct {
	Definitions []*Definition             `json:"definitions"`
	Files       map[string]FileAttachment `json:"files,omitempty"`
	Roles       []*Role                   `json:"roles,omitempty"`
	Scopes      []*Scope                  `json:"scopes,omitempty"`
	// SiteObjectConnections maps an existing object id to the ids of connect
	// fields this bundle adds to it.
	SiteObjectConnections map[string][]string `json:"siteObjectConnections,omitempty"`
}

// Validate normalizes every definition. Nil entries are dropped.
func (b *Bundle) Validate() error {
	if b == nil {
		return apperrors.NewValidationError("json", "bundle is required")
	}
	defs := b.Definitions[:0]
	for _, d := range b.Definitions {
		if d == nil {
			continue
		}
		if err := d.Normalize(); err != nil {
			return err
		}
		defs = append(defs, d)
	}
	b.Definitions = defs
	for i, r := range b.Roles {
		if r == nil || r.UUID == "" {
			return apperrors.NewValidationError("roles", "role "+strconv.Itoa(i)+" has no uuid")
		}
	}
	for i, s := range b.Scopes {
		if s == nil || s.UUID == "" {
			return apperrors.NewValidationError("scopes", "scope "+strconv.Itoa(i)+" has no uuid")
		}
	}
	return nil
}

// DefinitionsOf returns the definitions of the given type in bundle order.
func (b *Bundle) DefinitionsOf(t DefinitionType) []*Definition {
	var out []*Definition
	for _, d := range b.Definitions {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

// Index returns the bundle's definitions keyed by id. Later duplicates win.
func (b *Bundle) Index() DefinitionMap {
	m := make(DefinitionMap, len(b.Definitions))
	for _, d := range b.Definitions {
		m[d.ID] = d
	}
	return m
}

// ApplicationID returns the id of the first application in the bundle.
func (b *Bundle) ApplicationID() string {
	for _, d := range b.Definitions {
		if d.Type == TypeApplication {
			return d.ID
		}
	}
	return ""
}
