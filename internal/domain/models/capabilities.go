package models

import (
	"strings"

	"github.com/digi-serve/ab-service-definition-manager/pkg/utils"
)

// SystemScoped is implemented by entities that can be flagged as part of the
// platform itself. System entities are visible to every role set.
type SystemScoped interface {
	IsSystemObject() bool
}

// RoleAccessible is implemented by entities with their own access rules.
type RoleAccessible interface {
	IsAccessibleForRoles(roleIDs []string) bool
}

// IDExporter adds the ids of an entity and everything it depends on.
type IDExporter interface {
	ExportIDs(ids *IDSet, r Resolver)
}

// IDSet is an insertion-ordered set of definition ids.
type IDSet struct {
	order []string
	seen  map[string]struct{}
}

func NewIDSet() *IDSet {
	return &IDSet{seen: make(map[string]struct{})}
}

// Add inserts id and reports whether it was new.
func (s *IDSet) Add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *IDSet) Has(id string) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *IDSet) Len() int { return len(s.order) }

// IDs returns the ids in insertion order.
func (s *IDSet) IDs() []string {
	return append([]string(nil), s.order...)
}

// RoleSetKey is the cache key for a set of roles: sorted, de-duplicated and
// comma joined, so request order never matters.
type RoleSetKey string

func NewRoleSetKey(roleIDs []string) RoleSetKey {
	return RoleSetKey(strings.Join(utils.SortedUnique(roleIDs), ","))
}

// RoleIDs splits the key back into role ids.
func (k RoleSetKey) RoleIDs() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), ",")
}
