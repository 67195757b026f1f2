package utils

import (
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a new random UUID string, or "" if the entropy source fails.
func GenerateID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		log.Printf("⚠️ Failed to generate UUID: %v", err)
		return ""
	}
	return id.String()
}

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// IsValidTenantID reports whether id can be part of a schema name.
func IsValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// IsValidUUID checks if the string is a valid UUID
func IsValidUUID(u string) bool {
	_, err := uuid.Parse(u)
	return err == nil
}

// SortedUnique returns the non-empty ids of the input in ascending order with
// duplicates removed. The input slice is not modified.
func SortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
