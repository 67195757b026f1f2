package models

import (
	"fmt"

	apperrors "github.com/digi-serve/ab-service-definition-manager/pkg/errors"
)

// Audience decides who is told about an import failure.
type Audience string

const (
	// AudienceDeveloper receives integration and infrastructure faults.
	AudienceDeveloper Audience = "developer"
	// AudienceBuilder receives faults in the definitions a builder authored.
	AudienceBuilder Audience = "builder"
)

// ImportError is one per-item failure recorded during an import.
type ImportError struct {
	Audience Audience `json:"context"`
	Phase    string   `json:"phase"`
	ItemID   string   `json:"itemId,omitempty"`
	Message  string   `json:"message"`
	Err      error    `json:"-"`
}

func (e *ImportError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("[%s] %s (%s): %s", e.Phase, e.Message, e.ItemID, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Message, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// NewImportError records err against an item. Schema faults go to the
// builder, everything else to developers.
func NewImportError(phase, itemID, message string, err error) *ImportError {
	audience := AudienceDeveloper
	if apperrors.IsSchema(err) {
		audience = AudienceBuilder
	}
	return &ImportError{Audience: audience, Phase: phase, ItemID: itemID, Message: message, Err: err}
}

// PartitionImportErrors splits errors by audience, keeping their order.
func PartitionImportErrors(errs []*ImportError) (developer, builder []*ImportError) {
	for _, e := range errs {
		if e.Audience == AudienceBuilder {
			builder = append(builder, e)
		} else {
			developer = append(developer, e)
		}
	}
	return developer, builder
}
