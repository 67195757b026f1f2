package events

// EventType defines the type of event in the system
type EventType string

const (
	// Design-time definition events, broadcast to designers.
	DefinitionCreated   EventType = "definition.created"
	DefinitionUpdated   EventType = "definition.updated"
	DefinitionDestroyed EventType = "definition.destroyed"

	// DefinitionStale tells every consumer to drop what it derived from
	// definitions. Emitted after imports and at startup.
	DefinitionStale EventType = "definition.stale"

	// Import lifecycle
	ImportStarted  EventType = "import.started"
	ImportFinished EventType = "import.finished"

	// ImportErrors carries an audience-specific batch of import failures.
	ImportErrors EventType = "import.errors"
)

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}

// DefinitionChange is the payload of created/updated/destroyed events.
type DefinitionChange struct {
	TenantID string `json:"tenant"`
	ID       string `json:"id"`
	Before   any    `json:"before,omitempty"`
	After    any    `json:"data,omitempty"`
}

// ImportSummary is the payload of import lifecycle events.
type ImportSummary struct {
	TenantID        string `json:"tenant"`
	Definitions     int    `json:"definitions"`
	DeveloperErrors int    `json:"developerErrors"`
	BuilderErrors   int    `json:"builderErrors"`
}

// StalePayload is the payload of DefinitionStale.
type StalePayload struct {
	TenantID string `json:"tenant,omitempty"`
}
