// Package ports declares the collaborators the definition services depend
// on. Implementations live under internal/infrastructure; tests substitute
// in-memory fakes.
package ports
