package services

import (
	"context"
	"log"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/events"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/models"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
)

// ImportErrorsPayload is published on events.ImportErrors.
type ImportErrorsPayload struct {
	TenantID string                `json:"tenant"`
	Audience models.Audience       `json:"context"`
	Errors   []*models.ImportError `json:"errors"`
}

// EventNotifier logs import failures and publishes them for whatever
// delivers notifications to developers and builders.
type EventNotifier struct {
	publisher ports.EventPublisher
}

func NewEventNotifier(publisher ports.EventPublisher) *EventNotifier {
	return &EventNotifier{publisher: publisher}
}

var _ ports.Notifier = (*EventNotifier)(nil)

func (n *EventNotifier) Notify(ctx context.Context, tenantID string, audience models.Audience, errs []*models.ImportError) {
	if len(errs) == 0 {
		return
	}
	for _, e := range errs {
		log.Printf("❌ [%s] %v", audience, e)
	}
	if n.publisher == nil {
		return
	}
	payload := ImportErrorsPayload{TenantID: tenantID, Audience: audience, Errors: errs}
	if err := n.publisher.Publish(ctx, events.ImportErrors, payload); err != nil {
		log.Printf("⚠️ Failed to publish %d %s import errors: %v", len(errs), audience, err)
	}
}
