package providers

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/zeuslykraios/alauda-api/pkg/enums"
)

// Notification is the canonical shape every provider payload parses into.
// Either PaymentID or ProviderRef identifies the record; payloads carrying
// neither are unrecognizable and get acknowledged without mutation.
type Notification struct {
	Provider enums.PaymentProvider
	// PaymentID is our payment id when the payload carries it.
	PaymentID uuid.UUID
	// ProviderRef is the provider-side transaction reference.
	ProviderRef string
	// Status is the target status the payload maps to.
	Status enums.PaymentStatus
	Reason string
	// EventID deduplicates redelivered events where the provider assigns one.
	EventID string
	Raw     json.RawMessage
}

// Identified reports whether the notification can be matched to a record.
func (n Notification) Identified() bool {
	return n.PaymentID != uuid.Nil || n.ProviderRef != ""
}
