package providers

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/zeuslykraios/alauda-api/pkg/enums"
	"github.com/zeuslykraios/alauda-api/pkg/errors"
)

// MetadataPaymentID is the payment-intent metadata key carrying our payment
// id. It is set when the intent is created.
const MetadataPaymentID = "alauda_payment_id"

// StripeParser verifies Stripe webhook signatures and maps payment-intent
// events to notifications.
type StripeParser struct {
	signingSecret string
}

func NewStripeParser(signingSecret string) *StripeParser {
	return &StripeParser{signingSecret: signingSecret}
}

// Parse verifies the Stripe-Signature header and maps the event. Events that
// do not concern payment intents yield a nil notification and no error.
func (p *StripeParser) Parse(body []byte, sigHeader string) (*Notification, error) {
	if strings.TrimSpace(p.signingSecret) == "" {
		return nil, errors.New(errors.CodeInternal, "stripe signing secret not configured")
	}
	if strings.TrimSpace(sigHeader) == "" {
		return nil, errors.New(errors.CodeUnauthorized, "stripe signature missing")
	}

	event, err := webhook.ConstructEvent(body, sigHeader, p.signingSecret)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnauthorized, err, "verify stripe signature")
	}

	var status enums.PaymentStatus
	switch event.Type {
	case "payment_intent.succeeded":
		status = enums.PaymentApproved
	case "payment_intent.payment_failed":
		status = enums.PaymentRejected
	case "payment_intent.canceled":
		status = enums.PaymentCancelled
	case "payment_intent.processing":
		status = enums.PaymentInProcess
	case "charge.refunded":
		status = enums.PaymentRefunded
	default:
		return nil, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "decode payment intent")
	}

	n := &Notification{
		Provider:    enums.ProviderStripe,
		ProviderRef: intent.ID,
		Status:      status,
		EventID:     event.ID,
		Raw:         json.RawMessage(event.Data.Raw),
	}
	if raw, ok := intent.Metadata[MetadataPaymentID]; ok {
		if id, err := uuid.Parse(strings.TrimSpace(raw)); err == nil {
			n.PaymentID = id
		}
	}
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		n.Reason = intent.LastPaymentError.Msg
	}
	return n, nil
}
