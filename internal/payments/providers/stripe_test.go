package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/zeuslykraios/alauda-api/pkg/enums"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
)

const stripeTestSecret = "whsec_test"

func buildSignedIntentEvent(t *testing.T, eventType string, paymentID uuid.UUID) ([]byte, string) {
	t.Helper()
	intent := &stripe.PaymentIntent{
		ID: "pi_" + uuid.NewString(),
		Metadata: map[string]string{
			MetadataPaymentID: paymentID.String(),
		},
	}
	rawIntent, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventType(eventType),
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data: &stripe.EventData{
			Raw: rawIntent,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, buildStripeSignatureHeader(payload, stripeTestSecret, time.Now().Unix())
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeParser_MapsIntentEvents(t *testing.T) {
	cases := []struct {
		eventType string
		want      enums.PaymentStatus
	}{
		{"payment_intent.succeeded", enums.PaymentApproved},
		{"payment_intent.payment_failed", enums.PaymentRejected},
		{"payment_intent.canceled", enums.PaymentCancelled},
		{"payment_intent.processing", enums.PaymentInProcess},
	}
	parser := NewStripeParser(stripeTestSecret)
	for _, tc := range cases {
		paymentID := uuid.New()
		payload, header := buildSignedIntentEvent(t, tc.eventType, paymentID)
		n, err := parser.Parse(payload, header)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.eventType, err)
		}
		if n.Status != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.eventType, tc.want, n.Status)
		}
		if n.PaymentID != paymentID {
			t.Fatalf("%s: expected payment id from metadata", tc.eventType)
		}
		if n.ProviderRef == "" || n.EventID == "" {
			t.Fatalf("%s: expected provider ref and event id", tc.eventType)
		}
	}
}

func TestStripeParser_IgnoresUnrelatedEvents(t *testing.T) {
	parser := NewStripeParser(stripeTestSecret)
	payload, header := buildSignedIntentEvent(t, "customer.created", uuid.New())

	n, err := parser.Parse(payload, header)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n != nil {
		t.Fatalf("expected unrelated event to yield no notification")
	}
}

func TestStripeParser_RejectsBadSignature(t *testing.T) {
	parser := NewStripeParser(stripeTestSecret)
	payload, _ := buildSignedIntentEvent(t, "payment_intent.succeeded", uuid.New())

	if _, err := parser.Parse(payload, "t=1,v1=invalid"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for bad signature, got %v", err)
	}
	if _, err := parser.Parse(payload, ""); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for missing signature, got %v", err)
	}
}
