package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/zeuslykraios/alauda-api/pkg/enums"
	pkgerrors "github.com/zeuslykraios/alauda-api/pkg/errors"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestMobileParser_ParsesSignedPayload(t *testing.T) {
	secret := "test-secret"
	paymentID := uuid.New()
	body := []byte(fmt.Sprintf(`{"transaction_id":"TX99","payment_id":"%s","status":"success"}`, paymentID))

	parser := NewMpesaParser(secret)
	n, err := parser.Parse(body, signBody(secret, body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n.Provider != enums.ProviderMpesa {
		t.Fatalf("expected mpesa, got %s", n.Provider)
	}
	if n.PaymentID != paymentID {
		t.Fatalf("expected payment id parsed")
	}
	if n.ProviderRef != "TX99" {
		t.Fatalf("expected provider ref TX99, got %q", n.ProviderRef)
	}
	if n.Status != enums.PaymentApproved {
		t.Fatalf("expected approved, got %s", n.Status)
	}
}

func TestMobileParser_StatusMapping(t *testing.T) {
	secret := "s"
	cases := []struct {
		raw  string
		want enums.PaymentStatus
	}{
		{"success", enums.PaymentApproved},
		{"COMPLETED", enums.PaymentApproved},
		{"failed", enums.PaymentRejected},
		{"declined", enums.PaymentRejected},
		{"cancelled", enums.PaymentCancelled},
		{"processing", enums.PaymentInProcess},
	}
	parser := NewEmolaParser(secret)
	for _, tc := range cases {
		body := []byte(fmt.Sprintf(`{"transaction_id":"TX1","status":"%s"}`, tc.raw))
		n, err := parser.Parse(body, signBody(secret, body))
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if n.Status != tc.want {
			t.Fatalf("status %q: expected %s, got %s", tc.raw, tc.want, n.Status)
		}
		if n.Provider != enums.ProviderEmola {
			t.Fatalf("expected emola provider")
		}
	}
}

func TestMobileParser_RejectsBadSignature(t *testing.T) {
	parser := NewMpesaParser("right-secret")
	body := []byte(`{"transaction_id":"TX1","status":"success"}`)

	if _, err := parser.Parse(body, signBody("wrong-secret", body)); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for wrong secret, got %v", err)
	}
	if _, err := parser.Parse(body, ""); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for missing signature, got %v", err)
	}
}

func TestMobileParser_RejectsUnknownStatus(t *testing.T) {
	secret := "s"
	parser := NewMpesaParser(secret)
	body := []byte(`{"transaction_id":"TX1","status":"maybe"}`)

	if _, err := parser.Parse(body, signBody(secret, body)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestMobileParser_RequiresConfiguredSecret(t *testing.T) {
	parser := NewMpesaParser("")
	body := []byte(`{"transaction_id":"TX1","status":"success"}`)

	if _, err := parser.Parse(body, "anything"); !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error for missing secret, got %v", err)
	}
}
