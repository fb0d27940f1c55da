package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/zeuslykraios/alauda-api/internal/payments"
	"github.com/zeuslykraios/alauda-api/internal/payments/providers"
	"github.com/zeuslykraios/alauda-api/pkg/enums"
	"github.com/zeuslykraios/alauda-api/pkg/logger"
	"github.com/zeuslykraios/alauda-api/pkg/types"
)

type fakeApplier struct {
	ack     payments.Ack
	err     error
	applied []*providers.Notification
}

func (f *fakeApplier) ApplyNotification(_ context.Context, n *providers.Notification) (payments.Ack, error) {
	f.applied = append(f.applied, n)
	return f.ack, f.err
}

func signMobileBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestMobileWebhookAppliesSignedNotification(t *testing.T) {
	const secret = "mpesa-secret"
	paymentID := uuid.New()
	body, err := json.Marshal(map[string]string{
		"transaction_id": "MP123456",
		"payment_id":     paymentID.String(),
		"status":         "success",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	applier := &fakeApplier{ack: payments.Ack{Result: payments.AckProcessed}}
	handler := MobileWebhook(providers.NewMpesaParser(secret), applier, logger.New(logger.Options{ServiceName: "test"}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa", bytes.NewReader(body))
	req.Header.Set(providers.SignatureHeader, signMobileBody(secret, body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(applier.applied) != 1 {
		t.Fatalf("expected 1 applied notification, got %d", len(applier.applied))
	}
	applied := applier.applied[0]
	if applied.PaymentID != paymentID || applied.Status != enums.PaymentApproved {
		t.Fatalf("unexpected notification %+v", applied)
	}

	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data := envelope.Data.(map[string]any)
	if data["result"] != string(payments.AckProcessed) {
		t.Fatalf("unexpected result %v", data["result"])
	}
}

func TestMobileWebhookRejectsBadSignature(t *testing.T) {
	body := []byte(`{"transaction_id":"MP1","status":"success"}`)
	applier := &fakeApplier{}
	handler := MobileWebhook(providers.NewMpesaParser("secret"), applier, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa", bytes.NewReader(body))
	req.Header.Set(providers.SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(applier.applied) != 0 {
		t.Fatal("notification applied despite bad signature")
	}
}

func TestMobileWebhookAcksUnknownReference(t *testing.T) {
	const secret = "emola-secret"
	body := []byte(`{"transaction_id":"EM999","status":"failed","reason":"declined"}`)
	applier := &fakeApplier{ack: payments.Ack{Result: payments.AckUnknown}}
	handler := MobileWebhook(providers.NewEmolaParser(secret), applier, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/emola", bytes.NewReader(body))
	req.Header.Set(providers.SignatureHeader, signMobileBody(secret, body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unknown reference must still ack 200, got %d", rec.Code)
	}
}

func TestMobileWebhookAcksUninterpretablePayloads(t *testing.T) {
	const secret = "mpesa-secret"
	cases := []struct {
		name string
		body []byte
	}{
		{"out-of-vocabulary status", []byte(`{"transaction_id":"tx-1","status":"weird_new_state"}`)},
		{"malformed json", []byte(`{"transaction_id":`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			applier := &fakeApplier{}
			handler := MobileWebhook(providers.NewMpesaParser(secret), applier, logger.New(logger.Options{ServiceName: "test"}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mpesa", bytes.NewReader(tc.body))
			req.Header.Set(providers.SignatureHeader, signMobileBody(secret, tc.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("authentic payload must be acked, got %d: %s", rec.Code, rec.Body.String())
			}
			if len(applier.applied) != 0 {
				t.Fatal("uninterpretable notification must not be applied")
			}

			var envelope types.SuccessEnvelope
			if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
				t.Fatalf("decode: %v", err)
			}
			data := envelope.Data.(map[string]any)
			if data["result"] != string(payments.AckUnrecognized) {
				t.Fatalf("unexpected result %v", data["result"])
			}
		})
	}
}
