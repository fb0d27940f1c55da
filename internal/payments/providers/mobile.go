package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/zeuslykraios/alauda-api/pkg/enums"
	"github.com/zeuslykraios/alauda-api/pkg/errors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body for the
// mobile-money providers.
const SignatureHeader = "X-Webhook-Signature"

// mobilePayload is the notification shape M-Pesa and e-Mola push. Both rails
// go through the same national aggregator and share the envelope.
type mobilePayload struct {
	TransactionID string `json:"transaction_id"`
	PaymentID     string `json:"payment_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}

// MobileParser verifies and parses M-Pesa / e-Mola webhook bodies.
type MobileParser struct {
	provider enums.PaymentProvider
	secret   string
}

func NewMpesaParser(secret string) *MobileParser {
	return &MobileParser{provider: enums.ProviderMpesa, secret: secret}
}

func NewEmolaParser(secret string) *MobileParser {
	return &MobileParser{provider: enums.ProviderEmola, secret: secret}
}

// Parse verifies the body signature and maps the payload to a Notification.
func (p *MobileParser) Parse(body []byte, signature string) (*Notification, error) {
	if err := p.verify(body, signature); err != nil {
		return nil, err
	}

	var payload mobilePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, err, "decode webhook payload")
	}

	n := &Notification{
		Provider:    p.provider,
		ProviderRef: strings.TrimSpace(payload.TransactionID),
		Reason:      strings.TrimSpace(payload.Reason),
		EventID:     strings.TrimSpace(payload.TransactionID),
		Raw:         json.RawMessage(body),
	}
	if id, err := uuid.Parse(strings.TrimSpace(payload.PaymentID)); err == nil {
		n.PaymentID = id
	}

	switch strings.ToLower(strings.TrimSpace(payload.Status)) {
	case "success", "completed", "approved":
		n.Status = enums.PaymentApproved
	case "failed", "rejected", "declined":
		n.Status = enums.PaymentRejected
	case "cancelled", "canceled":
		n.Status = enums.PaymentCancelled
	case "processing", "pending":
		n.Status = enums.PaymentInProcess
	default:
		return nil, errors.New(errors.CodeValidation, "unrecognized payment status "+payload.Status)
	}
	return n, nil
}

func (p *MobileParser) verify(body []byte, signature string) error {
	if strings.TrimSpace(p.secret) == "" {
		return errors.New(errors.CodeInternal, "webhook secret not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return errors.New(errors.CodeUnauthorized, "webhook signature missing")
	}
	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return errors.New(errors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}
