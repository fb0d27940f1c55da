package providers

import (
	"context"
	"strings"

	"github.com/zeuslykraios/alauda-api/pkg/enums"
	"github.com/zeuslykraios/alauda-api/pkg/square"
)

// SquareStatusClient is the slice of the Square wrapper the poller needs.
type SquareStatusClient interface {
	PaymentStatus(ctx context.Context, paymentID string) (string, error)
}

// SquarePoller resolves a payment's current status from the Square API.
// Square pushes no webhooks in our integration; in_process records are
// polled during the reconcile sweep instead.
type SquarePoller struct {
	client SquareStatusClient
}

func NewSquarePoller(client *square.Client) *SquarePoller {
	return &SquarePoller{client: client}
}

func NewSquarePollerWithClient(client SquareStatusClient) *SquarePoller {
	return &SquarePoller{client: client}
}

// Check maps the provider-side status of the payment reference to ours.
// The second return is false while the provider still reports it in flight.
func (p *SquarePoller) Check(ctx context.Context, providerRef string) (enums.PaymentStatus, bool, error) {
	status, err := p.client.PaymentStatus(ctx, providerRef)
	if err != nil {
		return "", false, err
	}
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED", "APPROVED":
		return enums.PaymentApproved, true, nil
	case "FAILED":
		return enums.PaymentRejected, true, nil
	case "CANCELED":
		return enums.PaymentCancelled, true, nil
	default:
		return enums.PaymentInProcess, false, nil
	}
}
