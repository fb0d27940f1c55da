package enums

// PlanTier orders the subscription tiers from least to most privileged.
type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanBasic   PlanTier = "basic"
	PlanPro     PlanTier = "pro"
	PlanPremium PlanTier = "premium"
)

var planOrder = map[PlanTier]int{
	PlanFree:    0,
	PlanBasic:   1,
	PlanPro:     2,
	PlanPremium: 3,
}

func (p PlanTier) IsValid() bool {
	_, ok := planOrder[p]
	return ok
}

// Rank returns the tier's position in the free < basic < pro < premium order.
func (p PlanTier) Rank() int {
	return planOrder[p]
}

// PaymentStatus is the lifecycle state of a payment attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentApproved  PaymentStatus = "approved"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentInProcess PaymentStatus = "in_process"
	PaymentRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentRejected,
		PaymentCancelled, PaymentInProcess, PaymentRefunded:
		return true
	}
	return false
}

// Terminal reports whether no further provider-driven transition applies.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentRejected, PaymentCancelled, PaymentRefunded:
		return true
	}
	return false
}

// PaymentProvider names an external payment rail.
type PaymentProvider string

const (
	ProviderMpesa  PaymentProvider = "mpesa"
	ProviderEmola  PaymentProvider = "emola"
	ProviderStripe PaymentProvider = "stripe"
	ProviderSquare PaymentProvider = "square"
)

func (p PaymentProvider) IsValid() bool {
	switch p {
	case ProviderMpesa, ProviderEmola, ProviderStripe, ProviderSquare:
		return true
	}
	return false
}

// UsageOutcome is the recorded result of one gated call.
type UsageOutcome string

const (
	UsageSuccess UsageOutcome = "success"
	UsageFailure UsageOutcome = "failure"
)
