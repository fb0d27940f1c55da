package gate

import (
	"github.com/zeuslykraios/alauda-api/pkg/db/models"
)

// CallerKind tags how a request was authenticated.
type CallerKind string

const (
	// KindAPIKey marks callers resolved from an issued credential.
	KindAPIKey CallerKind = "api_key"
	// KindPartner marks pre-authorized partner-platform traffic. The
	// partner bills its own users and forwards trusted requests; no
	// credential lookup or credit accounting applies.
	KindPartner CallerKind = "partner"
)

// Caller is the authenticated identity a request runs under.
type Caller struct {
	Kind CallerKind
	// Key is nil for partner callers.
	Key *models.APIKey
}

// Unlimited reports whether the caller bypasses credit accounting entirely.
func (c Caller) Unlimited() bool {
	return c.Kind == KindPartner
}

// PartnerCaller returns the synthetic identity for partner traffic.
func PartnerCaller() Caller {
	return Caller{Kind: KindPartner}
}
