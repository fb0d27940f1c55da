package plans

import "github.com/zeuslykraios/alauda-api/pkg/enums"

// Plan bundles the quota and credit parameters of one tier.
type Plan struct {
	Tier enums.PlanTier
	// DailyLimit is the per-day request ceiling; 0 means unlimited.
	DailyLimit int
	// StartingCredits seeds the balance when a key is issued on this tier.
	StartingCredits int64
	// UpgradeBonus is granted when an existing key moves onto this tier.
	UpgradeBonus int64
	// UnlimitedCredits marks tiers whose balance is never decremented.
	UnlimitedCredits bool
}

var byTier = map[enums.PlanTier]Plan{
	enums.PlanFree: {
		Tier:            enums.PlanFree,
		DailyLimit:      50,
		StartingCredits: 100,
	},
	enums.PlanBasic: {
		Tier:            enums.PlanBasic,
		DailyLimit:      500,
		StartingCredits: 1000,
		UpgradeBonus:    100,
	},
	enums.PlanPro: {
		Tier:            enums.PlanPro,
		DailyLimit:      5000,
		StartingCredits: 10000,
		UpgradeBonus:    500,
	},
	enums.PlanPremium: {
		Tier:             enums.PlanPremium,
		DailyLimit:       0,
		StartingCredits:  0,
		UnlimitedCredits: true,
	},
}

// For resolves the plan parameters for a tier, falling back to free.
func For(tier enums.PlanTier) Plan {
	if plan, ok := byTier[tier]; ok {
		return plan
	}
	return byTier[enums.PlanFree]
}

// HasDailyLimit reports whether the plan enforces a request ceiling.
func (p Plan) HasDailyLimit() bool { return p.DailyLimit > 0 }
