package payments

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zeuslykraios/alauda-api/pkg/errors"
)

// creditsPerUnit maps an ISO currency code to credits granted per whole unit.
// The conversion is applied once at payment creation; later rate changes never
// touch existing records.
var creditsPerUnit = map[string]int64{
	"MZN": 10,
	"USD": 650,
}

// CreditsFor converts a monetary amount into credits to grant.
func CreditsFor(amount decimal.Decimal, currency string) (int64, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	rate, ok := creditsPerUnit[currency]
	if !ok {
		return 0, errors.New(errors.CodeValidation, fmt.Sprintf("unsupported currency %q", currency))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return 0, errors.New(errors.CodeValidation, "amount must be positive")
	}
	credits := amount.Mul(decimal.NewFromInt(rate)).IntPart()
	if credits <= 0 {
		return 0, errors.New(errors.CodeValidation, "amount too small to grant credits")
	}
	return credits, nil
}

// SupportedCurrencies lists the currencies payments may be created in.
func SupportedCurrencies() []string {
	out := make([]string, 0, len(creditsPerUnit))
	for code := range creditsPerUnit {
		out = append(out, code)
	}
	return out
}
