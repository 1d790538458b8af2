package currency

import (
	"backoffice/pkg/apperr"

	"github.com/shopspring/decimal"
)

// DefaultBase is the organization's reporting currency.
const DefaultBase = "TRY"

// ToBase converts amount from sourceCurrency into baseCurrency using the
// externally supplied exchange rate. When the currencies match the amount is
// returned unchanged and the rate is conceptually 1. The function never
// fetches or caches rates; the caller persists the rate it used so later
// review does not depend on re-fetching a possibly different historical rate.
func ToBase(amount decimal.Decimal, sourceCurrency string, rate decimal.Decimal, baseCurrency string) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, apperr.Validationf("amount must not be negative")
	}
	if sourceCurrency == baseCurrency {
		return amount, nil
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, apperr.Validationf("exchange_rate must be greater than 0")
	}
	return amount.Mul(rate), nil
}
