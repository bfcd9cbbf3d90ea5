package app

import (
	"github.com/shopspring/decimal"
	"github.com/transfa/ledger-service/internal/domain"
)

// CommissionPolicy prices transfers from the commission rates of the source
// account's type.
type CommissionPolicy struct{}

// Quote returns the fraction of the requested amount charged as commission.
// A currency exchange adds the exchange commission on top of the flat rate.
func (CommissionPolicy) Quote(accountType domain.AccountType, sameCurrency bool) decimal.Decimal {
	if sameCurrency {
		return accountType.TransactionCommission
	}
	return accountType.TransactionCommission.Add(accountType.CurrencyExchangeCommission)
}

// Charge computes the commission on amount, rounded to the source currency's minor unit.
func (CommissionPolicy) Charge(amount, rate decimal.Decimal, minorUnits int32) decimal.Decimal {
	return domain.RoundToMinor(amount.Mul(rate), minorUnits)
}
