/**
 * @description
 * This file defines the core ledger models for the ledger-service: bank accounts,
 * the account types that carry commission rates, currencies and daily exchange rates.
 * Every struct is a plain value returned by an explicit repository lookup.
 *
 * @notes
 * - Monetary values use shopspring/decimal so balances, commissions and rates are
 *   exact fixed-point numbers. Binary floating point is never used for money.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountNumberLength is the fixed length of an issued bank account number.
const AccountNumberLength = 20

// Account represents a bank account and maps to the `bank_accounts` table.
type Account struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	OwnerID       uuid.UUID       `json:"owner_id"`
	CurrencyCode  string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	IsClosed      bool            `json:"is_closed"`
	AccountTypeID int64           `json:"account_type_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AccountType is immutable reference data shared by many accounts.
// Both commission rates are fractions of the transfer amount (0.01 == 1%).
type AccountType struct {
	ID                         int64           `json:"id"`
	Name                       string          `json:"name"`
	TransactionCommission      decimal.Decimal `json:"transaction_commission"`
	CurrencyExchangeCommission decimal.Decimal `json:"currency_exchange_commission"`
}

// Currency is a supported currency. Code and Symbol are both unique.
type Currency struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Symbol     string `json:"symbol"`
	MinorUnits int32  `json:"minor_units"`
}

// FitsLedgerScale reports whether amounts in c can be stored without rounding.
func (c Currency) FitsLedgerScale() bool {
	return c.MinorUnits >= 0 && c.MinorUnits <= MaxMinorUnits
}

// ExchangeRate is the price of one unit of CurrencyCode in the base currency on Date.
// There is at most one rate per currency per calendar day.
type ExchangeRate struct {
	CurrencyCode string          `json:"currency"`
	Date         time.Time       `json:"date"`
	Rate         decimal.Decimal `json:"rate"`
}
