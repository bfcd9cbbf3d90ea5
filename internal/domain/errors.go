package domain

import "errors"

// Error kinds returned by the transfer engine and the rate store. Every one of
// them is an expected condition the caller can act on.
var (
	ErrSourceAccountNotFound      = errors.New("source bank account doesn't exist")
	ErrDestinationAccountNotFound = errors.New("destination bank account doesn't exist")
	ErrNotEnoughBalance           = errors.New("not enough balance")
	ErrRateNotFound               = errors.New("exchange rate not found")
	ErrUnsupportedCurrency        = errors.New("currency is not supported")
	ErrExchangeRatesNotFound      = errors.New("no exchange rates found")
	ErrAccountNotFound            = errors.New("bank account doesn't exist")
	ErrAccountClosed              = errors.New("bank account is closed")
	ErrTransactionNotFound        = errors.New("transaction not found")
	ErrInvalidAmount              = errors.New("amount must be positive")
)
