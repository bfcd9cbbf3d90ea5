package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is the immutable record of a completed transfer and maps to the
// `transactions` table. Amount and Commission are in the source currency,
// ReceivedAmount is in the destination currency.
type Transaction struct {
	ID                       uuid.UUID       `json:"id"`
	SourceAccountID          int64           `json:"source_account_id"`
	SourceAccountNumber      string          `json:"source_account_number"`
	DestinationAccountID     int64           `json:"destination_account_id"`
	DestinationAccountNumber string          `json:"destination_account_number"`
	SourceCurrency           string          `json:"source_currency"`
	DestinationCurrency      string          `json:"destination_currency"`
	Amount                   decimal.Decimal `json:"amount"`
	ReceivedAmount           decimal.Decimal `json:"received_amount"`
	Commission               decimal.Decimal `json:"commission"`
	CreatedAt                time.Time       `json:"created_at"`
}

// TotalDebit is the amount taken from the source account.
func (t Transaction) TotalDebit() decimal.Decimal {
	return t.Amount.Add(t.Commission)
}

// TransferRequest is the DTO for incoming transfer API requests.
type TransferRequest struct {
	Amount                   decimal.Decimal `json:"amount"`
	SourceAccountNumber      string          `json:"source_account_number"`
	DestinationAccountNumber string          `json:"destination_account_number"`
}
