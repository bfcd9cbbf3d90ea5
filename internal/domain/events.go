package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferCompletedEvent is published after a transfer has been committed.
type TransferCompletedEvent struct {
	EventID                  string          `json:"event_id"`
	TransactionID            string          `json:"transaction_id"`
	SourceAccountNumber      string          `json:"source_account_number"`
	DestinationAccountNumber string          `json:"destination_account_number"`
	SourceCurrency           string          `json:"source_currency"`
	DestinationCurrency      string          `json:"destination_currency"`
	Amount                   decimal.Decimal `json:"amount"`
	ReceivedAmount           decimal.Decimal `json:"received_amount"`
	Commission               decimal.Decimal `json:"commission"`
	OccurredAt               time.Time       `json:"occurred_at"`
}

// ExchangeRatesUpdatedEvent is published after the ingestion job stored new rates.
type ExchangeRatesUpdatedEvent struct {
	EventID    string    `json:"event_id"`
	Date       time.Time `json:"date"`
	Inserted   int       `json:"inserted"`
	Currencies []string  `json:"currencies"`
	OccurredAt time.Time `json:"occurred_at"`
}
