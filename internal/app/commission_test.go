package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/transfa/ledger-service/internal/domain"
)

func TestCommissionPolicy_Quote(t *testing.T) {
	accountType := domain.AccountType{
		TransactionCommission:      dec("0.001"),
		CurrencyExchangeCommission: dec("0.015"),
	}
	policy := CommissionPolicy{}

	assert.True(t, policy.Quote(accountType, true).Equal(dec("0.001")))
	assert.True(t, policy.Quote(accountType, false).Equal(dec("0.016")))
}

func TestCommissionPolicy_Charge(t *testing.T) {
	policy := CommissionPolicy{}
	tests := []struct {
		amount string
		rate   string
		want   string
	}{
		{amount: "10000.00", rate: "0.01", want: "100.00"},
		{amount: "1234.56", rate: "0.001", want: "1.23"},
		{amount: "1.50", rate: "0.01", want: "0.02"},
		{amount: "100.00", rate: "0", want: "0.00"},
	}

	for _, tc := range tests {
		got := policy.Charge(dec(tc.amount), dec(tc.rate), 2)
		assert.Equalf(t, tc.want, got.StringFixed(2), "Charge(%s, %s)", tc.amount, tc.rate)
	}
}
