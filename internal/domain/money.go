package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultMinorUnits is used where a scale is negative or undeclared.
	DefaultMinorUnits int32 = 2
	// MaxMinorUnits is the scale of every balance and amount column.
	MaxMinorUnits int32 = 2
)

// RoundToMinor rounds value to scale fractional digits, ties away from zero.
func RoundToMinor(value decimal.Decimal, scale int32) decimal.Decimal {
	if scale < 0 {
		scale = DefaultMinorUnits
	}
	return value.Round(scale)
}

// HasAtMostScale reports whether value carries no more than scale fractional digits.
func HasAtMostScale(value decimal.Decimal, scale int32) bool {
	return value.Equal(value.Truncate(scale))
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NormalizeCurrencyCode upper-cases and trims an ISO currency code.
func NormalizeCurrencyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
