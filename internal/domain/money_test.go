package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundToMinor_TiesAwayFromZero(t *testing.T) {
	cases := []struct {
		in    string
		scale int32
		want  string
	}{
		{"10.005", 2, "10.01"},
		{"10.004", 2, "10"},
		{"-10.005", 2, "-10.01"},
		{"0.125", 2, "0.13"},
		{"1.5", 0, "2"},
		{"7.1234", -1, "7.12"},
	}

	for _, tc := range cases {
		got := RoundToMinor(decimal.RequireFromString(tc.in), tc.scale)
		assert.Truef(t, got.Equal(decimal.RequireFromString(tc.want)), "RoundToMinor(%s, %d) = %s, want %s", tc.in, tc.scale, got, tc.want)
	}
}

func TestHasAtMostScale(t *testing.T) {
	assert.True(t, HasAtMostScale(decimal.RequireFromString("10.50"), 2))
	assert.True(t, HasAtMostScale(decimal.RequireFromString("10"), 2))
	assert.False(t, HasAtMostScale(decimal.RequireFromString("10.505"), 2))
}

func TestDateOf_TruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	in := time.Date(2024, 3, 2, 1, 30, 0, 0, loc)

	got := DateOf(in)

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestActorHasPermission(t *testing.T) {
	actor := Actor{Permissions: []string{PermissionTransactionRead}}

	assert.True(t, actor.HasPermission(PermissionTransactionRead))
	assert.False(t, actor.HasPermission(PermissionTransactionCreate))
}
