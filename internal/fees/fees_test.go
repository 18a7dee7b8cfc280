package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerPayout(t *testing.T) {
	tests := []struct {
		name   string
		bounty int64
		want   int64
	}{
		{name: "round amount", bounty: 5000, want: 4250},
		{name: "small bounty", bounty: 100, want: 85},
		{name: "rounding up", bounty: 999, want: 849}, // 849.15 -> 849
		{name: "one cent", bounty: 1, want: 1},        // 0.85 -> 1
		{name: "zero", bounty: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnswerPayout(tt.bounty))
		})
	}
}

func TestAnswerPayoutDeterministic(t *testing.T) {
	a := AnswerPayout(12345)
	b := AnswerPayout(12345)
	assert.Equal(t, a, b)
}

func TestQuoteWithdrawal(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		wantFee int64
		wantNet int64
	}{
		{name: "spec example 20.00", amount: 2000, wantFee: 200, wantNet: 1800}, // 199.6 -> 200
		{name: "exact minimum", amount: 1000, wantFee: 100, wantNet: 900},      // 99.8 -> 100
		{name: "large amount", amount: 100000, wantFee: 9980, wantNet: 90020},
		{name: "odd amount", amount: 1337, wantFee: 133, wantNet: 1204}, // 133.43 -> 133
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, net, err := QuoteWithdrawal(tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantNet, net)
		})
	}
}

func TestQuoteWithdrawalRoundTrip(t *testing.T) {
	// fee + net всегда в точности равны исходной сумме.
	for amount := MinWithdrawalCents; amount < MinWithdrawalCents+500; amount++ {
		fee, net, err := QuoteWithdrawal(amount)
		require.NoError(t, err)
		require.Equal(t, amount, fee+net, "amount %d", amount)
		require.GreaterOrEqual(t, net, int64(0))
	}
}

func TestQuoteWithdrawalRejectsInvalid(t *testing.T) {
	_, _, err := QuoteWithdrawal(0)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, _, err = QuoteWithdrawal(-100)
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, _, err = QuoteWithdrawal(999)
	assert.ErrorIs(t, err, ErrBelowMinimum)
}
