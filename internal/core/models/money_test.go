package models_test

import (
	"testing"

	"github.com/Nzyazin/walletledger/internal/core/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCurrency(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    string
		symbol  string
		wantErr bool
	}{
		{"upper case", "USD", "USD", "$", false},
		{"lower case normalized", "eur", "EUR", "€", false},
		{"unknown code keeps empty symbol", "KZT", "KZT", "", false},
		{"too short", "US", "", "", true},
		{"digits", "U5D", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := models.NewCurrency(tt.code, "")
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidCurrency)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Code)
			assert.Equal(t, tt.symbol, c.Symbol)
		})
	}
}

func TestCurrencyEqualIgnoresSymbol(t *testing.T) {
	a, err := models.NewCurrency("USD", "$")
	require.NoError(t, err)
	b, err := models.NewCurrency("usd", "US$")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(models.MustCurrency("EUR")))
}

func TestMoneyAddIsExact(t *testing.T) {
	usd := models.MustCurrency("USD")
	sum := models.Zero(usd)
	tenCents := models.NewMoney(decimal.RequireFromString("0.1"), usd)

	for i := 0; i < 1000; i++ {
		var err error
		sum, err = sum.Add(tenCents)
		require.NoError(t, err)
	}

	assert.True(t, sum.Amount.Equal(decimal.NewFromInt(100)), "got %s", sum.Amount)
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	usd := models.NewMoney(decimal.NewFromInt(10), models.MustCurrency("USD"))
	eur := models.NewMoney(decimal.NewFromInt(5), models.MustCurrency("EUR"))

	_, err := usd.Add(eur)
	assert.ErrorIs(t, err, models.ErrCurrencyMismatch)

	_, err = usd.Sub(eur)
	assert.ErrorIs(t, err, models.ErrCurrencyMismatch)

	_, err = usd.Cmp(eur)
	assert.ErrorIs(t, err, models.ErrCurrencyMismatch)
}

func TestMoneySubMayGoNegative(t *testing.T) {
	usd := models.MustCurrency("USD")
	a := models.NewMoney(decimal.NewFromInt(10), usd)
	b := models.NewMoney(decimal.NewFromInt(25), usd)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.True(t, diff.IsNegative())
	assert.Equal(t, "-15", diff.Amount.String())
}

func TestNewPositiveMoney(t *testing.T) {
	usd := models.MustCurrency("USD")

	_, err := models.NewPositiveMoney(decimal.Zero, usd)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = models.NewPositiveMoney(decimal.NewFromInt(-1), usd)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	m, err := models.NewPositiveMoney(decimal.RequireFromString("0.01"), usd)
	require.NoError(t, err)
	assert.Equal(t, "0.01 USD", m.String())
}

func TestParseAmount(t *testing.T) {
	amount, err := models.ParseAmount(" 1 012,34 ")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("1012.34")))

	_, err = models.ParseAmount("abc")
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
}

func TestNewPositiveMoneyScale(t *testing.T) {
	usd := models.MustCurrency("USD")

	_, err := models.NewPositiveMoney(decimal.RequireFromString("0.000000001"), usd)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = models.NewPositiveMoney(decimal.RequireFromString("1.123456789"), usd)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	m, err := models.NewPositiveMoney(decimal.RequireFromString("1.12345678"), usd)
	require.NoError(t, err)
	assert.Equal(t, "1.12345678", m.Amount.String())

	// Trailing zeros beyond the stored scale do not change the value.
	_, err = models.NewPositiveMoney(decimal.RequireFromString("2.5000000000"), usd)
	assert.NoError(t, err)
}
