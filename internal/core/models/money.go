package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount in a single currency.
// The amount may be negative while computing deltas; stored balances never are.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// MaxScale is the number of fraction digits the ledger stores.
const MaxScale = 8

func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// NewPositiveMoney rejects zero, negative and over-precise amounts with ErrInvalidAmount.
func NewPositiveMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if !amount.IsPositive() {
		return Money{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	if amount.Exponent() < -MaxScale && !amount.Equal(amount.Truncate(MaxScale)) {
		return Money{}, fmt.Errorf("%w: %s has more than %d fraction digits", ErrInvalidAmount, amount.String(), MaxScale)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// ParseAmount accepts both "10.50" and "10,50" and ignores spaces.
func ParseAmount(raw string) (decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.ReplaceAll(raw, " ", ""), ",", ".")
	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return amount, nil
}

func Zero(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) Add(other Money) (Money, error) {
	if !m.Currency.Equal(other.Currency) {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub may yield a negative amount; callers decide whether that is allowed.
func (m Money) Sub(other Money) (Money, error) {
	if !m.Currency.Equal(other.Currency) {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// Cmp returns -1, 0 or +1 like decimal.Cmp.
func (m Money) Cmp(other Money) (int, error) {
	if !m.Currency.Equal(other.Currency) {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return m.Amount.Cmp(other.Amount), nil
}

func (m Money) Equal(other Money) bool {
	return m.Currency.Equal(other.Currency) && m.Amount.Equal(other.Amount)
}

func (m Money) IsPositive() bool { return m.Amount.IsPositive() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }
func (m Money) IsZero() bool     { return m.Amount.IsZero() }

func (m Money) String() string {
	return m.Amount.StringFixedBank(2) + " " + m.Currency.Code
}
