package models

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 shaped currency, compared by code only.
type Currency struct {
	Code   string `json:"code"`   // ISO 4217, e.g. "USD"
	Symbol string `json:"symbol"` // optional, e.g. "$"
}

var knownSymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"RUB": "₽",
	"JPY": "¥",
}

// NewCurrency normalizes the code to upper case and validates it.
// An empty symbol is filled in for well-known codes.
func NewCurrency(code, symbol string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return Currency{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return Currency{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}
	if symbol == "" {
		symbol = knownSymbols[code]
	}
	return Currency{Code: code, Symbol: symbol}, nil
}

// MustCurrency is NewCurrency for compile-time constants; it panics on bad input.
func MustCurrency(code string) Currency {
	c, err := NewCurrency(code, "")
	if err != nil {
		panic(err)
	}
	return c
}

func (c Currency) Equal(other Currency) bool {
	return c.Code == other.Code
}

func (c Currency) String() string {
	return c.Code
}
