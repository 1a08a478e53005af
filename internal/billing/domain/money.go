package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in the currency's minor unit, as the processor reports it.
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

// NewMoney normalises the currency code to lower case.
func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(strings.TrimSpace(currency))}
}

// Equal compares amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && strings.EqualFold(m.Currency, other.Currency)
}

// IsZero reports an unset amount.
func (m Money) IsZero() bool {
	return m.Amount == 0 && m.Currency == ""
}

// Decimal converts minor units to a major-unit decimal (499 usd -> 4.99).
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -minorUnitExponent(m.Currency))
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(minorUnitExponent(m.Currency)), strings.ToUpper(m.Currency))
}

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

func minorUnitExponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return 0
	}
	return 2
}
