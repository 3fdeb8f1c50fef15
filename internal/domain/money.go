package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money: сумма в минимальных денежных единицах (центы, копейки).
type Money struct {
	AmountMinor int64
	Currency    string
}

// Decimal переводит сумму в основные единицы.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.AmountMinor, -2)
}

// Format возвращает сумму в виде "25.00 USD"; без валюты, только число.
func (m Money) Format() string {
	amount := m.Decimal().StringFixed(2)
	currency := strings.TrimSpace(m.Currency)
	if currency == "" {
		return amount
	}
	return amount + " " + strings.ToUpper(currency)
}
