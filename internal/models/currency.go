package models

import "strings"

// Currency is the symbol of an asset held by a mixer pool
type Currency string

const (
	CurrencyETH  Currency = "ETH"
	CurrencyUSDC Currency = "USDC"
	CurrencyUSDT Currency = "USDT"
	CurrencyWBTC Currency = "WBTC"
)

// SupportedCurrencies lists the assets a deposit may be made in
var SupportedCurrencies = []Currency{CurrencyETH, CurrencyUSDC, CurrencyUSDT, CurrencyWBTC}

// ParseCurrency normalizes s and reports whether it names a supported currency
func ParseCurrency(s string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	for _, supported := range SupportedCurrencies {
		if c == supported {
			return c, true
		}
	}
	return c, false
}

// Normalize returns the upper-cased, trimmed form of c
func (c Currency) Normalize() Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(string(c))))
}

func (c Currency) String() string {
	return string(c)
}
