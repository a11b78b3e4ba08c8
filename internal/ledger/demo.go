package ledger

import (
	"github.com/shopspring/decimal"

	"privacymixer/internal/models"
)

type demoPool struct {
	currency  models.Currency
	liquidity string
	anonymity int64
	fund      string
}

var demoPools = []demoPool{
	{models.CurrencyETH, "124.5", 47, "2.34"},
	{models.CurrencyUSDC, "45000", 23, "135"},
	{models.CurrencyWBTC, "2.5", 12, "0.075"},
	{models.CurrencyUSDT, "38000", 18, "114"},
}

// SeedDemo installs the demonstration pool figures, replacing existing pools for
// those currencies. Existing pool entries are overwritten in place under their own
// lock, so an update racing with the seed is applied either before or after it.
// Deposits are left alone. Never called implicitly.
func (l *Ledger) SeedDemo() []models.PoolStats {
	now := l.clock.Now()
	seeded := make([]models.PoolStats, 0, len(demoPools))

	for _, p := range demoPools {
		s := models.PoolStats{
			Currency:           p.currency,
			TotalLiquidity:     decimal.RequireFromString(p.liquidity),
			AnonymitySetSize:   p.anonymity,
			PrivacyFundBalance: decimal.RequireFromString(p.fund),
			UpdatedAt:          now,
		}

		e := l.poolEntry(p.currency)
		e.mu.Lock()
		e.stats = s
		e.mu.Unlock()

		seeded = append(seeded, s)
	}
	return seeded
}
