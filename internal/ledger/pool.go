package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"privacymixer/internal/models"
)

func (l *Ledger) currencyOrDefault(c models.Currency) models.Currency {
	c = c.Normalize()
	if c == "" {
		return l.defaultCurrency
	}
	return c
}

func (l *Ledger) poolEntry(c models.Currency) *poolEntry {
	l.poolsMu.RLock()
	e, ok := l.pools[c]
	l.poolsMu.RUnlock()
	if ok {
		return e
	}

	l.poolsMu.Lock()
	defer l.poolsMu.Unlock()
	if e, ok = l.pools[c]; ok {
		return e
	}
	e = &poolEntry{stats: zeroPool(c, l.clock)}
	l.pools[c] = e
	return e
}

func zeroPool(c models.Currency, clock Clock) models.PoolStats {
	return models.PoolStats{
		Currency:           c,
		TotalLiquidity:     decimal.Zero,
		PrivacyFundBalance: decimal.Zero,
		UpdatedAt:          clock.Now(),
	}
}

// UpdatePoolStats applies delta to its currency's pool, creating the pool on first use.
// The anonymity set never drops below zero. Returns the pool after the update.
func (l *Ledger) UpdatePoolStats(delta models.PoolDelta) models.PoolStats {
	return l.ApplyPoolDelta(delta, nil)
}

// ApplyPoolDelta is UpdatePoolStats with a hook. onUpdated receives the updated pool
// while the currency's lock is still held, so hooks for one currency run in update
// order. It must not call back into the pool methods of this ledger.
func (l *Ledger) ApplyPoolDelta(delta models.PoolDelta, onUpdated func(models.PoolStats)) models.PoolStats {
	c := l.currencyOrDefault(delta.Currency)
	e := l.poolEntry(c)

	e.mu.Lock()
	defer e.mu.Unlock()

	s := &e.stats
	s.TotalLiquidity = s.TotalLiquidity.Add(delta.LiquidityChange)
	s.AnonymitySetSize += delta.AnonymitySetChange
	if s.AnonymitySetSize < 0 {
		s.AnonymitySetSize = 0
	}
	s.PrivacyFundBalance = s.PrivacyFundBalance.Add(delta.FeeAmount)
	s.UpdatedAt = l.clock.Now()

	l.log.WithFields(logrus.Fields{
		"currency":       c,
		"liquidity":      s.TotalLiquidity.String(),
		"anonymity_set":  s.AnonymitySetSize,
		"privacy_fund":   s.PrivacyFundBalance.String(),
		"liquidity_diff": delta.LiquidityChange.String(),
	}).Debug("pool updated")

	if onUpdated != nil {
		onUpdated(*s)
	}
	return *s
}

// GetPoolStats returns the pool for currency, the default currency when empty.
// A currency never referenced yields a zeroed record that is not stored.
func (l *Ledger) GetPoolStats(currency models.Currency) models.PoolStats {
	c := l.currencyOrDefault(currency)

	l.poolsMu.RLock()
	e, ok := l.pools[c]
	l.poolsMu.RUnlock()
	if !ok {
		return zeroPool(c, l.clock)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// AllPoolStats returns every known pool ordered by currency
func (l *Ledger) AllPoolStats() []models.PoolStats {
	l.poolsMu.RLock()
	entries := make([]*poolEntry, 0, len(l.pools))
	for _, e := range l.pools {
		entries = append(entries, e)
	}
	l.poolsMu.RUnlock()

	result := make([]models.PoolStats, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		result = append(result, e.stats)
		e.mu.Unlock()
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Currency < result[j].Currency
	})
	return result
}
