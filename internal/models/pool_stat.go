package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PoolStats 代表单一币种混币池的汇总统计
type PoolStats struct {
	Currency           Currency        `gorm:"primaryKey;size:16" json:"currency"`
	TotalLiquidity     decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"total_liquidity"`
	AnonymitySetSize   int64           `gorm:"not null" json:"anonymity_set_size"`
	PrivacyFundBalance decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"privacy_fund_balance"`
	UpdatedAt          time.Time       `gorm:"not null;autoUpdateTime:false" json:"updated_at"` // ledger clock, not gorm's
}

func (PoolStats) TableName() string {
	return "pool_stats"
}

// PoolDelta is the change applied to a pool by one deposit or withdrawal.
// The fee is computed by the caller; pool updates never derive it.
type PoolDelta struct {
	Currency           Currency        `json:"currency"`
	LiquidityChange    decimal.Decimal `json:"liquidity_change"`
	AnonymitySetChange int64           `json:"anonymity_set_change"`
	FeeAmount          decimal.Decimal `json:"fee_amount"`
}

// PoolSnapshot 定时记录的池子统计快照
type PoolSnapshot struct {
	ID                 uint            `gorm:"primarykey" json:"id"`
	Currency           Currency        `gorm:"size:16;not null;index" json:"currency"`
	TotalLiquidity     decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"total_liquidity"`
	AnonymitySetSize   int64           `gorm:"not null" json:"anonymity_set_size"`
	PrivacyFundBalance decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"privacy_fund_balance"`
	SourceUpdatedAt    time.Time       `json:"source_updated_at"`
	TakenAt            time.Time       `gorm:"not null;index" json:"taken_at"`
}

func (PoolSnapshot) TableName() string {
	return "pool_snapshots"
}

// NewPoolSnapshot copies s into a snapshot row stamped with takenAt
func NewPoolSnapshot(s PoolStats, takenAt time.Time) PoolSnapshot {
	return PoolSnapshot{
		Currency:           s.Currency,
		TotalLiquidity:     s.TotalLiquidity,
		AnonymitySetSize:   s.AnonymitySetSize,
		PrivacyFundBalance: s.PrivacyFundBalance,
		SourceUpdatedAt:    s.UpdatedAt,
		TakenAt:            takenAt,
	}
}
