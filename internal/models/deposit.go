package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deposit mirrors one on-chain deposit into the mixer.
// WithdrawnAt and WithdrawAddress are set iff IsWithdrawn is true.
type Deposit struct {
	ID                  string          `gorm:"primaryKey;size:64" json:"id"`
	OwnerAddress        string          `gorm:"size:128;not null;index" json:"owner_address"`
	Currency            Currency        `gorm:"size:16;not null" json:"currency"`
	Amount              decimal.Decimal `gorm:"type:numeric(36,18);not null" json:"amount"`
	TransactionHash     string          `gorm:"size:128;not null" json:"transaction_hash"`
	LockDurationSeconds int64           `gorm:"not null" json:"lock_duration_seconds"`
	DepositTime         time.Time       `gorm:"not null" json:"deposit_time"`
	IsWithdrawn         bool            `gorm:"not null" json:"is_withdrawn"`
	WithdrawnAt         *time.Time      `json:"withdrawn_at"`
	WithdrawAddress     *string         `gorm:"size:128" json:"withdraw_address"`
	UsedRelayer         bool            `gorm:"not null" json:"used_relayer"`
}

func (Deposit) TableName() string {
	return "deposits"
}

// UnlockTime is the earliest instant the deposit may be withdrawn
func (d Deposit) UnlockTime() time.Time {
	return d.DepositTime.Add(time.Duration(d.LockDurationSeconds) * time.Second)
}

// Clone returns a copy that shares no pointers with d
func (d Deposit) Clone() Deposit {
	c := d
	if d.WithdrawnAt != nil {
		t := *d.WithdrawnAt
		c.WithdrawnAt = &t
	}
	if d.WithdrawAddress != nil {
		a := *d.WithdrawAddress
		c.WithdrawAddress = &a
	}
	return c
}
