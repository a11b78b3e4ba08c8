package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Command actions accepted on the command queue
const (
	ActionDepositObserved     = "deposit_observed"
	ActionWithdrawalRequested = "withdrawal_requested"
	ActionResetDemo           = "reset_demo"
)

// Command is a message from the contract binding asking the ledger to mirror an on-chain event
type Command struct {
	Action string `json:"action"`

	// deposit_observed
	OwnerAddress        string `json:"owner_address,omitempty"`
	Currency            string `json:"currency,omitempty"`
	Amount              string `json:"amount,omitempty"`
	TransactionHash     string `json:"transaction_hash,omitempty"`
	LockDurationSeconds int64  `json:"lock_duration_seconds,omitempty"`

	// withdrawal_requested
	DepositID       string `json:"deposit_id,omitempty"`
	WithdrawAddress string `json:"withdraw_address,omitempty"`
	UseRelayer      bool   `json:"use_relayer,omitempty"`
}

// Ledger event types published on the event queue
const (
	EventDepositCreated      = "deposit_created"
	EventWithdrawalProcessed = "withdrawal_processed"
	EventCommandRejected     = "command_rejected"
	EventDemoReset           = "demo_reset"
)

// LedgerEvent is published after the ledger has applied (or refused) a change
type LedgerEvent struct {
	Type         string           `json:"type"`
	DepositID    string           `json:"deposit_id,omitempty"`
	Currency     Currency         `json:"currency,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	FeeAmount    *decimal.Decimal `json:"fee_amount,omitempty"`
	PrivacyScore int              `json:"privacy_score,omitempty"` // 40-100, deposits only
	UsedRelayer  bool             `json:"used_relayer,omitempty"`
	RelayerFee   *decimal.Decimal `json:"relayer_fee,omitempty"`
	Action       string           `json:"action,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Pool         *PoolStats       `json:"pool,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}
