// Package ledger keeps the off-chain bookkeeping of mixer deposits and per-currency pool
// statistics. It mirrors on-chain events and never moves funds itself.
package ledger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"privacymixer/internal/models"
)

const (
	// DefaultLockSeconds is applied when a deposit arrives without a positive lock duration
	DefaultLockSeconds int64 = 86400
	// DefaultCurrency is used when a deposit or pool query names no currency
	DefaultCurrency = models.CurrencyETH
	// MaxAmountPlaces is the finest amount precision (wei) the ledger and its mirror store
	MaxAmountPlaces int32 = 18
)

type depositEntry struct {
	mu  sync.Mutex
	rec models.Deposit
}

type poolEntry struct {
	mu    sync.Mutex
	stats models.PoolStats
}

// Ledger is an in-memory deposit store with per-record withdrawal locking
// and per-currency pool aggregates.
type Ledger struct {
	mu       sync.RWMutex
	deposits map[string]*depositEntry
	order    []string

	poolsMu sync.RWMutex
	pools   map[models.Currency]*poolEntry

	clock              Clock
	ids                IDGenerator
	defaultCurrency    models.Currency
	defaultLockSeconds int64
	log                *logrus.Entry
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock replaces the system clock
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithIDGenerator replaces the uuid id generator
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) { l.ids = g }
}

// WithDefaultCurrency sets the currency used when none is given
func WithDefaultCurrency(c models.Currency) Option {
	return func(l *Ledger) { l.defaultCurrency = c.Normalize() }
}

// WithDefaultLockSeconds sets the lock applied to deposits without one
func WithDefaultLockSeconds(s int64) Option {
	return func(l *Ledger) {
		if s > 0 {
			l.defaultLockSeconds = s
		}
	}
}

// WithLogger sets the logger entry
func WithLogger(e *logrus.Entry) Option {
	return func(l *Ledger) { l.log = e }
}

// New creates an empty ledger
func New(opts ...Option) *Ledger {
	l := &Ledger{
		deposits:           make(map[string]*depositEntry),
		pools:              make(map[models.Currency]*poolEntry),
		clock:              systemClock{},
		ids:                uuidGenerator{},
		defaultCurrency:    DefaultCurrency,
		defaultLockSeconds: DefaultLockSeconds,
		log:                logrus.WithField("component", "ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger clock's current time
func (l *Ledger) Now() time.Time {
	return l.clock.Now()
}

// CreateDepositRequest carries the values the contract binding observed for a deposit
type CreateDepositRequest struct {
	OwnerAddress        string `json:"owner_address"`
	Currency            string `json:"currency"`
	Amount              string `json:"amount"`
	TransactionHash     string `json:"transaction_hash"`
	LockDurationSeconds int64  `json:"lock_duration_seconds"`
}

func (l *Ledger) validateDeposit(req CreateDepositRequest) (models.Currency, decimal.Decimal, error) {
	if strings.TrimSpace(req.OwnerAddress) == "" {
		return "", decimal.Zero, invalid("owner_address", "must not be empty")
	}
	if strings.TrimSpace(req.TransactionHash) == "" {
		return "", decimal.Zero, invalid("transaction_hash", "must not be empty")
	}

	currency := l.defaultCurrency
	if strings.TrimSpace(req.Currency) != "" {
		c, ok := models.ParseCurrency(req.Currency)
		if !ok {
			return "", decimal.Zero, invalid("currency", fmt.Sprintf("unsupported currency %q", req.Currency))
		}
		currency = c
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return "", decimal.Zero, invalid("amount", fmt.Sprintf("%q is not a decimal number", req.Amount))
	}
	if !amount.IsPositive() {
		return "", decimal.Zero, invalid("amount", "must be positive")
	}
	if !amount.Truncate(MaxAmountPlaces).Equal(amount) {
		return "", decimal.Zero, invalid("amount", fmt.Sprintf("more than %d decimal places", MaxAmountPlaces))
	}
	return currency, amount, nil
}

// CreateDeposit records a new active deposit. Pool statistics are not touched;
// the caller applies the matching PoolDelta.
func (l *Ledger) CreateDeposit(req CreateDepositRequest) (models.Deposit, error) {
	currency, amount, err := l.validateDeposit(req)
	if err != nil {
		return models.Deposit{}, err
	}

	lock := req.LockDurationSeconds
	if lock <= 0 {
		lock = l.defaultLockSeconds
	}

	rec := models.Deposit{
		ID:                  l.ids.NewID(),
		OwnerAddress:        strings.TrimSpace(req.OwnerAddress),
		Currency:            currency,
		Amount:              amount,
		TransactionHash:     strings.TrimSpace(req.TransactionHash),
		LockDurationSeconds: lock,
		DepositTime:         l.clock.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.deposits[rec.ID]; exists {
		return models.Deposit{}, fmt.Errorf("id generator returned duplicate deposit id %q", rec.ID)
	}
	l.deposits[rec.ID] = &depositEntry{rec: rec}
	l.order = append(l.order, rec.ID)

	l.log.WithFields(logrus.Fields{
		"deposit_id": rec.ID,
		"currency":   rec.Currency,
		"amount":     rec.Amount.String(),
		"lock":       rec.LockDurationSeconds,
	}).Debug("deposit recorded")

	return rec.Clone(), nil
}

func (l *Ledger) entry(id string) (*depositEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.deposits[id]
	return e, ok
}

// GetDeposit returns the deposit with id or ErrNotFound
func (l *Ledger) GetDeposit(id string) (models.Deposit, error) {
	e, ok := l.entry(id)
	if !ok {
		return models.Deposit{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

// GetDepositsByOwner returns the owner's deposits in insertion order, matching the
// address case-insensitively.
func (l *Ledger) GetDepositsByOwner(owner string) []models.Deposit {
	owner = strings.TrimSpace(owner)

	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]models.Deposit, 0)
	for _, id := range l.order {
		e := l.deposits[id]
		e.mu.Lock()
		if strings.EqualFold(e.rec.OwnerAddress, owner) {
			result = append(result, e.rec.Clone())
		}
		e.mu.Unlock()
	}
	return result
}

// IsWithdrawalEligible reports whether rec's lock has expired at now
func IsWithdrawalEligible(rec models.Deposit, now time.Time) bool {
	return !now.Before(rec.UnlockTime())
}

// ProcessWithdrawal moves a deposit from active to withdrawn. Preconditions are checked
// in order: the deposit exists, is not withdrawn, its lock has expired, and the withdraw
// address is not blank. The checks and the transition happen under the record's lock, so
// of several concurrent callers exactly one succeeds.
func (l *Ledger) ProcessWithdrawal(id, withdrawAddress string, useRelayer bool) (models.Deposit, error) {
	withdrawAddress = strings.TrimSpace(withdrawAddress)

	e, ok := l.entry(id)
	if !ok {
		return models.Deposit{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.IsWithdrawn {
		return models.Deposit{}, fmt.Errorf("%w: %s", ErrAlreadyWithdrawn, id)
	}
	now := l.clock.Now()
	if !IsWithdrawalEligible(e.rec, now) {
		return models.Deposit{}, fmt.Errorf("%w: %s unlocks at %s", ErrLockNotExpired, id, e.rec.UnlockTime().Format(time.RFC3339))
	}
	if withdrawAddress == "" {
		return models.Deposit{}, invalid("withdraw_address", "must not be empty")
	}

	e.rec.IsWithdrawn = true
	e.rec.WithdrawnAt = &now
	e.rec.WithdrawAddress = &withdrawAddress
	e.rec.UsedRelayer = useRelayer

	l.log.WithFields(logrus.Fields{
		"deposit_id":  id,
		"currency":    e.rec.Currency,
		"use_relayer": useRelayer,
	}).Debug("deposit withdrawn")

	return e.rec.Clone(), nil
}

// Restore loads previously mirrored deposits and pool rows, replacing records with the
// same key. Deposits keep the order given.
func (l *Ledger) Restore(deposits []models.Deposit, pools []models.PoolStats) {
	l.mu.Lock()
	for _, d := range deposits {
		if e, exists := l.deposits[d.ID]; exists {
			e.mu.Lock()
			e.rec = d.Clone()
			e.mu.Unlock()
			continue
		}
		l.deposits[d.ID] = &depositEntry{rec: d.Clone()}
		l.order = append(l.order, d.ID)
	}
	l.mu.Unlock()

	l.poolsMu.Lock()
	for _, p := range pools {
		p.Currency = p.Currency.Normalize()
		l.pools[p.Currency] = &poolEntry{stats: p}
	}
	l.poolsMu.Unlock()

	l.log.WithFields(logrus.Fields{
		"deposits": len(deposits),
		"pools":    len(pools),
	}).Info("ledger restored")
}

// Reset drops every deposit and pool. It is a demo and test utility and must not run
// concurrently with deposits, withdrawals or pool updates: an update holding a pool
// entry from before the reset is applied to the dropped entry and is lost.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.deposits = make(map[string]*depositEntry)
	l.order = nil
	l.mu.Unlock()

	l.poolsMu.Lock()
	l.pools = make(map[models.Currency]*poolEntry)
	l.poolsMu.Unlock()

	l.log.Warn("ledger reset")
}
