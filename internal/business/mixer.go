package business

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"privacymixer/internal/ledger"
	"privacymixer/internal/models"
	"privacymixer/internal/observability"
	"privacymixer/internal/privacy"
	"privacymixer/internal/relayer"
)

// DefaultFeeRate is the share of each deposit credited to the privacy fund
var DefaultFeeRate = decimal.RequireFromString("0.015")

// Repository is the persistence mirror of the ledger
type Repository interface {
	SaveDeposit(ctx context.Context, d models.Deposit) error
	SavePoolStats(ctx context.Context, s models.PoolStats) error
	LoadDeposits(ctx context.Context) ([]models.Deposit, error)
	LoadPoolStats(ctx context.Context) ([]models.PoolStats, error)
	Clear(ctx context.Context) error
}

// Publisher sends ledger events to a queue
type Publisher interface {
	Publish(queueName string, message interface{}) error
}

// MixerService applies deposits and withdrawals to the ledger together with their pool
// accounting, then mirrors and announces the result. The ledger stays authoritative:
// mirror and publish failures are logged and counted, never returned.
type MixerService struct {
	ledger    *ledger.Ledger
	feeRate   decimal.Decimal
	repo      Repository
	publisher Publisher
	queue     string
	metrics   *observability.Metrics
	estimator relayer.Estimator
	scorer    privacy.Calculator
	log       *logrus.Entry
}

// Option configures a MixerService
type Option func(*MixerService)

// WithFeeRate overrides DefaultFeeRate
func WithFeeRate(rate decimal.Decimal) Option {
	return func(s *MixerService) { s.feeRate = rate }
}

// WithRepository enables the persistence mirror
func WithRepository(r Repository) Option {
	return func(s *MixerService) { s.repo = r }
}

// WithPublisher enables event publishing to queue
func WithPublisher(p Publisher, queue string) Option {
	return func(s *MixerService) {
		s.publisher = p
		s.queue = queue
	}
}

// WithMetrics enables prometheus metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(s *MixerService) { s.metrics = m }
}

// WithEstimator overrides the default relayer estimator
func WithEstimator(e relayer.Estimator) Option {
	return func(s *MixerService) { s.estimator = e }
}

// WithCalculator overrides the default privacy score conversion rates
func WithCalculator(c privacy.Calculator) Option {
	return func(s *MixerService) { s.scorer = c }
}

// NewMixerService wraps l
func NewMixerService(l *ledger.Ledger, opts ...Option) *MixerService {
	s := &MixerService{
		ledger:    l,
		feeRate:   DefaultFeeRate,
		estimator: relayer.DefaultEstimator(),
		scorer:    privacy.DefaultCalculator(),
		log:       logrus.WithField("component", "mixer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger returns the underlying ledger
func (s *MixerService) Ledger() *ledger.Ledger {
	return s.ledger
}

// FeeFor returns the privacy fund fee charged on amount
func (s *MixerService) FeeFor(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.feeRate)
}

// Deposit records a deposit and credits its pool with the amount, one anonymity-set
// member and the fee.
func (s *MixerService) Deposit(ctx context.Context, req ledger.CreateDepositRequest) (models.Deposit, error) {
	rec, err := s.ledger.CreateDeposit(req)
	if err != nil {
		s.metrics.RecordRejection("deposit", ledger.Reason(err))
		s.log.WithError(err).WithField("owner", req.OwnerAddress).Warn("deposit rejected")
		return models.Deposit{}, err
	}

	s.mirror(ctx, &rec, nil)

	fee := s.FeeFor(rec.Amount)
	pool := s.ledger.ApplyPoolDelta(models.PoolDelta{
		Currency:           rec.Currency,
		LiquidityChange:    rec.Amount,
		AnonymitySetChange: 1,
		FeeAmount:          fee,
	}, s.poolUpdated(ctx))

	s.metrics.RecordDeposit(rec.Currency)

	score := s.Score(rec)
	amount := rec.Amount
	s.publish(models.LedgerEvent{
		Type:         models.EventDepositCreated,
		DepositID:    rec.ID,
		Currency:     rec.Currency,
		Amount:       &amount,
		FeeAmount:    &fee,
		PrivacyScore: score,
		Pool:         &pool,
		OccurredAt:   rec.DepositTime,
	})

	s.log.WithFields(logrus.Fields{
		"deposit_id": rec.ID,
		"currency":   rec.Currency,
		"amount":     rec.Amount.String(),
		"fee":        fee.String(),
		"score":      score,
	}).Info("deposit created")

	return rec, nil
}

// Withdraw withdraws a deposit and removes its amount and anonymity-set member from
// the pool. No fee is charged on withdrawal.
func (s *MixerService) Withdraw(ctx context.Context, depositID, withdrawAddress string, useRelayer bool) (models.Deposit, error) {
	rec, err := s.ledger.ProcessWithdrawal(depositID, withdrawAddress, useRelayer)
	if err != nil {
		s.metrics.RecordRejection("withdraw", ledger.Reason(err))
		s.log.WithError(err).WithField("deposit_id", depositID).Warn("withdrawal rejected")
		return models.Deposit{}, err
	}

	s.mirror(ctx, &rec, nil)

	pool := s.ledger.ApplyPoolDelta(models.PoolDelta{
		Currency:           rec.Currency,
		LiquidityChange:    rec.Amount.Neg(),
		AnonymitySetChange: -1,
		FeeAmount:          decimal.Zero,
	}, s.poolUpdated(ctx))

	s.metrics.RecordWithdrawal(rec.Currency, useRelayer)

	amount := rec.Amount
	event := models.LedgerEvent{
		Type:        models.EventWithdrawalProcessed,
		DepositID:   rec.ID,
		Currency:    rec.Currency,
		Amount:      &amount,
		UsedRelayer: useRelayer,
		Pool:        &pool,
		OccurredAt:  *rec.WithdrawnAt,
	}
	if useRelayer {
		fee := s.estimator.Quote(decimal.Zero).RelayerFee
		event.RelayerFee = &fee
	}
	s.publish(event)

	s.log.WithFields(logrus.Fields{
		"deposit_id":  rec.ID,
		"currency":    rec.Currency,
		"use_relayer": useRelayer,
	}).Info("withdrawal processed")

	return rec, nil
}

// Score rates the privacy of a deposit
func (s *MixerService) Score(d models.Deposit) int {
	return s.scorer.Score(privacy.ScoreInput{
		DepositAmount:       d.Amount.InexactFloat64(),
		LockDurationSeconds: d.LockDurationSeconds,
		Currency:            d.Currency,
	})
}

// QuoteWithdrawal prices a withdrawal from a wallet holding balance ETH
func (s *MixerService) QuoteWithdrawal(balance decimal.Decimal) relayer.Quote {
	return s.estimator.Quote(balance)
}

// DepositsByOwner lists the owner's deposits in creation order
func (s *MixerService) DepositsByOwner(owner string) []models.Deposit {
	return s.ledger.GetDepositsByOwner(owner)
}

// PoolStats returns one pool; empty currency selects the default
func (s *MixerService) PoolStats(currency models.Currency) models.PoolStats {
	return s.ledger.GetPoolStats(currency)
}

// AllPoolStats returns every known pool
func (s *MixerService) AllPoolStats() []models.PoolStats {
	return s.ledger.AllPoolStats()
}

// Restore loads the mirrored state into the ledger
func (s *MixerService) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	deposits, err := s.repo.LoadDeposits(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	pools, err := s.repo.LoadPoolStats(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	s.ledger.Restore(deposits, pools)
	for _, p := range pools {
		s.metrics.ObservePool(p)
	}
	return nil
}

// ResetDemo wipes the ledger and mirror and installs the demonstration pools
func (s *MixerService) ResetDemo(ctx context.Context) ([]models.PoolStats, error) {
	s.ledger.Reset()
	seeded := s.ledger.SeedDemo()

	if s.repo != nil {
		if err := s.repo.Clear(ctx); err != nil {
			s.metrics.RecordMirrorFailure("reset")
			return seeded, fmt.Errorf("reset mirror: %w", err)
		}
	}
	for i := range seeded {
		s.metrics.ObservePool(seeded[i])
		s.mirror(ctx, nil, &seeded[i])
	}

	s.publish(models.LedgerEvent{Type: models.EventDemoReset, OccurredAt: s.ledger.Now()})
	s.log.Warn("ledger reset to demo state")
	return seeded, nil
}

// RejectCommand announces that a queued command could not be applied
func (s *MixerService) RejectCommand(action, reason string) {
	s.publish(models.LedgerEvent{
		Type:       models.EventCommandRejected,
		Action:     action,
		Reason:     reason,
		OccurredAt: s.ledger.Now(),
	})
}

// poolUpdated mirrors and observes a pool row under the ledger's per-currency lock,
// so concurrent updates of one currency reach the mirror in the order they were applied
func (s *MixerService) poolUpdated(ctx context.Context) func(models.PoolStats) {
	return func(p models.PoolStats) {
		s.metrics.ObservePool(p)
		s.mirror(ctx, nil, &p)
	}
}

func (s *MixerService) mirror(ctx context.Context, d *models.Deposit, p *models.PoolStats) {
	if s.repo == nil {
		return
	}
	if d != nil {
		if err := s.repo.SaveDeposit(ctx, *d); err != nil {
			s.metrics.RecordMirrorFailure("deposit")
			s.log.WithError(err).WithField("deposit_id", d.ID).Error("failed to mirror deposit")
		}
	}
	if p != nil {
		if err := s.repo.SavePoolStats(ctx, *p); err != nil {
			s.metrics.RecordMirrorFailure("pool")
			s.log.WithError(err).WithField("currency", p.Currency).Error("failed to mirror pool stats")
		}
	}
}

func (s *MixerService) publish(event models.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.publisher.Publish(s.queue, event); err != nil {
		s.metrics.RecordPublishFailure()
		s.log.WithError(err).WithField("event", event.Type).Error("failed to publish ledger event")
	}
}
