package privacy

import (
	"math"

	"privacymixer/internal/models"
)

const (
	// DefaultStablecoinRate approximates the base-unit price of one dollar-pegged token
	DefaultStablecoinRate = 2500.0
	// DefaultHighValueRate approximates how many base units one WBTC is worth
	DefaultHighValueRate = 40.0

	MinScore = 40
	MaxScore = 100

	amountWeight = 0.5
	timeWeight   = 0.5
)

// Lock tier boundaries in seconds
const (
	ShortLockSeconds  int64 = 3600
	MediumLockSeconds int64 = 14400
	LongLockSeconds   int64 = 86400
)

// ScoreInput describes a proposed deposit
type ScoreInput struct {
	DepositAmount       float64         `json:"deposit_amount"`
	LockDurationSeconds int64           `json:"lock_duration_seconds"`
	Currency            models.Currency `json:"currency,omitempty"`
}

// Calculator scores proposed deposits. The zero value is not usable; use DefaultCalculator.
type Calculator struct {
	StablecoinRate float64
	HighValueRate  float64
}

// DefaultCalculator returns a Calculator with the default reference rates
func DefaultCalculator() Calculator {
	return Calculator{
		StablecoinRate: DefaultStablecoinRate,
		HighValueRate:  DefaultHighValueRate,
	}
}

// CalculatePrivacyScore scores in with the default reference rates
func CalculatePrivacyScore(in ScoreInput) int {
	return DefaultCalculator().Score(in)
}

// ToBaseUnits converts amount into its ETH equivalent for scoring purposes
func (c Calculator) ToBaseUnits(amount float64, currency models.Currency) float64 {
	if amount < 0 || math.IsNaN(amount) {
		amount = 0
	}
	switch currency.Normalize() {
	case models.CurrencyUSDC, models.CurrencyUSDT:
		if c.StablecoinRate <= 0 {
			return amount
		}
		return amount / c.StablecoinRate
	case models.CurrencyWBTC:
		return amount * c.HighValueRate
	default:
		return amount
	}
}

// AmountTier buckets a base-unit amount: 1 is the smallest (best) and 4 the largest
func AmountTier(baseAmount float64) int {
	switch {
	case baseAmount < 0.5:
		return 1
	case baseAmount < 2:
		return 2
	case baseAmount < 10:
		return 3
	default:
		return 4
	}
}

// TimeTier buckets a lock duration: 1 is the shortest (worst) and 3 the longest
func TimeTier(lockSeconds int64) int {
	if lockSeconds < 0 {
		lockSeconds = 0
	}
	switch {
	case lockSeconds <= ShortLockSeconds:
		return 1
	case lockSeconds <= MediumLockSeconds:
		return 2
	default:
		return 3
	}
}

// Score maps a proposed deposit to an integer in [MinScore, MaxScore]
func (c Calculator) Score(in ScoreInput) int {
	amountTier := AmountTier(c.ToBaseUnits(in.DepositAmount, in.Currency))
	timeTier := TimeTier(in.LockDurationSeconds)

	// smaller deposits hide better, so the amount sub-score is inverted
	amountScore := 1 - float64(amountTier-1)/3
	timeScore := float64(timeTier-1) / 2

	score := int(math.Round(100 * (amountWeight*amountScore + timeWeight*timeScore)))
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Label names the band a score falls in
func Label(score int) string {
	switch {
	case score >= 80:
		return "Excellent"
	case score >= 60:
		return "Good"
	case score >= 40:
		return "Fair"
	case score >= 20:
		return "Poor"
	default:
		return "Very Poor"
	}
}
