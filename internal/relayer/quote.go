package relayer

import (
	"github.com/shopspring/decimal"
)

const (
	// DefaultGasLimit is the gas of a plain ETH transfer
	DefaultGasLimit = 21000
	costPlaces      = 6
)

var (
	weiPerGwei = decimal.New(1, 9)
	weiPerEth  = decimal.New(1, 18)
)

// Estimator prices a withdrawal transaction for a freshly generated wallet
type Estimator struct {
	GasLimit      uint64
	GasBuffer     decimal.Decimal
	GasPriceGwei  decimal.Decimal
	RelayerMarkup decimal.Decimal
}

// Quote is the cost breakdown for a withdrawal. Amounts are in ETH.
type Quote struct {
	Balance          decimal.Decimal `json:"balance"`
	EstimatedGasCost decimal.Decimal `json:"estimated_gas_cost"`
	HasSufficientGas bool            `json:"has_sufficient_gas"`
	RequiresRelayer  bool            `json:"requires_relayer"`
	RelayerFee       decimal.Decimal `json:"relayer_fee"`
	TotalCost        decimal.Decimal `json:"total_cost"`
}

// DefaultEstimator uses a 20% gas buffer, 30 gwei and a 50% relayer markup
func DefaultEstimator() Estimator {
	return Estimator{
		GasLimit:      DefaultGasLimit,
		GasBuffer:     decimal.RequireFromString("1.2"),
		GasPriceGwei:  decimal.NewFromInt(30),
		RelayerMarkup: decimal.RequireFromString("1.5"),
	}
}

// GasCost returns the buffered gas cost in ETH rounded to six places
func (e Estimator) GasCost() decimal.Decimal {
	gas := decimal.NewFromInt(int64(e.GasLimit)).Mul(e.GasBuffer).Round(0)
	wei := gas.Mul(e.GasPriceGwei.Mul(weiPerGwei))
	return wei.Div(weiPerEth).Round(costPlaces)
}

// Quote reports whether balance covers the gas and what a relayer would charge
func (e Estimator) Quote(balance decimal.Decimal) Quote {
	cost := e.GasCost()
	fee := cost.Mul(e.RelayerMarkup).Round(costPlaces)
	sufficient := balance.GreaterThanOrEqual(cost)

	total := cost
	if !sufficient {
		total = cost.Add(fee)
	}

	return Quote{
		Balance:          balance,
		EstimatedGasCost: cost,
		HasSufficientGas: sufficient,
		RequiresRelayer:  !sufficient,
		RelayerFee:       fee,
		TotalCost:        total,
	}
}
