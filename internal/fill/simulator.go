// Package fill simulates market order execution with slippage, commission
// and optional square-root market impact.
package fill

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
)

// Fill errors
var (
	ErrInvalidOrder = errors.New("invalid order: price and amount must be positive")
	ErrInvalidSide  = errors.New("invalid order side")
	ErrInvalidRate  = errors.New("commission rate and slippage must be non-negative")
)

// DefaultImpactCoefficient scales the square-root impact term.
const DefaultImpactCoefficient = 0.1

var bpsDivisor = decimal.NewFromInt(10_000)

// Liquidity describes available depth for the market impact model.
type Liquidity struct {
	AverageVolume     float64 // base units traded per bar
	ImpactCoefficient float64 // 0 means DefaultImpactCoefficient
}

// Request is a simulated market order.
// For buys Amount is quote notional; for sells it is base quantity.
type Request struct {
	Side           domain.Side
	Amount         float64
	Price          float64
	CommissionRate float64
	SlippageBps    float64
	Liquidity      *Liquidity // nil disables market impact
}

// Result is the outcome of a simulated fill.
type Result struct {
	Side           domain.Side
	RequestedPrice float64
	ExecutedPrice  float64
	GrossQuantity  float64 // base units before commission
	NetQuantity    float64 // base units after commission
	Commission     float64 // base units
	TotalCost      float64 // quote spent (buys)
	Proceeds       float64 // quote received net of commission (sells)
	SlippageAmount float64 // per-unit price move from slippage
	MarketImpact   float64 // per-unit price move from impact
}

// Execute simulates filling req. Slippage and impact always move the price
// against the trader.
func Execute(req Request) (*Result, error) {
	if req.Price <= 0 || req.Amount <= 0 {
		return nil, ErrInvalidOrder
	}
	if req.CommissionRate < 0 || req.SlippageBps < 0 {
		return nil, ErrInvalidRate
	}
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return nil, ErrInvalidSide
	}

	price := decimal.NewFromFloat(req.Price)
	amount := decimal.NewFromFloat(req.Amount)
	rate := decimal.NewFromFloat(req.CommissionRate)

	slip := decimal.NewFromFloat(req.SlippageBps).Div(bpsDivisor)
	impact := decimal.NewFromFloat(impactFraction(req))

	slipAmount := price.Mul(slip)
	impactAmount := price.Mul(impact)
	move := slipAmount.Add(impactAmount)

	res := &Result{
		Side:           req.Side,
		RequestedPrice: req.Price,
		SlippageAmount: slipAmount.InexactFloat64(),
		MarketImpact:   impactAmount.InexactFloat64(),
	}

	switch req.Side {
	case domain.SideBuy:
		executed := price.Add(move)
		qty := amount.Div(executed)
		commission := qty.Mul(rate)

		res.ExecutedPrice = executed.InexactFloat64()
		res.GrossQuantity = qty.InexactFloat64()
		res.Commission = commission.InexactFloat64()
		res.NetQuantity = qty.Sub(commission).InexactFloat64()
		res.TotalCost = req.Amount
	case domain.SideSell:
		executed := price.Sub(move)
		if !executed.IsPositive() {
			return nil, ErrInvalidOrder
		}
		commission := amount.Mul(rate)
		net := amount.Sub(commission)

		res.ExecutedPrice = executed.InexactFloat64()
		res.GrossQuantity = req.Amount
		res.Commission = commission.InexactFloat64()
		res.NetQuantity = net.InexactFloat64()
		res.Proceeds = net.Mul(executed).InexactFloat64()
	}

	return res, nil
}

// impactFraction returns coefficient * sqrt(orderQty / averageVolume).
func impactFraction(req Request) float64 {
	liq := req.Liquidity
	if liq == nil || liq.AverageVolume <= 0 {
		return 0
	}

	qty := req.Amount
	if req.Side == domain.SideBuy {
		qty = req.Amount / req.Price
	}

	coef := liq.ImpactCoefficient
	if coef <= 0 {
		coef = DefaultImpactCoefficient
	}
	return coef * math.Sqrt(qty/liq.AverageVolume)
}
