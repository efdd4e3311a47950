// Package ledger keeps capital and PnL for a run that holds at most one position.
package ledger

import (
	"errors"

	"backtest-lab/internal/domain"
)

// Ledger errors
var (
	ErrAlreadyOpen         = errors.New("position already open")
	ErrNoPosition          = errors.New("no open position")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrInvalidInput        = errors.New("invalid price or quantity")
)

// Ledger tracks available capital, the open position and closed history.
// Not safe for concurrent use; each run owns its ledger.
type Ledger struct {
	initialCapital float64
	capital        float64
	position       *domain.Position
	closed         []domain.ClosedPosition
	realizedPnL    float64
}

// New creates a ledger holding initialCapital in quote currency.
func New(initialCapital float64) *Ledger {
	return &Ledger{
		initialCapital: initialCapital,
		capital:        initialCapital,
	}
}

// Open opens a position and deducts its cost (price * qty) from available capital.
func (l *Ledger) Open(symbol string, side domain.PositionSide, price, qty float64, timestampMs int64) error {
	if l.position != nil {
		return ErrAlreadyOpen
	}
	if price <= 0 || qty <= 0 {
		return ErrInvalidInput
	}

	cost := price * qty
	if cost > l.capital {
		return ErrInsufficientCapital
	}

	l.capital -= cost
	l.position = &domain.Position{
		Symbol:      symbol,
		Side:        side,
		EntryPrice:  price,
		Quantity:    qty,
		EntryTimeMs: timestampMs,
	}
	return nil
}

// Close closes the open position at exitPrice and returns the realized PnL.
// Capital is credited with the position's cost basis plus PnL, which for a
// long equals exitPrice * qty.
func (l *Ledger) Close(exitPrice float64, timestampMs int64) (float64, error) {
	if l.position == nil {
		return 0, ErrNoPosition
	}
	if exitPrice <= 0 {
		return 0, ErrInvalidInput
	}

	pos := *l.position
	pnl := positionPnL(pos, exitPrice)

	l.capital += pos.EntryPrice*pos.Quantity + pnl
	l.realizedPnL += pnl
	l.closed = append(l.closed, domain.ClosedPosition{
		Position:    pos,
		ExitPrice:   exitPrice,
		ExitTimeMs:  timestampMs,
		RealizedPnL: pnl,
	})
	l.position = nil

	return pnl, nil
}

// UnrealizedPnL returns the PnL of the open position at currentPrice, or 0 when flat.
func (l *Ledger) UnrealizedPnL(currentPrice float64) float64 {
	if l.position == nil {
		return 0
	}
	return positionPnL(*l.position, currentPrice)
}

// TotalEquity returns available capital plus unrealized PnL of the open
// position at currentPrice. A non-positive price means no mark is available
// and only available capital is returned.
func (l *Ledger) TotalEquity(currentPrice float64) float64 {
	if l.position == nil || currentPrice <= 0 {
		return l.capital
	}
	return l.capital + l.UnrealizedPnL(currentPrice)
}

// AvailableCapital returns uncommitted quote capital.
func (l *Ledger) AvailableCapital() float64 {
	return l.capital
}

// InitialCapital returns the starting capital.
func (l *Ledger) InitialCapital() float64 {
	return l.initialCapital
}

// Position returns a copy of the open position, or nil when flat.
func (l *Ledger) Position() *domain.Position {
	if l.position == nil {
		return nil
	}
	p := *l.position
	return &p
}

// HasPosition reports whether a position is open.
func (l *Ledger) HasPosition() bool {
	return l.position != nil
}

// ClosedPositions returns the closed position history in close order.
func (l *Ledger) ClosedPositions() []domain.ClosedPosition {
	out := make([]domain.ClosedPosition, len(l.closed))
	copy(out, l.closed)
	return out
}

// RealizedPnL returns the sum of realized PnL over all closed positions.
func (l *Ledger) RealizedPnL() float64 {
	return l.realizedPnL
}

// PositionContext builds the rule evaluator's view of the position at currentPrice.
func (l *Ledger) PositionContext(currentPrice float64) domain.PositionContext {
	if l.position == nil {
		return domain.PositionContext{CurrentPrice: currentPrice}
	}

	pos := l.position
	pnl := positionPnL(*pos, currentPrice)
	var pnlPct float64
	if cost := pos.EntryPrice * pos.Quantity; cost > 0 {
		pnlPct = pnl / cost * 100
	}

	return domain.PositionContext{
		HasPosition:      true,
		Quantity:         pos.Quantity,
		EntryPrice:       pos.EntryPrice,
		CurrentPrice:     currentPrice,
		UnrealizedPnL:    pnl,
		UnrealizedPnLPct: pnlPct,
	}
}

func positionPnL(pos domain.Position, price float64) float64 {
	if pos.Side == domain.PositionShort {
		return (pos.EntryPrice - price) * pos.Quantity
	}
	return (price - pos.EntryPrice) * pos.Quantity
}
