// internal/trading/position.go
package trading

import (
	"sync"
	"time"

	"github.com/solpilot/solpilot/internal/market"
)

// Status of a position. Positions are never deleted, only marked closed.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// ExitReason records why a position was closed. Exactly one reason is ever
// recorded per position.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take-profit"
	ExitStopLoss   ExitReason = "stop-loss"
	ExitTimeout    ExitReason = "timeout"
)

// Position is one directional exposure opened by a session. Financial
// fields are fixed at creation; only the status may change, once.
type Position struct {
	ID         string
	SessionID  string
	Token      string // symbol
	Mint       string
	Direction  market.Direction
	EntryPrice float64 // USD per token
	Quantity   float64 // token units
	SolSpent   float64 // base-currency amount committed
	TakeProfit float64 // USD trigger, price >= closes
	StopLoss   float64 // USD trigger, price <= closes
	CreatedAt  time.Time
	Deadline   time.Time // absolute auto-exit deadline

	mu         sync.RWMutex
	status     Status
	exitReason ExitReason
	closedAt   time.Time
}

// NewOpenPosition marks a freshly built position as open and returns it.
func NewOpenPosition(pos *Position) *Position {
	pos.status = StatusOpen
	return pos
}

// Status returns the current lifecycle status.
func (p *Position) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// IsOpen reports whether the position is still open.
func (p *Position) IsOpen() bool {
	return p.Status() == StatusOpen
}

// Close transitions the position to CLOSED with the given reason. It
// returns false if the position was already closed; a closed position is
// immutable.
func (p *Position) Close(reason ExitReason) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == StatusClosed {
		return false
	}
	p.status = StatusClosed
	p.exitReason = reason
	p.closedAt = time.Now()
	return true
}

// ExitReason returns the recorded close reason, empty while open.
func (p *Position) ExitReason() ExitReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitReason
}

// ClosedAt returns when the position was closed, zero while open.
func (p *Position) ClosedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closedAt
}

// Snapshot is a read-only copy of the position for status reporting.
type Snapshot struct {
	ID         string     `json:"id"`
	Token      string     `json:"token"`
	Direction  string     `json:"direction"`
	EntryPrice float64    `json:"entry_price"`
	Quantity   float64    `json:"quantity"`
	SolSpent   float64    `json:"sol_spent"`
	TakeProfit float64    `json:"take_profit"`
	StopLoss   float64    `json:"stop_loss"`
	Status     Status     `json:"status"`
	ExitReason ExitReason `json:"exit_reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Deadline   time.Time  `json:"deadline"`
}

// Snapshot returns a consistent copy of the position.
func (p *Position) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Snapshot{
		ID:         p.ID,
		Token:      p.Token,
		Direction:  string(p.Direction),
		EntryPrice: p.EntryPrice,
		Quantity:   p.Quantity,
		SolSpent:   p.SolSpent,
		TakeProfit: p.TakeProfit,
		StopLoss:   p.StopLoss,
		Status:     p.status,
		ExitReason: p.exitReason,
		CreatedAt:  p.CreatedAt,
		Deadline:   p.Deadline,
	}
}
