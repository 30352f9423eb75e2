// internal/session/session.go
// Package session owns the per-session trading state machine and the store
// all other components read sessions through.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/solpilot/solpilot/internal/trading"
)

// State of a session. RUNNING is the only state trading proceeds from;
// COMPLETED, STOPPED and FAILED are terminal.
type State string

const (
	StatePendingDeposit State = "PENDING_DEPOSIT"
	StateRunning        State = "RUNNING"
	StateCompleted      State = "COMPLETED"
	StateStopped        State = "STOPPED"
	StateFailed         State = "FAILED"
)

// Terminal reports whether no further transition may leave the state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateFailed
}

// Session is one user-funded, quota-bounded automated trading run.
type Session struct {
	ID        string
	Wallet    string
	Allocated float64
	Quota     int
	CreatedAt time.Time

	mu        sync.RWMutex
	state     State
	remaining float64
	trades    int
	positions []*trading.Position
	funded    bool
	released  bool
	cancel    context.CancelFunc
}

func newSession(id, wallet string, allocated float64, quota int) *Session {
	return &Session{
		ID:        id,
		Wallet:    wallet,
		Allocated: allocated,
		Quota:     quota,
		CreatedAt: time.Now(),
		state:     StatePendingDeposit,
		remaining: allocated,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Remaining returns the uncommitted balance.
func (s *Session) Remaining() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remaining
}

// Trades returns the number of entry trades executed so far.
func (s *Session) Trades() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trades
}

// transition moves the session into next if the current state allows it.
// Terminal states absorb: no transition ever leaves them.
func (s *Session) transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return false
	}
	s.state = next
	return true
}

// transitionFrom moves the session into next only if it is currently in
// from. The compare-and-swap lets exactly one of several concurrent
// callers claim a transition.
func (s *Session) transitionFrom(from, next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != from {
		return false
	}
	s.state = next
	return true
}

// markFunded records that the deposit settled and funds are reserved in
// the ledger for this session.
func (s *Session) markFunded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funded = true
}

// commit records a successfully opened position, decrementing remaining.
// The invariant remaining = allocated - sum(SolSpent) >= 0 holds because
// sizing never exceeds remaining.
func (s *Session) commit(pos *trading.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos.SolSpent > s.remaining {
		return fmt.Errorf("position commits %f but only %f remains", pos.SolSpent, s.remaining)
	}
	s.remaining -= pos.SolSpent
	s.trades++
	s.positions = append(s.positions, pos)
	return nil
}

// takeRelease returns the remaining balance to hand back to the ledger,
// exactly once per session. A session whose deposit never settled has
// nothing reserved, so there is nothing to release.
func (s *Session) takeRelease() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.funded || s.released {
		return 0, false
	}
	s.released = true
	return s.remaining, true
}

// openPositions returns the currently open positions.
func (s *Session) openPositions() []*trading.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var open []*trading.Position
	for _, p := range s.positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	return open
}

func (s *Session) hasOpenPosition() bool {
	return len(s.openPositions()) > 0
}

func (s *Session) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

func (s *Session) stopCadence() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	ID        string             `json:"id"`
	Wallet    string             `json:"wallet"`
	State     State              `json:"state"`
	Allocated float64            `json:"allocated"`
	Remaining float64            `json:"remaining"`
	Trades    int                `json:"trades"`
	Quota     int                `json:"quota"`
	CreatedAt time.Time          `json:"created_at"`
	Positions []trading.Snapshot `json:"positions"`
}

// Snapshot returns a consistent copy of the session and its positions.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]trading.Snapshot, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, p.Snapshot())
	}
	return Snapshot{
		ID:        s.ID,
		Wallet:    s.Wallet,
		State:     s.state,
		Allocated: s.Allocated,
		Remaining: s.remaining,
		Trades:    s.trades,
		Quota:     s.Quota,
		CreatedAt: s.CreatedAt,
		Positions: positions,
	}
}

// Store holds all sessions by id. It is the single owner of session state;
// nothing else keeps session maps.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (st *Store) add(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

// Get returns the session with the given id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// OpenPositions returns every open position across all sessions. The
// position monitor reads through this without touching session state.
func (st *Store) OpenPositions() []*trading.Position {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var open []*trading.Position
	for _, s := range st.sessions {
		open = append(open, s.openPositions()...)
	}
	return open
}
