// internal/monitor/exit_test.go
package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/solpilot/solpilot/internal/trading"
)

// scriptedExecutor returns one pre-scripted outcome per attempt, in order.
type scriptedExecutor struct {
	mu       sync.Mutex
	script   []exitOutcome
	attempts []int // tolerances seen
}

type exitOutcome struct {
	res *trading.ExitResult
	err error
}

func (s *scriptedExecutor) ExecuteExit(ctx context.Context, pos *trading.Position, reason trading.ExitReason, toleranceBps int) (*trading.ExitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append(s.attempts, toleranceBps)
	if len(s.script) == 0 {
		return &trading.ExitResult{ToleranceBps: toleranceBps}, nil
	}
	next := s.script[0]
	s.script = s.script[1:]
	if next.res != nil && next.res.ToleranceBps == 0 {
		next.res.ToleranceBps = toleranceBps
	}
	return next.res, next.err
}

func testLadder() []int { return []int{300, 500, 700} }

func exitTestPosition() *trading.Position {
	now := time.Now()
	return trading.NewOpenPosition(&trading.Position{
		ID:        "pos-1",
		Token:     "BONK",
		CreatedAt: now,
		Deadline:  now.Add(time.Minute),
	})
}

func TestRetrierStopsAtFirstSuccess(t *testing.T) {
	exec := &scriptedExecutor{script: []exitOutcome{
		{res: &trading.ExitResult{Success: false}},
		{res: &trading.ExitResult{Success: true, Signature: "sig-1"}},
	}}
	r := NewExitRetrier(testLadder(), time.Millisecond, exec, zaptest.NewLogger(t))

	pos := exitTestPosition()
	closed := r.Run(context.Background(), pos, trading.ExitTakeProfit)

	assert.True(t, closed)
	assert.Equal(t, []int{300, 500}, exec.attempts)
	assert.False(t, pos.IsOpen())
	assert.Equal(t, trading.ExitTakeProfit, pos.ExitReason())
}

func TestRetrierWalksLadderInOrder(t *testing.T) {
	exec := &scriptedExecutor{script: []exitOutcome{
		{res: &trading.ExitResult{Success: false}},
		{res: &trading.ExitResult{Success: false}},
		{res: &trading.ExitResult{Success: true}},
	}}
	r := NewExitRetrier(testLadder(), time.Millisecond, exec, zaptest.NewLogger(t))

	closed := r.Run(context.Background(), exitTestPosition(), trading.ExitStopLoss)
	assert.True(t, closed)
	assert.Equal(t, []int{300, 500, 700}, exec.attempts)
}

func TestRetrierExhaustedLeavesPositionOpen(t *testing.T) {
	exec := &scriptedExecutor{script: []exitOutcome{
		{res: &trading.ExitResult{Success: false}},
		{res: &trading.ExitResult{Success: false}},
		{res: &trading.ExitResult{Success: false}},
	}}
	r := NewExitRetrier(testLadder(), time.Millisecond, exec, zaptest.NewLogger(t))

	pos := exitTestPosition()
	closed := r.Run(context.Background(), pos, trading.ExitTimeout)

	assert.False(t, closed)
	assert.Equal(t, 3, len(exec.attempts))
	assert.True(t, pos.IsOpen())
}

func TestRetrierBusyGuardAbortsWithoutEscalating(t *testing.T) {
	exec := &scriptedExecutor{script: []exitOutcome{
		{res: &trading.ExitResult{Skipped: true}},
	}}
	r := NewExitRetrier(testLadder(), time.Millisecond, exec, zaptest.NewLogger(t))

	pos := exitTestPosition()
	closed := r.Run(context.Background(), pos, trading.ExitTakeProfit)

	// Contention aborts the ladder entirely; the next monitor tick starts
	// over from the bottom rung.
	assert.False(t, closed)
	assert.Equal(t, []int{300}, exec.attempts)
	assert.True(t, pos.IsOpen())
}

func TestRetrierErrorCountsAsFailedRung(t *testing.T) {
	exec := &scriptedExecutor{script: []exitOutcome{
		{err: errors.New("price fetch failed")},
		{res: &trading.ExitResult{Success: true}},
	}}
	r := NewExitRetrier(testLadder(), time.Millisecond, exec, zaptest.NewLogger(t))

	closed := r.Run(context.Background(), exitTestPosition(), trading.ExitStopLoss)
	assert.True(t, closed)
	assert.Equal(t, []int{300, 500}, exec.attempts)
}

func TestRetrierCancelledBetweenRungs(t *testing.T) {
	exec := &scriptedExecutor{script: []exitOutcome{
		{res: &trading.ExitResult{Success: false}},
	}}
	r := NewExitRetrier(testLadder(), time.Hour, exec, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	closed := r.Run(ctx, exitTestPosition(), trading.ExitTimeout)
	assert.False(t, closed)
	assert.Equal(t, []int{300}, exec.attempts)
}
