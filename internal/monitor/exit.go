// internal/monitor/exit.go
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/solpilot/solpilot/internal/metrics"
	"github.com/solpilot/solpilot/internal/trading"
)

// ExitExecutor performs one exit attempt at a given tolerance.
type ExitExecutor interface {
	ExecuteExit(ctx context.Context, pos *trading.Position, reason trading.ExitReason, toleranceBps int) (*trading.ExitResult, error)
}

// ExitRetrier walks the escalating tolerance ladder until one attempt
// succeeds or the ladder is exhausted. An exhausted ladder leaves the
// position OPEN: losing exposure tracking is worse than a stale flag.
type ExitRetrier struct {
	ladderBps []int
	rungDelay time.Duration
	executor  ExitExecutor
	logger    *zap.Logger
}

func NewExitRetrier(ladderBps []int, rungDelay time.Duration, executor ExitExecutor, logger *zap.Logger) *ExitRetrier {
	return &ExitRetrier{
		ladderBps: ladderBps,
		rungDelay: rungDelay,
		executor:  executor,
		logger:    logger.Named("exit_retrier"),
	}
}

// Run attempts the exit across the ladder. It returns true once the
// position is closed.
func (r *ExitRetrier) Run(ctx context.Context, pos *trading.Position, reason trading.ExitReason) bool {
	for i, rung := range r.ladderBps {
		res, err := r.executor.ExecuteExit(ctx, pos, reason, rung)
		switch {
		case err != nil:
			metrics.ExitAttemptsTotal.WithLabelValues("error").Inc()
			r.logger.Warn("Exit attempt errored",
				zap.String("position_id", pos.ID),
				zap.Int("tolerance_bps", rung),
				zap.Error(err))

		case res.Skipped:
			// The trade guard is busy. Contention is not an execution
			// failure, so the ladder must not escalate past it; the next
			// monitor tick starts over from the bottom rung.
			metrics.ExitAttemptsTotal.WithLabelValues("deferred").Inc()
			r.logger.Debug("Exit deferred, trade execution busy",
				zap.String("position_id", pos.ID))
			return false

		case res.Success:
			if pos.Close(reason) {
				metrics.OpenPositions.Dec()
			}
			metrics.ExitAttemptsTotal.WithLabelValues("success").Inc()
			metrics.ExitsTotal.WithLabelValues(string(reason), "closed").Inc()
			r.logger.Info("Position closed",
				zap.String("position_id", pos.ID),
				zap.String("token", pos.Token),
				zap.String("reason", string(reason)),
				zap.Int("tolerance_bps", res.ToleranceBps),
				zap.String("signature", res.Signature))
			return true

		default:
			metrics.ExitAttemptsTotal.WithLabelValues("failed").Inc()
			r.logger.Warn("Exit attempt failed",
				zap.String("position_id", pos.ID),
				zap.Int("tolerance_bps", res.ToleranceBps),
				zap.String("message", res.Message))
		}

		if i < len(r.ladderBps)-1 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(r.rungDelay):
			}
		}
	}

	metrics.ExitsTotal.WithLabelValues(string(reason), "exhausted").Inc()
	r.logger.Warn("Exit ladder exhausted, position left open for manual handling",
		zap.String("position_id", pos.ID),
		zap.String("token", pos.Token),
		zap.String("reason", string(reason)))
	return false
}
