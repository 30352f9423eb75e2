// internal/session/signal.go
package session

import (
	"github.com/solpilot/solpilot/internal/market"
)

// buyBonus is the fixed tie-break added to long signals. The engine always
// opens a long exposure, so a BUY signal is worth slightly more than a SELL
// of equal strength.
const buyBonus = 0.05

// SelectSignal picks the best actionable entry signal: neutral signals and
// unsupported tokens are discarded, the rest are scored
// 0.5*urgency + 0.5*confidence plus the long bonus, and ties keep feed
// order. The signal selects which token to trade, not the direction.
func SelectSignal(signals []market.Signal, supported map[string]bool) (market.Signal, bool) {
	var (
		best      market.Signal
		bestScore float64
		found     bool
	)
	for _, sig := range signals {
		if sig.Direction == market.DirectionNeutral {
			continue
		}
		if !supported[sig.Token] {
			continue
		}
		score := 0.5*sig.Urgency + 0.5*sig.Confidence
		if sig.Direction == market.DirectionBuy {
			score += buyBonus
		}
		if !found || score > bestScore {
			best = sig
			bestScore = score
			found = true
		}
	}
	return best, found
}
