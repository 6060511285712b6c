package engine

import (
	"trading-agent/internal/types"
)

// stopManager derives the exit levels of an alert plan.
type stopManager struct {
	pct float64 // stop distance from entry, percent
}

func newStopManager(pct float64) *stopManager {
	return &stopManager{pct: pct}
}

// levels returns the target and stop for entering action at entry.
// BUY targets the upper band and stops below entry, SELL the mirror image.
// Without bands the target sits at twice the stop distance.
func (sm *stopManager) levels(action types.Action, entry float64, bands *types.Bands) (target, stop float64) {
	dist := entry * sm.pct / 100
	switch action {
	case types.Buy:
		target = entry + 2*dist
		if bands != nil && bands.Upper > entry {
			target = bands.Upper
		}
		stop = entry - dist
	case types.Sell:
		target = entry - 2*dist
		if bands != nil && bands.Lower < entry {
			target = bands.Lower
		}
		stop = entry + dist
	default:
		target = entry
		if bands != nil {
			target = bands.Middle
		}
	}
	return round2(target), round2(stop)
}
