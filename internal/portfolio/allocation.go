package portfolio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"trading-agent/internal/types"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)

	// weightSlack absorbs rounding in configured weights such as 33.33/33.33/33.34.
	weightSlack = decimal.RequireFromString("0.0001")
)

// TargetAllocation maps assets to weights that sum to 1. Build it with NewTargetAllocation.
type TargetAllocation struct {
	weights   map[string]decimal.Decimal
	numeraire string
}

// NewTargetAllocation accepts weights expressed as fractions (sum 1) or
// percentages (sum 100). Numeraire is the asset sells settle into and buys
// are paid from; it must be part of the allocation.
func NewTargetAllocation(numeraire string, weights map[string]decimal.Decimal) (TargetAllocation, error) {
	if len(weights) == 0 {
		return TargetAllocation{}, fmt.Errorf("empty allocation: %w", types.ErrInvalidAllocation)
	}
	sum := decimal.Zero
	norm := make(map[string]decimal.Decimal, len(weights))
	for asset, w := range weights {
		if w.IsNegative() {
			return TargetAllocation{}, fmt.Errorf("negative weight for %s: %w", asset, types.ErrInvalidAllocation)
		}
		key := strings.ToUpper(asset)
		if _, dup := norm[key]; dup {
			return TargetAllocation{}, fmt.Errorf("duplicate asset %s: %w", asset, types.ErrInvalidAllocation)
		}
		norm[key] = w
		sum = sum.Add(w)
	}
	switch {
	case sum.Sub(one).Abs().LessThanOrEqual(weightSlack):
	case sum.Sub(hundred).Abs().LessThanOrEqual(weightSlack.Mul(hundred)):
		for k, w := range norm {
			norm[k] = w.Div(hundred)
		}
	default:
		return TargetAllocation{}, fmt.Errorf("weights sum to %s, want 1 or 100: %w", sum, types.ErrInvalidAllocation)
	}
	key := strings.ToUpper(numeraire)
	if _, ok := norm[key]; !ok {
		return TargetAllocation{}, fmt.Errorf("numeraire %s not in allocation: %w", numeraire, types.ErrInvalidAllocation)
	}
	return TargetAllocation{weights: norm, numeraire: key}, nil
}

// Weight returns the target weight of asset, zero when it is not targeted.
func (t TargetAllocation) Weight(asset string) decimal.Decimal {
	return t.weights[strings.ToUpper(asset)]
}

func (t TargetAllocation) Numeraire() string {
	return t.numeraire
}

// Assets returns the targeted assets in sorted order.
func (t TargetAllocation) Assets() []string {
	out := make([]string, 0, len(t.weights))
	for k := range t.weights {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
