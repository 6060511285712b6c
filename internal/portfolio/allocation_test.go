package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-agent/internal/types"
)

func TestNewTargetAllocation(t *testing.T) {
	tests := map[string]struct {
		weights map[string]decimal.Decimal
		wantErr bool
		weth    string
	}{
		"fractions": {
			weights: map[string]decimal.Decimal{"WETH": d("0.5"), "WBTC": d("0.25"), "USDC": d("0.25")},
			weth:    "0.5",
		},
		"percentages": {
			weights: map[string]decimal.Decimal{"weth": d("50"), "wbtc": d("25"), "usdc": d("25")},
			weth:    "0.5",
		},
		"rounded-thirds": {
			weights: map[string]decimal.Decimal{"WETH": d("33.33"), "WBTC": d("33.33"), "USDC": d("33.34")},
			weth:    "0.3333",
		},
		"bad-sum": {
			weights: map[string]decimal.Decimal{"WETH": d("0.5"), "USDC": d("0.25")},
			wantErr: true,
		},
		"negative": {
			weights: map[string]decimal.Decimal{"WETH": d("1.5"), "USDC": d("-0.5")},
			wantErr: true,
		},
		"no-numeraire": {
			weights: map[string]decimal.Decimal{"WETH": d("0.5"), "WBTC": d("0.5")},
			wantErr: true,
		},
		"empty": {
			weights: map[string]decimal.Decimal{},
			wantErr: true,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ta, err := NewTargetAllocation("USDC", tt.weights)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidAllocation)
				return
			}
			require.NoError(t, err)
			assert.True(t, ta.Weight("WETH").Equal(d(tt.weth)), "weth weight %s", ta.Weight("WETH"))
			assert.Equal(t, "USDC", ta.Numeraire())
			assert.Equal(t, []string{"USDC", "WBTC", "WETH"}, ta.Assets())
		})
	}
}
