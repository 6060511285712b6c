package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trading-agent/internal/types"
)

func TestClassify(t *testing.T) {
	bands := types.Bands{Upper: 110, Middle: 100, Lower: 90}
	tests := []struct {
		name  string
		price float64
		rsi   float64
		want  types.Regime
	}{
		{"inside with neutral rsi", 100, 50, types.Ranging},
		{"inside at low bound", 95, 35, types.Ranging},
		{"inside at high bound", 105, 65, types.Ranging},
		{"touch upper", 110, 70, types.TrendingUp},
		{"above upper", 115, 60, types.TrendingUp},
		{"touch lower", 90, 30, types.TrendingDown},
		{"below lower", 80, 45, types.TrendingDown},
		{"pullback in uptrend", 103, 68, types.TrendingUp},
		{"weak below middle", 97, 30, types.TrendingDown},
		{"hot rsi below middle", 97, 70, types.Unknown},
		{"cold rsi above middle", 104, 20, types.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.price, bands, tt.rsi, DefaultBounds()))
		})
	}
}

func TestClassifyCustomBounds(t *testing.T) {
	bands := types.Bands{Upper: 110, Middle: 100, Lower: 90}
	assert.Equal(t, types.TrendingUp, Classify(103, bands, 62, Bounds{Low: 40, High: 60}))
	assert.Equal(t, types.Ranging, Classify(103, bands, 62, DefaultBounds()))
}

func TestClassifyCollapsedBands(t *testing.T) {
	flat := types.Bands{Upper: 100, Middle: 100, Lower: 100}
	assert.Equal(t, types.Unknown, Classify(100, flat, 100, DefaultBounds()))
}
