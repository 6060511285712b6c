package ta

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-agent/internal/types"
)

func randomWalk(seed int64, n int) []float64 {
	r := rand.New(rand.NewSource(seed))
	prices := make([]float64, n)
	p := 1000.0
	for i := range prices {
		p += (r.Float64() - 0.5) * 40
		if p < 1 {
			p = 1
		}
		prices[i] = p
	}
	return prices
}

func TestComputeRSIRange(t *testing.T) {
	for seed := int64(1); seed <= 50; seed++ {
		prices := randomWalk(seed, 15+int(seed))
		rsi, err := ComputeRSI(prices, 14)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rsi, 0.0)
		assert.LessOrEqual(t, rsi, 100.0)
	}
}

func TestComputeRSIKnownValues(t *testing.T) {
	tests := map[string]struct {
		prices []float64
		period int
		want   float64
	}{
		"all-increasing": {
			prices: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
			period: 14,
			want:   100,
		},
		"flat-has-no-losses": {
			prices: []float64{5, 5, 5, 5},
			period: 3,
			want:   100,
		},
		"balanced-seed": {
			prices: []float64{1, 2, 1},
			period: 2,
			want:   50,
		},
		"wilder-smoothing": {
			prices: []float64{1, 2, 1, 2},
			period: 2,
			want:   75,
		},
		"all-decreasing": {
			prices: []float64{10, 9, 8, 7},
			period: 3,
			want:   0,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rsi, err := ComputeRSI(tt.prices, tt.period)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rsi)
		})
	}
}

func TestComputeRSIInsufficientData(t *testing.T) {
	_, err := ComputeRSI(make([]float64, 14), 14)
	assert.ErrorIs(t, err, types.ErrInsufficientData)

	_, err = ComputeRSI(make([]float64, 20), 0)
	assert.Error(t, err)
}

func TestComputeBollingerBandsOrdering(t *testing.T) {
	for seed := int64(1); seed <= 50; seed++ {
		prices := randomWalk(seed, 20+int(seed))
		b, err := ComputeBollingerBands(prices, 20, 2)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, b.Upper, b.Middle)
		assert.GreaterOrEqual(t, b.Middle, b.Lower)
	}
}

func TestComputeBollingerBandsConstant(t *testing.T) {
	prices := make([]float64, 25)
	for i := range prices {
		prices[i] = 0.1
	}
	b, err := ComputeBollingerBands(prices, 20, 2)
	require.NoError(t, err)
	assert.Equal(t, b.Upper, b.Middle)
	assert.Equal(t, b.Middle, b.Lower)
	assert.Equal(t, 0.1, b.Middle)
}

func TestComputeBollingerBandsPopulationVariance(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = float64(i + 1)
	}
	// mean 10.5, population sd sqrt(33.25) = 5.7663
	b, err := ComputeBollingerBands(prices, 20, 2)
	require.NoError(t, err)
	assert.Equal(t, types.Bands{Upper: 22.03, Middle: 10.5, Lower: -1.03}, b)
}

func TestComputeBollingerBandsUsesLastWindow(t *testing.T) {
	prices := append([]float64{1e6, 1e6, 1e6}, make([]float64, 20)...)
	for i := 3; i < len(prices); i++ {
		prices[i] = 50
	}
	b, err := ComputeBollingerBands(prices, 20, 2)
	require.NoError(t, err)
	assert.Equal(t, 50.0, b.Middle)
}

func TestComputeBollingerBandsInsufficientData(t *testing.T) {
	_, err := ComputeBollingerBands(make([]float64, 19), 20, 2)
	assert.ErrorIs(t, err, types.ErrInsufficientData)
}

func TestMiddleBandRoundTrip(t *testing.T) {
	prices := randomWalk(7, 60)
	b, err := ComputeBollingerBands(prices, 20, 2)
	require.NoError(t, err)
	assert.InDelta(t, b.Middle, Mean(prices[len(prices)-20:]), 0.01)
}

func TestCompute(t *testing.T) {
	prices := randomWalk(3, 40)

	res, err := Compute(prices, Config{RSIPeriod: 14, BBPeriod: 20, BBStdDev: 2})
	require.NoError(t, err)
	require.NotNil(t, res.RSI)
	require.NotNil(t, res.Bands)

	res, err = Compute(prices, Config{RSIPeriod: 14})
	require.NoError(t, err)
	assert.NotNil(t, res.RSI)
	assert.Nil(t, res.Bands)

	_, err = Compute(prices[:18], Config{RSIPeriod: 14, BBPeriod: 20, BBStdDev: 2})
	assert.ErrorIs(t, err, types.ErrInsufficientData)
}
