package sizing

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimalPlaces(v float64) int32 {
	exp := decimal.NewFromFloat(v).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

func TestCalculate_CryptoBelowOneTimesLeverage(t *testing.T) {
	res, err := Calculate(Request{
		Symbol:           "BTC/USDT",
		EntryPrice:       100,
		StopPrice:        95,
		AvailableBalance: 10000,
		MaxLeverage:      5,
		RiskPercent:      2,
	})
	require.NoError(t, err)

	assert.InDelta(t, 200.0, res.RiskAmount, 1e-9)
	assert.InDelta(t, 40.0, res.Quantity, 1e-9)
	assert.Equal(t, 1.0, res.Leverage)
	assert.InDelta(t, 4000.0, res.CapitalAllocated, 1e-9)
	assert.False(t, res.Capped)
}

func TestCalculate_LeverageCapOverridesRisk(t *testing.T) {
	res, err := Calculate(Request{
		Symbol:           "AAPL",
		EntryPrice:       100,
		StopPrice:        99,
		AvailableBalance: 1000,
		MaxLeverage:      3,
		RiskPercent:      10,
	})
	require.NoError(t, err)

	assert.InDelta(t, 100.0, res.RiskAmount, 1e-9)
	assert.Equal(t, 30.0, res.Quantity)
	assert.Equal(t, 3.0, res.Leverage)
	assert.InDelta(t, 3000.0, res.CapitalAllocated, 1e-9)
	assert.True(t, res.Capped)
}

func TestCalculate_RoundingClasses(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		want      float64
		maxPlaces int32
	}{
		{
			name: "crypto keeps eight decimals",
			req: Request{
				Symbol: "BTC/USDT", EntryPrice: 43210.5, StopPrice: 42000,
				AvailableBalance: 5000, MaxLeverage: 5, RiskPercent: 1.5,
			},
			want:      0.06195787,
			maxPlaces: 8,
		},
		{
			name: "fractional equity keeps two decimals",
			req: Request{
				Symbol: "AAPL", EntryPrice: 100, StopPrice: 55,
				AvailableBalance: 1000, MaxLeverage: 5, RiskPercent: 2,
			},
			want:      0.44,
			maxPlaces: 2,
		},
		{
			name: "whole equity rounds to units",
			req: Request{
				Symbol: "AAPL", EntryPrice: 100, StopPrice: 90,
				AvailableBalance: 12700, MaxLeverage: 5, RiskPercent: 1,
			},
			want:      13,
			maxPlaces: 0,
		},
		{
			name: "lowercase pair is crypto",
			req: Request{
				Symbol: "sol/usdc", EntryPrice: 150, StopPrice: 140,
				AvailableBalance: 1000, MaxLeverage: 10, RiskPercent: 1,
			},
			want:      1,
			maxPlaces: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Calculate(tt.req)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.Quantity, 1e-12)
			assert.LessOrEqual(t, decimalPlaces(res.Quantity), tt.maxPlaces)
		})
	}
}

func TestCalculate_InvalidInput(t *testing.T) {
	base := Request{
		Symbol: "ETH/USDT", EntryPrice: 2000, StopPrice: 1900,
		AvailableBalance: 1000, MaxLeverage: 5, RiskPercent: 2,
	}

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"zero entry", func(r *Request) { r.EntryPrice = 0 }},
		{"negative stop", func(r *Request) { r.StopPrice = -1 }},
		{"zero balance", func(r *Request) { r.AvailableBalance = 0 }},
		{"entry equals stop", func(r *Request) { r.StopPrice = r.EntryPrice }},
		{"leverage below one", func(r *Request) { r.MaxLeverage = 0.5 }},
		{"risk above hundred", func(r *Request) { r.RiskPercent = 150 }},
		{"no risk and no default", func(r *Request) { r.RiskPercent = 0; r.DefaultRiskPercent = 0 }},
		{"NaN entry", func(r *Request) { r.EntryPrice = math.NaN() }},
		{"infinite entry", func(r *Request) { r.EntryPrice = math.Inf(1) }},
		{"NaN stop", func(r *Request) { r.StopPrice = math.NaN() }},
		{"infinite stop", func(r *Request) { r.StopPrice = math.Inf(1) }},
		{"NaN balance", func(r *Request) { r.AvailableBalance = math.NaN() }},
		{"infinite balance", func(r *Request) { r.AvailableBalance = math.Inf(1) }},
		{"NaN leverage", func(r *Request) { r.MaxLeverage = math.NaN() }},
		{"infinite leverage", func(r *Request) { r.MaxLeverage = math.Inf(1) }},
		{"NaN risk", func(r *Request) { r.RiskPercent = math.NaN() }},
		{"negative infinite risk", func(r *Request) { r.RiskPercent = math.Inf(-1) }},
		{"NaN default risk", func(r *Request) { r.RiskPercent = 0; r.DefaultRiskPercent = math.NaN() }},
		{"overflowing size", func(r *Request) {
			r.AvailableBalance = math.MaxFloat64
			r.MaxLeverage = 10
			r.StopPrice = math.Nextafter(r.EntryPrice, 0)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			res, err := Calculate(req)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, Result{}, res)
		})
	}
}

func TestCalculate_ZeroRiskFallsBackToDefault(t *testing.T) {
	req := Request{
		Symbol: "ETH/USDT", EntryPrice: 2000, StopPrice: 1900,
		AvailableBalance: 10000, MaxLeverage: 5, RiskPercent: 0, DefaultRiskPercent: 2,
	}
	res, err := Calculate(req)
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.RiskPercentUsed)
	assert.InDelta(t, 2.0, res.Quantity, 1e-12)
}

func TestCalculate_MinimumQuantity(t *testing.T) {
	req := Request{
		Symbol: "AAPL", EntryPrice: 100, StopPrice: 55,
		AvailableBalance: 1000, MaxLeverage: 5, RiskPercent: 2, MinQuantity: 1,
	}
	_, err := Calculate(req)
	assert.ErrorIs(t, err, ErrBelowMinimumSize)

	req.MinQuantity = 0.1
	res, err := Calculate(req)
	require.NoError(t, err)
	assert.Equal(t, 0.44, res.Quantity)
}

func TestCalculate_Invariants(t *testing.T) {
	symbols := []string{"BTC/USDT", "AAPL", "TSLA", "ETHUSDT"}
	entries := []float64{0.35, 12.5, 101.25, 64000}
	stopRatios := []float64{0.5, 0.9, 0.99, 1.03}
	risks := []float64{0, 0.5, 2, 25, 100}
	leverages := []float64{1, 2.5, 10}

	for _, symbol := range symbols {
		for _, entry := range entries {
			for _, ratio := range stopRatios {
				for _, risk := range risks {
					for _, maxLev := range leverages {
						req := Request{
							Symbol: symbol, EntryPrice: entry, StopPrice: entry * ratio,
							AvailableBalance: 2500, MaxLeverage: maxLev,
							RiskPercent: risk, DefaultRiskPercent: 2,
						}
						res, err := Calculate(req)
						require.NoError(t, err)

						assert.GreaterOrEqual(t, res.Leverage, 1.0)
						assert.LessOrEqual(t, res.Leverage, maxLev)
						assert.GreaterOrEqual(t, res.Quantity, 0.0)
						assert.InDelta(t, res.Quantity*entry, res.CapitalAllocated, 1e-9)

						again, err := Calculate(req)
						require.NoError(t, err)
						assert.Equal(t, res, again)
					}
				}
			}
		}
	}
}

func TestRoundQuantity_TiesUseBinaryValue(t *testing.T) {
	assert.Equal(t, 0.01, RoundQuantity(0.015, "AAPL"))
	assert.Equal(t, 0.03, RoundQuantity(0.025, "AAPL"))
	assert.Equal(t, 0.12, RoundQuantity(0.125, "AAPL"))
	assert.Equal(t, 2.0, RoundQuantity(2.5, "AAPL"))
	assert.Equal(t, 4.0, RoundQuantity(3.5, "AAPL"))
	assert.True(t, math.IsNaN(RoundQuantity(math.NaN(), "BTC")))
}

func TestIsCrypto(t *testing.T) {
	assert.True(t, IsCrypto("btcusdt"))
	assert.True(t, IsCrypto("EUR/USD"))
	assert.True(t, IsCrypto("XRP"))
	assert.False(t, IsCrypto("AAPL"))
	assert.False(t, IsCrypto(""))
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "0.06195787", FormatQuantity(0.06195787, "BTC/USDT"))
	assert.Equal(t, "40", FormatQuantity(40, "BTC/USDT"))
	assert.Equal(t, "0.44", FormatQuantity(0.44, "AAPL"))
	assert.Equal(t, "13", FormatQuantity(13, "AAPL"))
}
