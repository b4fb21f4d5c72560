// Package sizing converts a trade idea (entry, stop) and an account's risk
// tolerance into an order size that respects the account's leverage ceiling.
package sizing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput is returned for non-finite or non-positive prices and
	// balance, a zero stop distance, and out of range risk or leverage.
	ErrInvalidInput = errors.New("invalid position sizing input")
	// ErrBelowMinimumSize is returned when the rounded quantity is smaller
	// than the caller supplied minimum lot size.
	ErrBelowMinimumSize = errors.New("position size below minimum order quantity")
)

// cryptoMarkers select 8-decimal rounding when found in an upper-cased symbol.
var cryptoMarkers = []string{"BTC", "ETH", "USDT", "USDC", "BNB", "SOL", "ADA", "XRP", "/"}

const (
	cryptoDecimals     = 8
	fractionalDecimals = 2
)

type Request struct {
	Symbol           string
	EntryPrice       float64
	StopPrice        float64
	AvailableBalance float64
	MaxLeverage      float64
	// RiskPercent is the share of the balance put at risk, in (0,100].
	// Zero or negative means "not provided" and DefaultRiskPercent is used.
	RiskPercent        float64
	DefaultRiskPercent float64
	// MinQuantity is an optional minimum lot size. Zero disables the check.
	MinQuantity float64
}

type Result struct {
	Quantity         float64 `json:"quantity"`
	Leverage         float64 `json:"leverage"`
	CapitalAllocated float64 `json:"capital_allocated"`
	RiskAmount       float64 `json:"risk_amount"`
	RiskPercentUsed  float64 `json:"risk_percent_used"`
	// Capped reports whether the leverage ceiling overrode the risk derived size.
	Capped bool `json:"capped"`
}

// Calculate sizes a position from the stop distance. The leverage ceiling
// always wins over the risk derived size.
func Calculate(req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	riskPercent := req.RiskPercent
	if riskPercent <= 0 {
		riskPercent = req.DefaultRiskPercent
	}
	if riskPercent <= 0 || riskPercent > 100 {
		return Result{}, fmt.Errorf("%w: risk percent %.4g outside (0,100]", ErrInvalidInput, riskPercent)
	}

	riskAmount := req.AvailableBalance * (riskPercent / 100)
	distance := math.Abs(req.EntryPrice - req.StopPrice)
	quantity := riskAmount / distance
	notional := quantity * req.EntryPrice

	leverage := math.Max(1.0, notional/req.AvailableBalance)
	capped := false
	if leverage > req.MaxLeverage {
		notional = req.AvailableBalance * req.MaxLeverage
		quantity = notional / req.EntryPrice
		leverage = req.MaxLeverage
		capped = true
	}

	if !finite(quantity, notional) {
		return Result{}, fmt.Errorf("%w: position size out of range", ErrInvalidInput)
	}

	quantity = RoundQuantity(quantity, req.Symbol)
	if req.MinQuantity > 0 && quantity < req.MinQuantity {
		return Result{}, fmt.Errorf("%w: %s quantity %v < %v", ErrBelowMinimumSize, req.Symbol, quantity, req.MinQuantity)
	}

	return Result{
		Quantity:         quantity,
		Leverage:         leverage,
		CapitalAllocated: quantity * req.EntryPrice,
		RiskAmount:       riskAmount,
		RiskPercentUsed:  riskPercent,
		Capped:           capped,
	}, nil
}

func validate(req Request) error {
	if !finite(req.EntryPrice, req.StopPrice, req.AvailableBalance, req.MaxLeverage,
		req.RiskPercent, req.DefaultRiskPercent, req.MinQuantity) {
		return fmt.Errorf("%w: inputs must be finite numbers", ErrInvalidInput)
	}
	switch {
	case req.EntryPrice <= 0:
		return fmt.Errorf("%w: entry price must be positive, got %v", ErrInvalidInput, req.EntryPrice)
	case req.StopPrice <= 0:
		return fmt.Errorf("%w: stop price must be positive, got %v", ErrInvalidInput, req.StopPrice)
	case req.AvailableBalance <= 0:
		return fmt.Errorf("%w: available balance must be positive, got %v", ErrInvalidInput, req.AvailableBalance)
	case req.EntryPrice == req.StopPrice:
		return fmt.Errorf("%w: entry and stop price are both %v", ErrInvalidInput, req.EntryPrice)
	case req.MaxLeverage < 1:
		return fmt.Errorf("%w: max leverage must be at least 1, got %v", ErrInvalidInput, req.MaxLeverage)
	case req.RiskPercent > 100:
		return fmt.Errorf("%w: risk percent %v exceeds 100", ErrInvalidInput, req.RiskPercent)
	case req.MinQuantity < 0:
		return fmt.Errorf("%w: minimum quantity must not be negative", ErrInvalidInput)
	}
	return nil
}

// IsCrypto reports whether symbol is treated as a crypto asset.
func IsCrypto(symbol string) bool {
	upper := strings.ToUpper(symbol)
	for _, marker := range cryptoMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// RoundQuantity applies the asset class rounding rule: 8 decimals for crypto,
// 2 decimals for fractional equity sizes and whole units otherwise. Ties are
// resolved half to even on the exact binary value, so 0.015 (stored as
// 0.01499...) rounds down. Non-finite values are returned unchanged.
func RoundQuantity(quantity float64, symbol string) float64 {
	if !finite(quantity) {
		return quantity
	}
	places := int32(0)
	switch {
	case IsCrypto(symbol):
		places = cryptoDecimals
	case quantity < 1.0:
		places = fractionalDecimals
	}
	return exactDecimal(quantity).RoundBank(places).InexactFloat64()
}

// exactDecimal expands every binary digit of f; 1074 fractional digits cover
// the smallest subnormal.
func exactDecimal(f float64) decimal.Decimal {
	return decimal.RequireFromString(strconv.FormatFloat(f, 'f', 1074, 64))
}

// FormatQuantity prints an already rounded quantity without float noise.
func FormatQuantity(quantity float64, symbol string) string {
	if !finite(quantity) {
		return strconv.FormatFloat(quantity, 'f', -1, 64)
	}
	d := decimal.NewFromFloat(quantity)
	if IsCrypto(symbol) {
		return d.Round(cryptoDecimals).String()
	}
	return d.Round(fractionalDecimals).String()
}
