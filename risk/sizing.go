package risk

import (
	"github.com/shopspring/decimal"
)

// KellySizer computes contract quantities from a fractional Kelly
// Criterion, scaled down by a fixed kelly fraction and the strategy's
// stated confidence in its edge estimate.
type KellySizer struct {
	kellyFraction  decimal.Decimal // e.g. 0.25 for quarter-Kelly
	maxPositionPct decimal.Decimal // upper clamp on f, regardless of edge
	minEdge        decimal.Decimal // minimum |p - P| worth acting on
}

// NewKellySizer creates a sizer with the given fraction, clamp, and edge floor.
func NewKellySizer(kellyFraction, maxPositionPct, minEdge decimal.Decimal) *KellySizer {
	return &KellySizer{
		kellyFraction:  kellyFraction,
		maxPositionPct: maxPositionPct,
		minEdge:        minEdge,
	}
}

// KellyResult is the outcome of sizing one signal. Ok is false when no
// trade is justified: insufficient edge, non-positive full-Kelly
// fraction, or a resulting notional/contract count of zero.
type KellyResult struct {
	Ok        bool
	Contracts int
	Fraction  decimal.Decimal // adjusted f actually applied
	Notional  decimal.Decimal
}

// Size computes the Kelly-sized contract count for buying an outcome
// priced at P (market price, in (0,1)) when the caller's estimated true
// probability is p, with confidence c in [0,1], against the given bankroll.
func (s *KellySizer) Size(bankroll, marketPrice, trueProbability, confidence decimal.Decimal) KellyResult {
	p := trueProbability
	P := marketPrice

	if p.Sub(P).Abs().LessThan(s.minEdge) {
		return KellyResult{}
	}
	if P.LessThanOrEqual(decimal.Zero) {
		return KellyResult{}
	}

	one := decimal.NewFromInt(1)
	b := one.Sub(P).Div(P)
	if b.LessThanOrEqual(decimal.Zero) {
		return KellyResult{}
	}

	q := one.Sub(p)
	kellyFull := p.Mul(b).Sub(q).Div(b)
	if kellyFull.LessThanOrEqual(decimal.Zero) {
		return KellyResult{}
	}

	adjusted := kellyFull.Mul(s.kellyFraction).Mul(confidence)
	if adjusted.LessThan(decimal.Zero) {
		adjusted = decimal.Zero
	}
	if adjusted.GreaterThan(s.maxPositionPct) {
		adjusted = s.maxPositionPct
	}

	notional := bankroll.Mul(adjusted)
	if notional.LessThanOrEqual(decimal.Zero) {
		return KellyResult{}
	}

	contracts := notional.Div(P).IntPart()
	if contracts <= 0 {
		return KellyResult{}
	}

	return KellyResult{
		Ok:        true,
		Contracts: int(contracts),
		Fraction:  adjusted,
		Notional:  notional,
	}
}
