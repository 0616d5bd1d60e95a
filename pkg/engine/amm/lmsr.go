// Package amm implements a logarithmic market scoring rule (LMSR)
// market maker for a binary-outcome market. There is no order book:
// trades are priced continuously by the cost function
//
//	C(qYes, qNo) = b * ln(e^(qYes/b) + e^(qNo/b))
//
// and a buy of quantity dq on one outcome is charged the cost
// difference C(after) - C(before).
package amm

import (
	"fmt"
	"math"
)

// Outcome identifies one side of a binary market.
type Outcome int8

const (
	Yes Outcome = iota
	No
)

func (o Outcome) String() string {
	switch o {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// ParseOutcome maps a wire string to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "yes":
		return Yes, nil
	case "no":
		return No, nil
	default:
		return 0, fmt.Errorf("unknown outcome %q (want yes or no)", s)
	}
}

// MarketMaker holds the LMSR state for one market: the outstanding
// quantity purchased per outcome and the fixed liquidity parameter b.
// Quantities only grow; there is no sell or redeem path.
//
// Not goroutine safe. The owning engine serializes all access.
type MarketMaker struct {
	b    float64
	qYes float64
	qNo  float64
}

// New creates a market maker with liquidity parameter b > 0.
func New(b float64) (*MarketMaker, error) {
	if !(b > 0) || math.IsInf(b, 0) {
		return nil, fmt.Errorf("liquidity parameter b must be positive and finite, got %v", b)
	}
	return &MarketMaker{b: b}, nil
}

// logSumExp computes ln(e^x + e^y) without overflow: the max exponent is
// factored out first, so the argument of Exp is always <= 0. Evaluating
// the exponentials directly diverges once q/b leaves float64 range.
func logSumExp(x, y float64) float64 {
	if x < y {
		x, y = y, x
	}
	return x + math.Log1p(math.Exp(y-x))
}

func cost(qYes, qNo, b float64) float64 {
	return b * logSumExp(qYes/b, qNo/b)
}

// Cost returns the value of the cost function at the current state.
func (m *MarketMaker) Cost() float64 {
	return cost(m.qYes, m.qNo, m.b)
}

// Price returns the instantaneous marginal price of an outcome, always
// in (0, 1). Uses the sigmoid form 1 / (1 + e^((q_other-q_o)/b)), which
// is the softmax with the shared exponent cancelled.
func (m *MarketMaker) Price(o Outcome) float64 {
	var d float64
	if o == Yes {
		d = (m.qNo - m.qYes) / m.b
	} else {
		d = (m.qYes - m.qNo) / m.b
	}
	return 1 / (1 + math.Exp(d))
}

// QuoteCost returns the cost of buying qty of the given outcome at the
// current state without committing anything.
func (m *MarketMaker) QuoteCost(o Outcome, qty float64) float64 {
	ny, nn := m.after(o, qty)
	return cost(ny, nn, m.b) - m.Cost()
}

// PricesAfter returns the marginal prices that would hold after buying
// qty of the given outcome.
func (m *MarketMaker) PricesAfter(o Outcome, qty float64) (priceYes, priceNo float64) {
	ny, nn := m.after(o, qty)
	priceYes = 1 / (1 + math.Exp((nn-ny)/m.b))
	return priceYes, 1 - priceYes
}

func (m *MarketMaker) after(o Outcome, qty float64) (qYes, qNo float64) {
	qYes, qNo = m.qYes, m.qNo
	if o == Yes {
		qYes += qty
	} else {
		qNo += qty
	}
	return qYes, qNo
}

// Apply commits a buy of qty on the given outcome. The caller is
// expected to have persisted the trade first.
func (m *MarketMaker) Apply(o Outcome, qty float64) {
	m.qYes, m.qNo = m.after(o, qty)
}

// State returns the current quantities and prices.
func (m *MarketMaker) State() (qYes, qNo, priceYes, priceNo float64) {
	priceYes = m.Price(Yes)
	return m.qYes, m.qNo, priceYes, 1 - priceYes
}

// B returns the fixed liquidity parameter.
func (m *MarketMaker) B() float64 { return m.b }

// Reset zeroes the outstanding quantities. Used before replaying the
// ledger.
func (m *MarketMaker) Reset() {
	m.qYes, m.qNo = 0, 0
}
