package market

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Mechanism selects the pricing core that backs a market.
type Mechanism int8

const (
	Book Mechanism = iota // continuous double auction (limit order book)
	AMM                   // automated market maker (LMSR)
)

func (m Mechanism) String() string {
	switch m {
	case Book:
		return "book"
	case AMM:
		return "amm"
	default:
		return "unknown"
	}
}

// ParseMechanism maps a config string to a Mechanism.
func ParseMechanism(s string) (Mechanism, error) {
	switch s {
	case "book":
		return Book, nil
	case "amm":
		return AMM, nil
	default:
		return 0, fmt.Errorf("unknown mechanism %q (want book or amm)", s)
	}
}

// MarketStatus defines the trading status of a market.
type MarketStatus int8

const (
	Active MarketStatus = iota // trading enabled
	Paused                     // trading halted
)

func (ms MarketStatus) String() string {
	switch ms {
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Prices are probabilities quoted in cents: 0..100 inclusive.
const MaxPrice = 100

// Market defines one binary-outcome prediction market. A market is priced
// either by an order book or by an LMSR market maker, never both.
type Market struct {
	Symbol   string // e.g. "RAIN-SAT"
	Question string // e.g. "Will it rain on Saturday?"

	Mechanism Mechanism

	// LiquidityB is the LMSR liquidity parameter. Fixed at creation,
	// only meaningful for AMM markets. Larger b means deeper liquidity.
	LiquidityB float64

	// status is read by the engines on every submission while the
	// registry may pause or resume the market concurrently.
	status atomic.Int32
}

// Status returns the current trading status.
func (m *Market) Status() MarketStatus {
	return MarketStatus(m.status.Load())
}

// SetStatus changes the trading status. Safe to call while engines are
// validating submissions.
func (m *Market) SetStatus(s MarketStatus) {
	m.status.Store(int32(s))
}

// NewBookMarket creates an order-book market, active immediately.
func NewBookMarket(symbol, question string) (*Market, error) {
	m := &Market{Symbol: symbol, Question: question, Mechanism: Book}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}
	return m, nil
}

// NewAMMMarket creates an LMSR market with liquidity parameter b,
// active immediately.
func NewAMMMarket(symbol, question string, b float64) (*Market, error) {
	m := &Market{Symbol: symbol, Question: question, Mechanism: AMM, LiquidityB: b}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}
	return m, nil
}

// Validate checks market parameter sanity.
func (m *Market) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if m.Mechanism != Book && m.Mechanism != AMM {
		return fmt.Errorf("mechanism must be book or amm")
	}
	if m.Mechanism == AMM && m.LiquidityB <= 0 {
		return fmt.Errorf("liquidity parameter b must be positive, got %v", m.LiquidityB)
	}
	return nil
}

// ValidateOrder checks an incoming limit order against market rules.
// Price is a probability in cents, so 0..100 inclusive.
func (m *Market) ValidateOrder(price, qty int64) error {
	if s := m.Status(); s != Active {
		return fmt.Errorf("market %s is not active (status: %s)", m.Symbol, s)
	}
	if m.Mechanism != Book {
		return fmt.Errorf("market %s is not order-book priced", m.Symbol)
	}
	if price < 0 || price > MaxPrice {
		return fmt.Errorf("price %d outside [0, %d]", price, MaxPrice)
	}
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", qty)
	}
	return nil
}

// ValidateQuote checks an incoming AMM trade against market rules.
func (m *Market) ValidateQuote(qty float64) error {
	if s := m.Status(); s != Active {
		return fmt.Errorf("market %s is not active (status: %s)", m.Symbol, s)
	}
	if m.Mechanism != AMM {
		return fmt.Errorf("market %s is not AMM priced", m.Symbol)
	}
	if !(qty > 0) { // rejects NaN as well
		return fmt.Errorf("quantity must be positive, got %v", qty)
	}
	if math.IsInf(qty, 0) {
		return fmt.Errorf("quantity must be finite, got %v", qty)
	}
	return nil
}
