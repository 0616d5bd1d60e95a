package engine

import (
	"github.com/shopspring/decimal"

	"github.com/danielgvb/betting-app/pkg/engine/amm"
	"github.com/danielgvb/betting-app/pkg/engine/book"
)

type Side = book.Side

const (
	Buy  = book.Buy
	Sell = book.Sell
)

type Outcome = amm.Outcome

const (
	Yes = amm.Yes
	No  = amm.No
)

// Trade is one execution between two limit orders.
type Trade struct {
	ID        string
	Market    string
	Price     int64 // maker's price, probability in cents
	Qty       int64
	Buyer     string
	Seller    string
	Taker     Side // side of the incoming order
	Timestamp int64
}

// Quote is one execution against the LMSR market maker.
type Quote struct {
	ID        string
	Market    string
	Outcome   Outcome
	Quantity  float64
	Cost      decimal.Decimal
	PriceYes  float64 // marginal price after the trade
	PriceNo   float64
	Trader    string
	Timestamp int64
}

// SubmitResult is the outcome of one order-book submission.
type SubmitResult struct {
	Filled  int64
	Resting int64 // unfilled residue now resting in the book, 0 if fully filled
	Trades  []Trade
}

// BookSnapshot is a read-only view of an order-book market.
type BookSnapshot struct {
	Market string
	Bids   []book.PriceLevel
	Asks   []book.PriceLevel
	Trades []Trade // most recent trades, oldest first
}

// MarketState is a read-only view of an AMM market.
type MarketState struct {
	Market   string
	QYes     float64
	QNo      float64
	PriceYes float64
	PriceNo  float64
	B        float64
}
