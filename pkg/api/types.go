package api

// Request/response shapes for REST endpoints and WebSocket messages.

// ==============================
// REST Response Types
// ==============================

// MarketInfo represents a market's static configuration.
type MarketInfo struct {
	Symbol     string  `json:"symbol"`
	Question   string  `json:"question"`
	Mechanism  string  `json:"mechanism"` // "book" or "amm"
	Status     string  `json:"status"`    // "Active", "Paused"
	LiquidityB float64 `json:"liquidityB,omitempty"`
}

// PriceLevel represents one aggregated price level.
type PriceLevel struct {
	Price int64 `json:"price"` // probability in cents, 0..100
	Qty   int64 `json:"qty"`
}

// BookSnapshot represents current order-book state.
type BookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"` // sorted high to low
	Asks      []PriceLevel `json:"asks"` // sorted low to high
	Trades    []TradeInfo  `json:"trades"`
	Timestamp int64        `json:"timestamp"` // unix milliseconds
}

// TradeInfo represents one executed order-book trade.
type TradeInfo struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Price     int64  `json:"price"`
	Qty       int64  `json:"qty"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Taker     string `json:"taker"` // "buy" or "sell"
	Timestamp int64  `json:"timestamp"`
}

// MarketState represents current AMM state.
type MarketState struct {
	Symbol   string  `json:"symbol"`
	QYes     float64 `json:"qYes"`
	QNo      float64 `json:"qNo"`
	PriceYes float64 `json:"priceYes"`
	PriceNo  float64 `json:"priceNo"`
	B        float64 `json:"b"`
}

// QuoteInfo represents one executed AMM trade.
type QuoteInfo struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Outcome   string  `json:"outcome"` // "yes" or "no"
	Quantity  float64 `json:"quantity"`
	Cost      string  `json:"cost"` // decimal string
	PriceYes  float64 `json:"priceYes"`
	PriceNo   float64 `json:"priceNo"`
	Trader    string  `json:"trader"`
	Timestamp int64   `json:"timestamp"`
}

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest is the payload for POST /api/v1/orders.
type SubmitOrderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`  // "buy" or "sell"
	Price     int64  `json:"price"` // probability in cents, 0..100
	Qty       int64  `json:"qty"`
	Submitter string `json:"submitter"`
}

// SubmitOrderResponse is the response from order submission.
type SubmitOrderResponse struct {
	Filled  int64       `json:"filled"`
	Resting int64       `json:"resting"`
	Trades  []TradeInfo `json:"trades"`
}

// PlaceTradeRequest is the payload for POST /api/v1/trades.
type PlaceTradeRequest struct {
	Symbol   string  `json:"symbol"`
	Outcome  string  `json:"outcome"` // "yes" or "no"
	Quantity float64 `json:"quantity"`
	Trader   string  `json:"trader"`
}

// PlaceTradeResponse is the response from an AMM trade.
type PlaceTradeResponse struct {
	Cost     string  `json:"cost"` // decimal string
	PriceYes float64 `json:"priceYes"`
	PriceNo  float64 `json:"priceNo"`
	QuoteID  string  `json:"quoteId"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to manage channel
// subscriptions, e.g. {"op":"subscribe","channels":["orderbook:RAIN-SAT"]}.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// BookUpdate is broadcast on channel "orderbook:<symbol>" after every
// committed submission.
type BookUpdate struct {
	Type      string       `json:"type"` // "orderbook"
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// StateUpdate is broadcast on channel "market:<symbol>" after every
// committed AMM trade.
type StateUpdate struct {
	Type      string  `json:"type"` // "market"
	Symbol    string  `json:"symbol"`
	PriceYes  float64 `json:"priceYes"`
	PriceNo   float64 `json:"priceNo"`
	QYes      float64 `json:"qYes"`
	QNo       float64 `json:"qNo"`
	Timestamp int64   `json:"timestamp"`
}
