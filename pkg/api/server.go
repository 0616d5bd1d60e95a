// Package api exposes the pricing engines over REST and WebSocket. It
// is a thin wrapper: all market semantics live in pkg/engine.
package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"

	"github.com/danielgvb/betting-app/pkg/engine"
	"github.com/danielgvb/betting-app/pkg/engine/amm"
	"github.com/danielgvb/betting-app/pkg/engine/book"
	"github.com/danielgvb/betting-app/pkg/market"
)

// priceScale is the decimal precision for prices in CSV exports.
const priceScale = 4

// Server handles REST API and WebSocket connections.
type Server struct {
	registry *market.Registry
	engines  map[string]*engine.Engine // symbol -> engine
	router   *mux.Router
	hub      *Hub
}

// NewServer creates an API server over the given registry and engines.
func NewServer(registry *market.Registry, engines map[string]*engine.Engine) *Server {
	s := &Server{
		registry: registry,
		engines:  engines,
		router:   mux.NewRouter(),
		hub:      NewHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market views
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{symbol}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/markets/{symbol}/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/markets/{symbol}/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/markets/{symbol}/trades.csv", s.handleExportTrades).Methods("GET")

	// Submissions
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/trades", s.handlePlaceTrade).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the fully assembled HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the WebSocket hub and serves HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) engineFor(symbol string) (*engine.Engine, bool) {
	e, ok := s.engines[symbol]
	return e, ok
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.registry.List()

	response := make([]MarketInfo, len(markets))
	for i, m := range markets {
		response[i] = marketInfo(m)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	m, err := s.registry.Get(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	respondJSON(w, marketInfo(m))
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	e, ok := s.engineFor(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "market not found", "")
		return
	}

	snap, err := e.BookSnapshot(queryLimit(r))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, bookSnapshot(snap))
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	e, ok := s.engineFor(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "market not found", "")
		return
	}

	st, err := e.MarketState()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, MarketState{
		Symbol:   st.Market,
		QYes:     st.QYes,
		QNo:      st.QNo,
		PriceYes: st.PriceYes,
		PriceNo:  st.PriceNo,
		B:        st.B,
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	e, ok := s.engineFor(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "market not found", "")
		return
	}

	limit := queryLimit(r)
	if e.Market().Mechanism == market.AMM {
		quotes := e.RecentQuotes(limit)
		out := make([]QuoteInfo, len(quotes))
		for i, q := range quotes {
			out[i] = quoteInfo(q)
		}
		respondJSON(w, out)
		return
	}

	snap, err := e.BookSnapshot(limit)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	out := make([]TradeInfo, len(snap.Trades))
	for i, t := range snap.Trades {
		out[i] = tradeInfo(t)
	}
	respondJSON(w, out)
}

// handleExportTrades streams the full executed-trade history as CSV.
func (s *Server) handleExportTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	e, ok := s.engineFor(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "market not found", "")
		return
	}

	// Assemble all rows before touching the response: once the CSV
	// headers are written the error path is gone.
	var rows [][]string
	if e.Market().Mechanism == market.AMM {
		quotes, err := e.ExportQuotes(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "export failed", err.Error())
			return
		}
		rows = append(rows, []string{"id", "outcome", "quantity", "cost", "price_yes", "price_no", "trader", "timestamp"})
		for _, q := range quotes {
			rows = append(rows, []string{
				q.ID,
				q.Outcome.String(),
				decimal.NewFromFloat(q.Quantity).String(),
				q.Cost.String(),
				decimal.NewFromFloat(q.PriceYes).Round(priceScale).String(),
				decimal.NewFromFloat(q.PriceNo).Round(priceScale).String(),
				q.Trader,
				strconv.FormatInt(q.Timestamp, 10),
			})
		}
	} else {
		trades, err := e.ExportTrades(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "export failed", err.Error())
			return
		}
		rows = append(rows, []string{"id", "price", "qty", "buyer", "seller", "taker", "timestamp"})
		for _, t := range trades {
			rows = append(rows, []string{
				t.ID,
				strconv.FormatInt(t.Price, 10),
				strconv.FormatInt(t.Qty, 10),
				t.Buyer,
				t.Seller,
				t.Taker.String(),
				strconv.FormatInt(t.Timestamp, 10),
			})
		}
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", symbol+"-trades.csv"))
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		// Headers are already out; all that is left is to log.
		log.Printf("[api] csv export for %s failed mid-stream: %v", symbol, err)
	}
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	e, ok := s.engineFor(req.Symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "market not found", req.Symbol)
		return
	}

	side, err := book.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}

	res, err := e.SubmitOrder(r.Context(), side, req.Price, req.Qty, req.Submitter)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.broadcastBook(e)

	trades := make([]TradeInfo, len(res.Trades))
	for i, t := range res.Trades {
		trades[i] = tradeInfo(t)
	}
	respondJSON(w, SubmitOrderResponse{Filled: res.Filled, Resting: res.Resting, Trades: trades})
}

func (s *Server) handlePlaceTrade(w http.ResponseWriter, r *http.Request) {
	var req PlaceTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	e, ok := s.engineFor(req.Symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "market not found", req.Symbol)
		return
	}

	outcome, err := amm.ParseOutcome(req.Outcome)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid outcome", err.Error())
		return
	}

	q, err := e.PlaceTrade(r.Context(), outcome, req.Quantity, req.Trader)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.broadcastState(e)

	respondJSON(w, PlaceTradeResponse{
		Cost:     q.Cost.String(),
		PriceYes: q.PriceYes,
		PriceNo:  q.PriceNo,
		QuoteID:  q.ID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast helpers
// ==============================

func (s *Server) broadcastBook(e *engine.Engine) {
	snap, err := e.BookSnapshot(0)
	if err != nil {
		return
	}
	view := bookSnapshot(snap)
	s.hub.BroadcastToChannel("orderbook:"+snap.Market, BookUpdate{
		Type:      "orderbook",
		Symbol:    snap.Market,
		Bids:      view.Bids,
		Asks:      view.Asks,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) broadcastState(e *engine.Engine) {
	st, err := e.MarketState()
	if err != nil {
		return
	}
	s.hub.BroadcastToChannel("market:"+st.Market, StateUpdate{
		Type:      "market",
		Symbol:    st.Market,
		PriceYes:  st.PriceYes,
		PriceNo:   st.PriceNo,
		QYes:      st.QYes,
		QNo:       st.QNo,
		Timestamp: time.Now().UnixMilli(),
	})
}

// ==============================
// Helper Functions
// ==============================

func marketInfo(m *market.Market) MarketInfo {
	return MarketInfo{
		Symbol:     m.Symbol,
		Question:   m.Question,
		Mechanism:  m.Mechanism.String(),
		Status:     m.Status().String(),
		LiquidityB: m.LiquidityB,
	}
}

func tradeInfo(t engine.Trade) TradeInfo {
	return TradeInfo{
		ID:        t.ID,
		Symbol:    t.Market,
		Price:     t.Price,
		Qty:       t.Qty,
		Buyer:     t.Buyer,
		Seller:    t.Seller,
		Taker:     t.Taker.String(),
		Timestamp: t.Timestamp,
	}
}

func quoteInfo(q engine.Quote) QuoteInfo {
	return QuoteInfo{
		ID:        q.ID,
		Symbol:    q.Market,
		Outcome:   q.Outcome.String(),
		Quantity:  q.Quantity,
		Cost:      q.Cost.String(),
		PriceYes:  q.PriceYes,
		PriceNo:   q.PriceNo,
		Trader:    q.Trader,
		Timestamp: q.Timestamp,
	}
}

func bookSnapshot(snap engine.BookSnapshot) BookSnapshot {
	bids := make([]PriceLevel, len(snap.Bids))
	for i, l := range snap.Bids {
		bids[i] = PriceLevel{Price: l.Price, Qty: l.Qty}
	}
	asks := make([]PriceLevel, len(snap.Asks))
	for i, l := range snap.Asks {
		asks[i] = PriceLevel{Price: l.Price, Qty: l.Qty}
	}
	trades := make([]TradeInfo, len(snap.Trades))
	for i, t := range snap.Trades {
		trades[i] = tradeInfo(t)
	}
	return BookSnapshot{
		Symbol:    snap.Market,
		Bids:      bids,
		Asks:      asks,
		Trades:    trades,
		Timestamp: time.Now().UnixMilli(),
	}
}

func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errMsg,
		Message: message,
	})
}

// respondEngineError maps the engine's failure taxonomy onto HTTP
// status codes.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation failed", err.Error())
	case errors.Is(err, engine.ErrPersistence):
		respondError(w, http.StatusServiceUnavailable, "ledger unavailable", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
