package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgvb/betting-app/pkg/engine"
	"github.com/danielgvb/betting-app/pkg/ledger"
	"github.com/danielgvb/betting-app/pkg/market"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	led := ledger.NewMemoryLedger()
	registry := market.NewRegistry()
	engines := make(map[string]*engine.Engine)

	bookMkt, err := market.NewBookMarket("RAIN-SAT", "Will it rain on Saturday?")
	if err != nil {
		t.Fatal(err)
	}
	ammMkt, err := market.NewAMMMarket("BTC-100K", "Will BTC close above 100k this year?", 100)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []*market.Market{bookMkt, ammMkt} {
		if err := registry.Register(m); err != nil {
			t.Fatal(err)
		}
		eng, err := engine.New(m, led, nil)
		if err != nil {
			t.Fatal(err)
		}
		engines[m.Symbol] = eng
	}
	return NewServer(registry, engines)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body, out interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if out != nil && rr.Code == http.StatusOK {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode response: %v (body %s)", method, path, err, rr.Body.String())
		}
	}
	return rr
}

func TestListAndGetMarkets(t *testing.T) {
	h := newTestServer(t).Handler()

	var markets []MarketInfo
	rr := doJSON(t, h, "GET", "/api/v1/markets", nil, &markets)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if len(markets) != 2 || markets[0].Symbol != "BTC-100K" || markets[1].Symbol != "RAIN-SAT" {
		t.Errorf("markets (sorted): %+v", markets)
	}
	if markets[0].Mechanism != "amm" || markets[0].LiquidityB != 100 {
		t.Errorf("amm market info: %+v", markets[0])
	}

	var one MarketInfo
	rr = doJSON(t, h, "GET", "/api/v1/markets/RAIN-SAT", nil, &one)
	if rr.Code != http.StatusOK || one.Mechanism != "book" || one.Status != "Active" {
		t.Errorf("status %d, market %+v", rr.Code, one)
	}

	rr = doJSON(t, h, "GET", "/api/v1/markets/NOPE", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown market: status %d", rr.Code)
	}
}

func TestSubmitOrderEndToEnd(t *testing.T) {
	h := newTestServer(t).Handler()

	var res SubmitOrderResponse
	rr := doJSON(t, h, "POST", "/api/v1/orders", SubmitOrderRequest{
		Symbol: "RAIN-SAT", Side: "buy", Price: 60, Qty: 10, Submitter: "alice",
	}, &res)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if res.Filled != 0 || res.Resting != 10 {
		t.Errorf("first order: %+v", res)
	}

	rr = doJSON(t, h, "POST", "/api/v1/orders", SubmitOrderRequest{
		Symbol: "RAIN-SAT", Side: "sell", Price: 55, Qty: 5, Submitter: "bob",
	}, &res)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if res.Filled != 5 || len(res.Trades) != 1 || res.Trades[0].Price != 60 {
		t.Errorf("crossing order: %+v", res)
	}
	if res.Trades[0].Buyer != "alice" || res.Trades[0].Seller != "bob" || res.Trades[0].Taker != "sell" {
		t.Errorf("trade parties: %+v", res.Trades[0])
	}

	var snap BookSnapshot
	rr = doJSON(t, h, "GET", "/api/v1/markets/RAIN-SAT/orderbook", nil, &snap)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 60 || snap.Bids[0].Qty != 5 {
		t.Errorf("orderbook bids: %+v", snap.Bids)
	}
	if len(snap.Trades) != 1 {
		t.Errorf("orderbook trades: %+v", snap.Trades)
	}
}

func TestSubmitOrderRejections(t *testing.T) {
	h := newTestServer(t).Handler()

	cases := []struct {
		name string
		req  SubmitOrderRequest
		code int
	}{
		{"unknown market", SubmitOrderRequest{Symbol: "NOPE", Side: "buy", Price: 60, Qty: 10, Submitter: "a"}, http.StatusNotFound},
		{"bad side", SubmitOrderRequest{Symbol: "RAIN-SAT", Side: "hold", Price: 60, Qty: 10, Submitter: "a"}, http.StatusBadRequest},
		{"price out of range", SubmitOrderRequest{Symbol: "RAIN-SAT", Side: "buy", Price: 101, Qty: 10, Submitter: "a"}, http.StatusBadRequest},
		{"zero qty", SubmitOrderRequest{Symbol: "RAIN-SAT", Side: "buy", Price: 60, Qty: 0, Submitter: "a"}, http.StatusBadRequest},
		{"missing submitter", SubmitOrderRequest{Symbol: "RAIN-SAT", Side: "buy", Price: 60, Qty: 10}, http.StatusBadRequest},
		{"order against amm market", SubmitOrderRequest{Symbol: "BTC-100K", Side: "buy", Price: 60, Qty: 10, Submitter: "a"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, h, "POST", "/api/v1/orders", tc.req, nil)
			if rr.Code != tc.code {
				t.Errorf("status %d, want %d (%s)", rr.Code, tc.code, rr.Body.String())
			}
			var e ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil || e.Error == "" {
				t.Errorf("error body malformed: %s", rr.Body.String())
			}
		})
	}

	rr := doJSON(t, h, "POST", "/api/v1/orders", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty body: status %d", rr.Code)
	}
}

func TestPlaceTradeEndToEnd(t *testing.T) {
	h := newTestServer(t).Handler()

	var res PlaceTradeResponse
	rr := doJSON(t, h, "POST", "/api/v1/trades", PlaceTradeRequest{
		Symbol: "BTC-100K", Outcome: "yes", Quantity: 10, Trader: "alice",
	}, &res)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	if res.QuoteID == "" || res.Cost == "" {
		t.Errorf("trade response incomplete: %+v", res)
	}
	if !strings.HasPrefix(res.Cost, "5.12") {
		t.Errorf("cost = %s, want ~5.1250", res.Cost)
	}

	var st MarketState
	rr = doJSON(t, h, "GET", "/api/v1/markets/BTC-100K/state", nil, &st)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if st.QYes != 10 || st.QNo != 0 || st.B != 100 {
		t.Errorf("state: %+v", st)
	}
	if st.PriceYes != res.PriceYes {
		t.Errorf("state price %v != trade response price %v", st.PriceYes, res.PriceYes)
	}

	var quotes []QuoteInfo
	rr = doJSON(t, h, "GET", "/api/v1/markets/BTC-100K/trades", nil, &quotes)
	if rr.Code != http.StatusOK || len(quotes) != 1 || quotes[0].ID != res.QuoteID {
		t.Errorf("status %d, quotes %+v", rr.Code, quotes)
	}

	rr = doJSON(t, h, "POST", "/api/v1/trades", PlaceTradeRequest{
		Symbol: "BTC-100K", Outcome: "maybe", Quantity: 10, Trader: "alice",
	}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad outcome: status %d", rr.Code)
	}
	rr = doJSON(t, h, "POST", "/api/v1/trades", PlaceTradeRequest{
		Symbol: "RAIN-SAT", Outcome: "yes", Quantity: 10, Trader: "alice",
	}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("amm trade on book market: status %d", rr.Code)
	}
}

func TestStateOnBookMarketRejected(t *testing.T) {
	h := newTestServer(t).Handler()

	rr := doJSON(t, h, "GET", "/api/v1/markets/RAIN-SAT/state", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rr.Code)
	}
	rr = doJSON(t, h, "GET", "/api/v1/markets/BTC-100K/orderbook", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rr.Code)
	}
}

func TestExportTradesCSV(t *testing.T) {
	h := newTestServer(t).Handler()

	doJSON(t, h, "POST", "/api/v1/orders", SubmitOrderRequest{
		Symbol: "RAIN-SAT", Side: "buy", Price: 60, Qty: 10, Submitter: "alice",
	}, nil)
	doJSON(t, h, "POST", "/api/v1/orders", SubmitOrderRequest{
		Symbol: "RAIN-SAT", Side: "sell", Price: 55, Qty: 5, Submitter: "bob",
	}, nil)

	req := httptest.NewRequest("GET", "/api/v1/markets/RAIN-SAT/trades.csv", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one trade, got %d lines:\n%s", len(lines), rr.Body.String())
	}
	if lines[0] != "id,price,qty,buyer,seller,taker,timestamp" {
		t.Errorf("header: %s", lines[0])
	}
	if !strings.Contains(lines[1], ",60,5,alice,bob,sell,") {
		t.Errorf("trade row: %s", lines[1])
	}
}

// replayFailLedger serves commits normally but fails every replay, like
// a store whose disk went away after startup.
type replayFailLedger struct {
	*ledger.MemoryLedger
}

func (l *replayFailLedger) Replay(context.Context, func(ledger.Record) error) error {
	return errors.New("simulated replay failure")
}

func TestExportTradesCSVFailureRespondsJSON(t *testing.T) {
	registry := market.NewRegistry()
	mkt, err := market.NewBookMarket("RAIN-SAT", "Will it rain on Saturday?")
	if err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(mkt); err != nil {
		t.Fatal(err)
	}
	eng, err := engine.New(mkt, &replayFailLedger{ledger.NewMemoryLedger()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	h := NewServer(registry, map[string]*engine.Engine{"RAIN-SAT": eng}).Handler()

	req := httptest.NewRequest("GET", "/api/v1/markets/RAIN-SAT/trades.csv", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type %q, want application/json", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != "" {
		t.Errorf("stale disposition header on error response: %q", cd)
	}
	var e ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil || e.Error == "" {
		t.Errorf("error body malformed: %s", rr.Body.String())
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t).Handler()

	var body map[string]string
	rr := doJSON(t, h, "GET", "/health", nil, &body)
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("status %d, body %v", rr.Code, body)
	}
}
