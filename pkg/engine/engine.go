// Package engine hosts the pricing engine for one market: a limit order
// book or an LMSR market maker behind a single serialized front. Every
// mutation is committed to the ledger before it is applied in memory, so
// the in-memory state is always a replayable cache of the ledger.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/danielgvb/betting-app/pkg/engine/amm"
	"github.com/danielgvb/betting-app/pkg/engine/book"
	"github.com/danielgvb/betting-app/pkg/ledger"
	"github.com/danielgvb/betting-app/pkg/market"
	"github.com/danielgvb/betting-app/pkg/util"
)

// costScale is the decimal precision at which AMM costs are settled.
const costScale = 6

// maxRecentTrades bounds the in-memory trade history ring. Full history
// always remains available through the ledger.
const maxRecentTrades = 100

// defaultSnapshotTrades is how many recent trades a snapshot carries
// when the caller does not ask for a specific count.
const defaultSnapshotTrades = 10

// Feed receives executed trades after they are durably committed.
// Publishing is best effort and never affects the submission outcome.
type Feed interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Engine is the single matching/pricing authority for one market.
//
// All submissions and reads are serialized by one mutex: matching reads
// then mutates shared priority and quantity state, so an unserialized
// race would break time priority or double-charge the cost function,
// and an unserialized read could observe a torn mid-match state.
type Engine struct {
	Clock util.Clock
	Feed  Feed // optional

	mu  sync.Mutex
	mkt *market.Market
	bk  *book.Book        // set for Book markets
	mm  *amm.MarketMaker  // set for AMM markets
	led ledger.Ledger
	log *zap.SugaredLogger

	seq          uint64 // submission sequence, resumed after replay
	recentTrades []Trade
	recentQuotes []Quote
}

// New constructs the engine for a market. The ledger must already be
// open; call Reload before accepting traffic to rebuild state from it.
func New(mkt *market.Market, led ledger.Ledger, logger *zap.SugaredLogger) (*Engine, error) {
	if err := mkt.Validate(); err != nil {
		return nil, err
	}
	if led == nil {
		return nil, fmt.Errorf("engine requires a ledger")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	e := &Engine{
		Clock: util.RealClock{},
		mkt:   mkt,
		led:   led,
		log:   logger,
	}
	switch mkt.Mechanism {
	case market.Book:
		e.bk = book.New()
	case market.AMM:
		mm, err := amm.New(mkt.LiquidityB)
		if err != nil {
			return nil, err
		}
		e.mm = mm
	}
	return e, nil
}

// Market returns the market this engine prices.
func (e *Engine) Market() *market.Market { return e.mkt }

// SubmitOrder matches an incoming limit order against the book,
// committing the submission (order plus every trade it generated) to
// the ledger in one batch before any in-memory state changes. If the
// commit fails the match is fully unwound and ErrPersistence returned.
func (e *Engine) SubmitOrder(ctx context.Context, side Side, price, qty int64, submitter string) (SubmitResult, error) {
	if submitter == "" {
		return SubmitResult{}, fmt.Errorf("%w: submitter identity required", ErrValidation)
	}
	if side != Buy && side != Sell {
		return SubmitResult{}, fmt.Errorf("%w: unknown side %d", ErrValidation, side)
	}
	if err := e.mkt.ValidateOrder(price, qty); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	plan, err := e.bk.Plan(side, price, qty, submitter)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := e.Clock.Now().UnixMilli()
	trades := make([]Trade, 0, len(plan.Fills))
	recs := make([]ledger.Record, 0, len(plan.Fills)+1)
	recs = append(recs, ledger.Record{
		Kind: ledger.KindOrder,
		Order: &ledger.OrderRecord{
			Market:    e.mkt.Symbol,
			Side:      side.String(),
			Price:     price,
			Qty:       qty,
			Submitter: submitter,
			PlacedAt:  now,
		},
	})
	for _, f := range plan.Fills {
		t := Trade{
			ID:        uuid.NewString(),
			Market:    e.mkt.Symbol,
			Price:     f.Price,
			Qty:       f.Qty,
			Taker:     side,
			Timestamp: now,
		}
		if side == Buy {
			t.Buyer, t.Seller = submitter, f.Maker
		} else {
			t.Buyer, t.Seller = f.Maker, submitter
		}
		trades = append(trades, t)
		recs = append(recs, ledger.Record{
			Kind: ledger.KindTrade,
			Trade: &ledger.TradeRecord{
				ID:        t.ID,
				Market:    t.Market,
				Price:     t.Price,
				Qty:       t.Qty,
				Buyer:     t.Buyer,
				Seller:    t.Seller,
				Taker:     t.Taker.String(),
				Timestamp: t.Timestamp,
			},
		})
	}

	if err := e.led.Commit(ctx, recs); err != nil {
		e.bk.Restore(plan)
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	e.seq++
	if _, err := e.bk.Apply(plan, e.seq, now); err != nil {
		// Ledger and memory have diverged; nothing sane to return.
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e.rememberTrades(trades)
	e.publish(ctx, trades, nil)

	res := SubmitResult{Filled: qty - plan.Remaining, Resting: plan.Remaining, Trades: trades}
	e.log.Infow("order_submitted",
		"market", e.mkt.Symbol,
		"side", side.String(),
		"price", price,
		"qty", qty,
		"filled", res.Filled,
		"resting", res.Resting,
		"trades", len(trades),
	)
	return res, nil
}

// PlaceTrade buys qty of an outcome from the market maker. The charged
// cost is the cost-function difference, committed to the ledger before
// the quantities move.
func (e *Engine) PlaceTrade(ctx context.Context, outcome Outcome, qty float64, trader string) (Quote, error) {
	if trader == "" {
		return Quote{}, fmt.Errorf("%w: trader identity required", ErrValidation)
	}
	if outcome != Yes && outcome != No {
		return Quote{}, fmt.Errorf("%w: unknown outcome %d", ErrValidation, outcome)
	}
	if err := e.mkt.ValidateQuote(qty); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// The cost must be a positive finite number: quantities near the
	// float64 ceiling can push the cost function past it, and a decimal
	// cannot be built from Inf.
	costF := e.mm.QuoteCost(outcome, qty)
	if !(costF > 0) || math.IsInf(costF, 0) {
		return Quote{}, fmt.Errorf("%w: unrepresentable cost %v for qty %v", ErrInternal, costF, qty)
	}
	priceYes, priceNo := e.mm.PricesAfter(outcome, qty)

	q := Quote{
		ID:        uuid.NewString(),
		Market:    e.mkt.Symbol,
		Outcome:   outcome,
		Quantity:  qty,
		Cost:      decimal.NewFromFloat(costF).Round(costScale),
		PriceYes:  priceYes,
		PriceNo:   priceNo,
		Trader:    trader,
		Timestamp: e.Clock.Now().UnixMilli(),
	}

	rec := ledger.Record{
		Kind: ledger.KindQuote,
		Quote: &ledger.QuoteRecord{
			ID:        q.ID,
			Market:    q.Market,
			Outcome:   outcome.String(),
			Quantity:  qty,
			Cost:      q.Cost,
			PriceYes:  priceYes,
			PriceNo:   priceNo,
			Trader:    trader,
			Timestamp: q.Timestamp,
		},
	}
	if err := e.led.Commit(ctx, []ledger.Record{rec}); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	e.mm.Apply(outcome, qty)
	e.rememberQuotes([]Quote{q})
	e.publish(ctx, nil, []Quote{q})

	e.log.Infow("amm_trade",
		"market", e.mkt.Symbol,
		"outcome", outcome.String(),
		"qty", qty,
		"cost", q.Cost.String(),
		"price_yes", priceYes,
	)
	return q, nil
}

// Reload rebuilds in-memory state from the ledger. It must run before
// the engine accepts traffic and may run again at any quiet point; the
// result depends only on ledger contents.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.bk != nil {
		e.bk.Reset()
	}
	if e.mm != nil {
		e.mm.Reset()
	}
	e.seq = 0
	e.recentTrades = nil
	e.recentQuotes = nil

	err := e.led.Replay(ctx, func(rec ledger.Record) error {
		switch rec.Kind {
		case ledger.KindOrder:
			if e.bk == nil || rec.Order.Market != e.mkt.Symbol {
				return nil
			}
			side, err := book.ParseSide(rec.Order.Side)
			if err != nil {
				return err
			}
			// Matching is deterministic, so re-running each submission
			// reproduces the exact resting book. The trades it would
			// emit are discarded: the persisted trade records are the
			// authoritative history.
			plan, err := e.bk.Plan(side, rec.Order.Price, rec.Order.Qty, rec.Order.Submitter)
			if err != nil {
				return err
			}
			e.seq++
			_, err = e.bk.Apply(plan, e.seq, rec.Order.PlacedAt)
			return err

		case ledger.KindTrade:
			if e.bk == nil || rec.Trade.Market != e.mkt.Symbol {
				return nil
			}
			taker, err := book.ParseSide(rec.Trade.Taker)
			if err != nil {
				return err
			}
			e.rememberTrades([]Trade{{
				ID:        rec.Trade.ID,
				Market:    rec.Trade.Market,
				Price:     rec.Trade.Price,
				Qty:       rec.Trade.Qty,
				Buyer:     rec.Trade.Buyer,
				Seller:    rec.Trade.Seller,
				Taker:     taker,
				Timestamp: rec.Trade.Timestamp,
			}})
			return nil

		case ledger.KindQuote:
			if e.mm == nil || rec.Quote.Market != e.mkt.Symbol {
				return nil
			}
			outcome, err := amm.ParseOutcome(rec.Quote.Outcome)
			if err != nil {
				return err
			}
			e.mm.Apply(outcome, rec.Quote.Quantity)
			e.rememberQuotes([]Quote{{
				ID:        rec.Quote.ID,
				Market:    rec.Quote.Market,
				Outcome:   outcome,
				Quantity:  rec.Quote.Quantity,
				Cost:      rec.Quote.Cost,
				PriceYes:  rec.Quote.PriceYes,
				PriceNo:   rec.Quote.PriceNo,
				Trader:    rec.Quote.Trader,
				Timestamp: rec.Quote.Timestamp,
			}})
			return nil

		default:
			return fmt.Errorf("unknown ledger record kind %d", rec.Kind)
		}
	})
	if err != nil {
		return fmt.Errorf("replay %s: %w", e.mkt.Symbol, err)
	}

	e.log.Infow("state_reloaded",
		"market", e.mkt.Symbol,
		"mechanism", e.mkt.Mechanism.String(),
		"last_seq", e.seq,
	)
	return nil
}

// BookSnapshot returns price levels and the last n trades (10 when
// n <= 0). Only meaningful for order-book markets.
func (e *Engine) BookSnapshot(n int) (BookSnapshot, error) {
	if n <= 0 {
		n = defaultSnapshotTrades
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.bk == nil {
		return BookSnapshot{}, fmt.Errorf("%w: market %s is not order-book priced", ErrValidation, e.mkt.Symbol)
	}

	trades := e.recentTrades
	if len(trades) > n {
		trades = trades[len(trades)-n:]
	}
	out := make([]Trade, len(trades))
	copy(out, trades)

	return BookSnapshot{
		Market: e.mkt.Symbol,
		Bids:   e.bk.BidLevels(),
		Asks:   e.bk.AskLevels(),
		Trades: out,
	}, nil
}

// MarketState returns the AMM quantities and prices.
func (e *Engine) MarketState() (MarketState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mm == nil {
		return MarketState{}, fmt.Errorf("%w: market %s is not AMM priced", ErrValidation, e.mkt.Symbol)
	}
	qYes, qNo, priceYes, priceNo := e.mm.State()
	return MarketState{
		Market:   e.mkt.Symbol,
		QYes:     qYes,
		QNo:      qNo,
		PriceYes: priceYes,
		PriceNo:  priceNo,
		B:        e.mm.B(),
	}, nil
}

// RecentQuotes returns the last n AMM executions, oldest first.
func (e *Engine) RecentQuotes(n int) []Quote {
	if n <= 0 {
		n = defaultSnapshotTrades
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	quotes := e.recentQuotes
	if len(quotes) > n {
		quotes = quotes[len(quotes)-n:]
	}
	out := make([]Quote, len(quotes))
	copy(out, quotes)
	return out
}

// ExportTrades streams the full executed-trade history for this market
// from the ledger, in insertion order.
func (e *Engine) ExportTrades(ctx context.Context) ([]Trade, error) {
	var out []Trade
	err := e.led.Replay(ctx, func(rec ledger.Record) error {
		if rec.Kind != ledger.KindTrade || rec.Trade.Market != e.mkt.Symbol {
			return nil
		}
		taker, err := book.ParseSide(rec.Trade.Taker)
		if err != nil {
			return err
		}
		out = append(out, Trade{
			ID:        rec.Trade.ID,
			Market:    rec.Trade.Market,
			Price:     rec.Trade.Price,
			Qty:       rec.Trade.Qty,
			Buyer:     rec.Trade.Buyer,
			Seller:    rec.Trade.Seller,
			Taker:     taker,
			Timestamp: rec.Trade.Timestamp,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", e.mkt.Symbol, err)
	}
	return out, nil
}

// ExportQuotes streams the full AMM execution history for this market
// from the ledger, in insertion order.
func (e *Engine) ExportQuotes(ctx context.Context) ([]Quote, error) {
	var out []Quote
	err := e.led.Replay(ctx, func(rec ledger.Record) error {
		if rec.Kind != ledger.KindQuote || rec.Quote.Market != e.mkt.Symbol {
			return nil
		}
		outcome, err := amm.ParseOutcome(rec.Quote.Outcome)
		if err != nil {
			return err
		}
		out = append(out, Quote{
			ID:        rec.Quote.ID,
			Market:    rec.Quote.Market,
			Outcome:   outcome,
			Quantity:  rec.Quote.Quantity,
			Cost:      rec.Quote.Cost,
			PriceYes:  rec.Quote.PriceYes,
			PriceNo:   rec.Quote.PriceNo,
			Trader:    rec.Quote.Trader,
			Timestamp: rec.Quote.Timestamp,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", e.mkt.Symbol, err)
	}
	return out, nil
}

func (e *Engine) rememberTrades(trades []Trade) {
	e.recentTrades = append(e.recentTrades, trades...)
	if n := len(e.recentTrades); n > maxRecentTrades {
		e.recentTrades = append(e.recentTrades[:0:0], e.recentTrades[n-maxRecentTrades:]...)
	}
}

func (e *Engine) rememberQuotes(quotes []Quote) {
	e.recentQuotes = append(e.recentQuotes, quotes...)
	if n := len(e.recentQuotes); n > maxRecentTrades {
		e.recentQuotes = append(e.recentQuotes[:0:0], e.recentQuotes[n-maxRecentTrades:]...)
	}
}

// publish pushes executions to the optional feed. Failures are logged
// and swallowed: the trade is already durable in the ledger.
func (e *Engine) publish(ctx context.Context, trades []Trade, quotes []Quote) {
	if e.Feed == nil {
		return
	}
	for _, t := range trades {
		payload, err := json.Marshal(t)
		if err != nil {
			e.log.Warnw("feed_marshal_failed", "market", e.mkt.Symbol, "err", err)
			continue
		}
		if err := e.Feed.Publish(ctx, e.mkt.Symbol, payload); err != nil {
			e.log.Warnw("feed_publish_failed", "market", e.mkt.Symbol, "trade", t.ID, "err", err)
		}
	}
	for _, q := range quotes {
		payload, err := json.Marshal(q)
		if err != nil {
			e.log.Warnw("feed_marshal_failed", "market", e.mkt.Symbol, "err", err)
			continue
		}
		if err := e.Feed.Publish(ctx, e.mkt.Symbol, payload); err != nil {
			e.log.Warnw("feed_publish_failed", "market", e.mkt.Symbol, "quote", q.ID, "err", err)
		}
	}
}
