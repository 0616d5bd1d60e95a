// Package ledger defines the append-only trade ledger the pricing
// engines commit to. The ledger is the only durable representation of
// market state: books and market makers are caches rebuilt by replaying
// it in insertion order.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Kind discriminates the payload of a Record.
type Kind int8

const (
	KindOrder Kind = iota + 1 // an accepted order-book submission
	KindTrade                 // one execution between two limit orders
	KindQuote                 // one execution against the LMSR market maker
)

// Record is one ledger entry. Exactly one payload field is set,
// according to Kind. Seq is assigned by the ledger on commit and is
// strictly monotonic across all records.
type Record struct {
	Seq   uint64       `json:"seq"`
	Kind  Kind         `json:"kind"`
	Order *OrderRecord `json:"order,omitempty"`
	Trade *TradeRecord `json:"trade,omitempty"`
	Quote *QuoteRecord `json:"quote,omitempty"`
}

// OrderRecord captures an incoming order-book submission with its
// original quantity. Replaying order records through the matching core
// reproduces the book (and every trade) deterministically.
type OrderRecord struct {
	Market    string `json:"market"`
	Side      string `json:"side"` // "buy" or "sell"
	Price     int64  `json:"price"`
	Qty       int64  `json:"qty"`
	Submitter string `json:"submitter"`
	PlacedAt  int64  `json:"placed_at"` // unix milliseconds
}

// TradeRecord is one execution between two limit orders, priced at the
// maker's limit.
type TradeRecord struct {
	ID        string `json:"id"`
	Market    string `json:"market"`
	Price     int64  `json:"price"`
	Qty       int64  `json:"qty"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Taker     string `json:"taker"` // side of the incoming order
	Timestamp int64  `json:"timestamp"`
}

// QuoteRecord is one execution against the market maker. Cost is money,
// so it is recorded as a decimal, never a float.
type QuoteRecord struct {
	ID        string          `json:"id"`
	Market    string          `json:"market"`
	Outcome   string          `json:"outcome"` // "yes" or "no"
	Quantity  float64         `json:"quantity"`
	Cost      decimal.Decimal `json:"cost"`
	PriceYes  float64         `json:"price_yes"` // marginal price after the trade
	PriceNo   float64         `json:"price_no"`
	Trader    string          `json:"trader"`
	Timestamp int64           `json:"timestamp"`
}

// Validate checks that a record carries exactly the payload its kind
// announces.
func (r Record) Validate() error {
	switch r.Kind {
	case KindOrder:
		if r.Order == nil || r.Trade != nil || r.Quote != nil {
			return fmt.Errorf("order record must carry exactly an order payload")
		}
	case KindTrade:
		if r.Trade == nil || r.Order != nil || r.Quote != nil {
			return fmt.Errorf("trade record must carry exactly a trade payload")
		}
	case KindQuote:
		if r.Quote == nil || r.Order != nil || r.Trade != nil {
			return fmt.Errorf("quote record must carry exactly a quote payload")
		}
	default:
		return fmt.Errorf("unknown record kind %d", r.Kind)
	}
	return nil
}

// Ledger is a durable, ordered, append-only record store.
//
// Commit persists all records or none; the engine treats a submission
// as uncommitted (and rolls the match back) when Commit fails. Replay
// streams every record in insertion order.
type Ledger interface {
	Commit(ctx context.Context, recs []Record) error
	Replay(ctx context.Context, fn func(Record) error) error
	Close() error
}

// MemoryLedger is an in-process Ledger for tests and ephemeral markets.
type MemoryLedger struct {
	mu   sync.Mutex
	recs []Record
}

func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

func (l *MemoryLedger) Commit(_ context.Context, recs []Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	seq := uint64(len(l.recs))
	for _, r := range recs {
		seq++
		r.Seq = seq
		l.recs = append(l.recs, r)
	}
	return nil
}

func (l *MemoryLedger) Replay(_ context.Context, fn func(Record) error) error {
	l.mu.Lock()
	snapshot := make([]Record, len(l.recs))
	copy(snapshot, l.recs)
	l.mu.Unlock()

	for _, r := range snapshot {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (l *MemoryLedger) Close() error { return nil }

// Len returns the number of committed records.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recs)
}

var _ Ledger = (*MemoryLedger)(nil)
