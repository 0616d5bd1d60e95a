package book

import (
	"container/heap"
	"fmt"
	"sort"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide maps a wire string to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q (want buy or sell)", s)
	}
}

// Order is a resting limit order. Orders are mutated only through the
// book that owns them; Remaining never leaves [0, Qty].
type Order struct {
	ID        uint64
	Side      Side
	Price     int64 // probability in cents, 0..100
	Qty       int64 // original quantity
	Remaining int64
	Seq       uint64 // submission sequence, fixes time priority
	Submitter string
	PlacedAt  int64 // unix milliseconds
}

// Fill is one planned execution against a resting maker order.
// Execution happens at the maker's price.
type Fill struct {
	MakerOrderID uint64
	Maker        string
	Price        int64
	Qty          int64
}

// PriceLevel aggregates remaining quantity across all active orders at
// one price.
type PriceLevel struct {
	Price int64
	Qty   int64
}

// Book is a price-time priority limit order book for a single market.
//
// The priority queues hold only (price, seq, id) triples; the mutable
// order records live in an id-keyed arena. An entry whose order is gone
// or has zero remaining is a tombstone and is discarded the next time it
// surfaces as the best entry.
//
// The Book itself is not goroutine safe. The owning engine serializes
// all access.
type Book struct {
	bids   *bidQueue
	asks   *askQueue
	orders map[uint64]*Order // arena: id -> live order
	nextID uint64
}

// New creates an empty book.
func New() *Book {
	bids := &bidQueue{}
	asks := &askQueue{}
	heap.Init(bids)
	heap.Init(asks)
	return &Book{
		bids:   bids,
		asks:   asks,
		orders: make(map[uint64]*Order),
	}
}

// Reset empties the book. Used before replaying the ledger.
func (b *Book) Reset() {
	*b.bids = (*b.bids)[:0]
	*b.asks = (*b.asks)[:0]
	b.orders = make(map[uint64]*Order)
	b.nextID = 0
}

func min(a, c int64) int64 {
	if a < c {
		return a
	}
	return c
}

// Plan walks the opposite side of the book and computes the fills an
// incoming order would generate, consuming makers in strict price-time
// order. No order quantity is touched: the matched heap entries are
// popped into the plan, and the caller must finish with exactly one of
// Apply (after the fills are durably committed) or Restore (commit
// failed, put everything back).
type Plan struct {
	Side      Side
	Price     int64
	Qty       int64
	Submitter string
	Fills     []Fill
	Remaining int64 // unfilled residue after all planned fills
	popped    []entry
}

func (b *Book) Plan(side Side, price, qty int64, submitter string) (*Plan, error) {
	p := &Plan{Side: side, Price: price, Qty: qty, Submitter: submitter, Remaining: qty}

	for p.Remaining > 0 {
		var best entry
		var ok bool
		if side == Buy {
			best, ok = b.asks.Peek()
		} else {
			best, ok = b.bids.Peek()
		}
		if !ok {
			break
		}

		// Tombstone check: a structurally present entry whose order is
		// gone or fully consumed must be discarded before the crossing
		// test, never matched.
		maker, live := b.orders[best.id]
		if !live || maker.Remaining <= 0 {
			b.pop(side)
			continue
		}

		if side == Buy && best.price > price {
			break
		}
		if side == Sell && best.price < price {
			break
		}

		// Trade executes at the maker's price, which the loop condition
		// guarantees lies within both limits.
		if err := checkCrossing(side, price, best.price); err != nil {
			b.restorePopped(p)
			return nil, err
		}

		match := min(p.Remaining, maker.Remaining)
		if match <= 0 || match > maker.Remaining {
			b.restorePopped(p)
			return nil, fmt.Errorf("match qty %d out of range for order %d (remaining %d)", match, maker.ID, maker.Remaining)
		}

		b.pop(side)
		p.popped = append(p.popped, best)
		p.Fills = append(p.Fills, Fill{
			MakerOrderID: maker.ID,
			Maker:        maker.Submitter,
			Price:        best.price,
			Qty:          match,
		})
		p.Remaining -= match
	}

	return p, nil
}

// Restore puts the popped maker entries back. Called when the ledger
// commit for the planned submission failed; no order quantity changed,
// so re-pushing the entries restores the exact pre-plan book.
func (b *Book) Restore(p *Plan) {
	b.restorePopped(p)
}

// Apply commits a plan to the book: maker quantities are decremented,
// fully consumed makers are evicted from the arena, partially consumed
// ones are pushed back, and any residue rests as a new order with the
// given submission sequence.
//
// Returns the resting order, or nil if the submission fully filled.
func (b *Book) Apply(p *Plan, seq uint64, now int64) (*Order, error) {
	for i, e := range p.popped {
		maker := b.orders[e.id]
		if maker == nil {
			return nil, fmt.Errorf("planned maker %d vanished before apply", e.id)
		}
		maker.Remaining -= p.Fills[i].Qty
		if maker.Remaining < 0 || maker.Remaining > maker.Qty {
			return nil, fmt.Errorf("order %d remaining %d outside [0, %d]", maker.ID, maker.Remaining, maker.Qty)
		}
		if maker.Remaining == 0 {
			delete(b.orders, e.id)
		} else {
			b.push(maker.Side, e)
		}
	}
	p.popped = nil

	if p.Remaining == 0 {
		return nil, nil
	}

	b.nextID++
	o := &Order{
		ID:        b.nextID,
		Side:      p.Side,
		Price:     p.Price,
		Qty:       p.Qty,
		Remaining: p.Remaining,
		Seq:       seq,
		Submitter: p.Submitter,
		PlacedAt:  now,
	}
	b.orders[o.ID] = o
	b.push(o.Side, entry{price: o.Price, seq: o.Seq, id: o.ID})
	return o, nil
}

func (b *Book) pop(taker Side) {
	if taker == Buy {
		heap.Pop(b.asks)
	} else {
		heap.Pop(b.bids)
	}
}

func (b *Book) push(maker Side, e entry) {
	if maker == Buy {
		heap.Push(b.bids, e)
	} else {
		heap.Push(b.asks, e)
	}
}

func (b *Book) restorePopped(p *Plan) {
	maker := Sell
	if p.Side == Sell {
		maker = Buy
	}
	for _, e := range p.popped {
		b.push(maker, e)
	}
	p.popped = nil
	p.Fills = nil
	p.Remaining = p.Qty
}

func checkCrossing(taker Side, takerPrice, execPrice int64) error {
	if taker == Buy && execPrice > takerPrice {
		return fmt.Errorf("execution price %d above buy limit %d", execPrice, takerPrice)
	}
	if taker == Sell && execPrice < takerPrice {
		return fmt.Errorf("execution price %d below sell limit %d", execPrice, takerPrice)
	}
	return nil
}

// BidLevels returns active bid levels sorted high to low (best bid
// first). Zero-remaining orders never contribute.
func (b *Book) BidLevels() []PriceLevel {
	return b.levels(Buy, func(i, j PriceLevel) bool { return i.Price > j.Price })
}

// AskLevels returns active ask levels sorted low to high (best ask
// first).
func (b *Book) AskLevels() []PriceLevel {
	return b.levels(Sell, func(i, j PriceLevel) bool { return i.Price < j.Price })
}

func (b *Book) levels(side Side, less func(i, j PriceLevel) bool) []PriceLevel {
	agg := make(map[int64]int64)
	for _, o := range b.orders {
		if o.Side != side || o.Remaining <= 0 {
			continue
		}
		agg[o.Price] += o.Remaining
	}

	levels := make([]PriceLevel, 0, len(agg))
	for price, qty := range agg {
		levels = append(levels, PriceLevel{Price: price, Qty: qty})
	}
	sort.Slice(levels, func(i, j int) bool { return less(levels[i], levels[j]) })
	return levels
}

// OpenOrders returns the number of live resting orders.
func (b *Book) OpenOrders() int { return len(b.orders) }
