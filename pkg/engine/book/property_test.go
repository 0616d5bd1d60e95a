package book

import (
	"testing"

	"pgregory.net/rapid"
)

type submission struct {
	side  Side
	price int64
	qty   int64
}

func drawSubmissions(t *rapid.T) []submission {
	n := rapid.IntRange(1, 60).Draw(t, "n")
	subs := make([]submission, n)
	for i := range subs {
		side := Buy
		if rapid.Bool().Draw(t, "sell") {
			side = Sell
		}
		subs[i] = submission{
			side:  side,
			price: rapid.Int64Range(0, 100).Draw(t, "price"),
			qty:   rapid.Int64Range(1, 50).Draw(t, "qty"),
		}
	}
	return subs
}

func run(t *rapid.T, b *Book, subs []submission) []*Plan {
	plans := make([]*Plan, 0, len(subs))
	for i, s := range subs {
		plan, err := b.Plan(s.side, s.price, s.qty, "trader")
		if err != nil {
			t.Fatalf("plan %d: %v", i, err)
		}
		if _, err := b.Apply(plan, uint64(i+1), int64(i)); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		plans = append(plans, plan)
	}
	return plans
}

// Every fill must execute at the maker's price, inside both parties'
// limits, and quantity must be conserved between fills and the residue.
func TestPropFillsRespectLimits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New()
		subs := drawSubmissions(t)
		plans := run(t, b, subs)

		for i, p := range plans {
			var filled int64
			for _, f := range p.Fills {
				if f.Qty <= 0 {
					t.Fatalf("submission %d: non-positive fill %+v", i, f)
				}
				if p.Side == Buy && f.Price > p.Price {
					t.Fatalf("submission %d: paid %d above buy limit %d", i, f.Price, p.Price)
				}
				if p.Side == Sell && f.Price < p.Price {
					t.Fatalf("submission %d: received %d below sell limit %d", i, f.Price, p.Price)
				}
				filled += f.Qty
			}
			if filled+p.Remaining != p.Qty {
				t.Fatalf("submission %d: filled %d + remaining %d != qty %d", i, filled, p.Remaining, p.Qty)
			}
			if p.Remaining < 0 {
				t.Fatalf("submission %d: negative remaining %d", i, p.Remaining)
			}
		}
	})
}

// After any submission sequence the book is quiescent: the best bid is
// strictly below the best ask, since any overlap would have matched.
func TestPropBookNeverCrossed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New()
		run(t, b, drawSubmissions(t))

		bids, asks := b.BidLevels(), b.AskLevels()
		if len(bids) > 0 && len(asks) > 0 && bids[0].Price >= asks[0].Price {
			t.Fatalf("crossed book: best bid %d >= best ask %d", bids[0].Price, asks[0].Price)
		}
		for _, l := range append(bids, asks...) {
			if l.Qty <= 0 {
				t.Fatalf("level with non-positive quantity: %+v", l)
			}
		}
	})
}

// Matching is a pure function of the submission sequence: replaying it
// on a fresh book reproduces the same fills and the same levels.
func TestPropDeterministicReplay(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		subs := drawSubmissions(t)

		b1 := New()
		plans1 := run(t, b1, subs)
		b2 := New()
		plans2 := run(t, b2, subs)

		for i := range plans1 {
			f1, f2 := plans1[i].Fills, plans2[i].Fills
			if len(f1) != len(f2) {
				t.Fatalf("submission %d: %d fills vs %d", i, len(f1), len(f2))
			}
			for j := range f1 {
				if f1[j] != f2[j] {
					t.Fatalf("submission %d fill %d: %+v vs %+v", i, j, f1[j], f2[j])
				}
			}
		}

		bids1, bids2 := b1.BidLevels(), b2.BidLevels()
		asks1, asks2 := b1.AskLevels(), b2.AskLevels()
		if len(bids1) != len(bids2) || len(asks1) != len(asks2) {
			t.Fatalf("level shape diverged: %v/%v vs %v/%v", bids1, asks1, bids2, asks2)
		}
		for i := range bids1 {
			if bids1[i] != bids2[i] {
				t.Fatalf("bid level %d diverged: %+v vs %+v", i, bids1[i], bids2[i])
			}
		}
		for i := range asks1 {
			if asks1[i] != asks2[i] {
				t.Fatalf("ask level %d diverged: %+v vs %+v", i, asks1[i], asks2[i])
			}
		}
	})
}
