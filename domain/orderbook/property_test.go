package orderbook

import (
	"testing"

	"pgregory.net/rapid"
)

// checkBook asserts the structural invariants of b and that it holds
// exactly the resting quantities in model.
func checkBook(t *rapid.T, b *OrderBook, model map[OrderID]int64) {
	for _, s := range []*bookSide{b.bids, b.asks} {
		var prev int64
		first := true
		s.levels.Ascend(func(lvl *PriceLevel) bool {
			if !first && lvl.Price <= prev {
				t.Fatalf("%s prices not strictly increasing: %d after %d", s.side, lvl.Price, prev)
			}
			first, prev = false, lvl.Price
			if lvl.Empty() {
				t.Fatalf("%s level %d is empty but indexed", s.side, lvl.Price)
			}

			var total int64
			var lastSeq uint64
			lvl.Queue.Each(func(o *Order) bool {
				if o.Qty <= 0 {
					t.Fatalf("order %d rests with qty %d", o.ID, o.Qty)
				}
				if o.Seq <= lastSeq {
					t.Fatalf("level %d breaks arrival order: seq %d after %d", lvl.Price, o.Seq, lastSeq)
				}
				if o.Side != s.side || o.Price != lvl.Price {
					t.Fatalf("order %d is on the wrong level", o.ID)
				}
				loc, ok := b.index[o.ID]
				if !ok || loc.level != lvl || loc.level.Queue.At(loc.ref) != o {
					t.Fatalf("order %d has no matching index entry", o.ID)
				}
				want, ok := model[o.ID]
				if !ok || want != o.Qty {
					t.Fatalf("order %d rests with qty %d, model has %d (present=%v)", o.ID, o.Qty, want, ok)
				}
				lastSeq = o.Seq
				total += o.Qty
				return true
			})
			if total != lvl.TotalQty {
				t.Fatalf("level %d TotalQty %d, queue sums to %d", lvl.Price, lvl.TotalQty, total)
			}
			return true
		})
	}

	if len(b.index) != len(model) {
		t.Fatalf("index has %d orders, model has %d", len(b.index), len(model))
	}
	bid, hasBid := b.Best(Buy)
	ask, hasAsk := b.Best(Sell)
	if hasBid && hasAsk && bid.Price >= ask.Price {
		t.Fatalf("residual cross: bid %d >= ask %d", bid.Price, ask.Price)
	}
}

func TestPropertyBookInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewOrderBook()
		model := make(map[OrderID]int64)
		sides := make(map[OrderID]Side)
		next := OrderID(1)

		steps := rapid.IntRange(1, 150).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if len(model) > 0 && rapid.IntRange(0, 4).Draw(t, "op") == 0 {
				id := OrderID(rapid.IntRange(1, int(next)).Draw(t, "cancelID"))
				_, resting := model[id]
				err := b.Cancel(id)
				if resting {
					if err != nil {
						t.Fatalf("cancel %d: %v", id, err)
					}
					delete(model, id)
				} else if err == nil {
					t.Fatalf("cancel of unknown %d succeeded", id)
				}
				checkBook(t, b, model)
				continue
			}

			a := Add{
				ID:    next,
				Side:  rapid.SampledFrom([]Side{Buy, Sell}).Draw(t, "side"),
				Price: rapid.Int64Range(95, 105).Draw(t, "price"),
				Qty:   rapid.Int64Range(1, 20).Draw(t, "qty"),
			}
			next++

			matches, err := b.Add(a)
			if err != nil {
				t.Fatalf("add %+v: %v", a, err)
			}
			model[a.ID] = a.Qty
			sides[a.ID] = a.Side

			for _, m := range matches {
				bq, sq := model[m.BuyID], model[m.SellID]
				if sides[m.BuyID] != Buy || sides[m.SellID] != Sell {
					t.Fatalf("match legs on wrong sides: %+v", m)
				}
				if m.Qty <= 0 || m.Qty != min(bq, sq) {
					t.Fatalf("match %+v transfers %d, want min(%d, %d)", m, m.Qty, bq, sq)
				}
				model[m.BuyID] -= m.Qty
				model[m.SellID] -= m.Qty
				if model[m.BuyID] == 0 {
					delete(model, m.BuyID)
				}
				if model[m.SellID] == 0 {
					delete(model, m.SellID)
				}
			}
			checkBook(t, b, model)
		}
	})
}

func TestPropertyCancelIsolation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewOrderBook()
		n := rapid.IntRange(2, 40).Draw(t, "orders")
		for i := 1; i <= n; i++ {
			// bids below 100, asks above: nothing crosses
			side := rapid.SampledFrom([]Side{Buy, Sell}).Draw(t, "side")
			price := rapid.Int64Range(90, 99).Draw(t, "bidPrice")
			if side == Sell {
				price = rapid.Int64Range(101, 110).Draw(t, "askPrice")
			}
			if _, err := b.Add(Add{ID: OrderID(i), Side: side, Price: price, Qty: int64(i)}); err != nil {
				t.Fatalf("add: %v", err)
			}
		}

		snapshot := func() map[Side][]Order {
			out := make(map[Side][]Order)
			for _, s := range []Side{Buy, Sell} {
				b.Walk(s, func(o Order) bool {
					out[s] = append(out[s], o)
					return true
				})
			}
			return out
		}

		victim := OrderID(rapid.IntRange(1, n).Draw(t, "victim"))
		before := snapshot()
		if err := b.Cancel(victim); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		after := snapshot()

		for _, s := range []Side{Buy, Sell} {
			var want []Order
			for _, o := range before[s] {
				if o.ID != victim {
					want = append(want, o)
				}
			}
			if len(want) != len(after[s]) {
				t.Fatalf("%s: %d orders left, want %d", s, len(after[s]), len(want))
			}
			for i := range want {
				if want[i] != after[s][i] {
					t.Fatalf("%s[%d]: got %+v, want %+v", s, i, after[s][i], want[i])
				}
			}
		}
	})
}
