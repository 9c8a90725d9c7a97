package orderbook

import "fmt"

// Observer receives every match right after the book has applied it.
type Observer interface {
	OnMatch(Match)
}

type ObserverFunc func(Match)

func (f ObserverFunc) OnMatch(m Match) { f(m) }

type Option func(*OrderBook)

func WithObserver(o Observer) Option {
	return func(b *OrderBook) { b.observer = o }
}

// location is the order index entry of a resting order.
type location struct {
	side  Side
	level *PriceLevel
	ref   NodeRef
}

// DepthLevel is the aggregated view of one price level.
type DepthLevel struct {
	Price  int64
	Qty    int64
	Orders int
}

// OrderBook is single-writer and deterministic.
type OrderBook struct {
	bids *bookSide
	asks *bookSide

	index    map[OrderID]location
	arrival  uint64
	queueSeq uint32
	observer Observer

	// halted holds the first invariant violation; the book rejects all
	// mutation afterwards.
	halted *InvariantViolation
}

func NewOrderBook(opts ...Option) *OrderBook {
	b := &OrderBook{
		bids:  newBookSide(Buy),
		asks:  newBookSide(Sell),
		index: make(map[OrderID]location),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ---- commands ----

// Process dispatches one query.
func (b *OrderBook) Process(q Query) ([]Match, error) {
	switch q := q.(type) {
	case Add:
		return b.Add(q)
	case *Add:
		if q == nil {
			return nil, fmt.Errorf("%w: nil add", ErrInvalidQuery)
		}
		return b.Add(*q)
	case Cancel:
		return nil, b.Cancel(q.ID)
	case *Cancel:
		if q == nil {
			return nil, fmt.Errorf("%w: nil cancel", ErrInvalidQuery)
		}
		return nil, b.Cancel(q.ID)
	default:
		return nil, fmt.Errorf("%w: unsupported query %T", ErrInvalidQuery, q)
	}
}

// Add rests a new order and resolves any cross it creates. A rejected
// order leaves the book untouched.
func (b *OrderBook) Add(a Add) ([]Match, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	if _, ok := b.index[a.ID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateOrder, a.ID)
	}

	b.arrival++
	b.insert(Order{
		ID:    a.ID,
		Side:  a.Side,
		Price: a.Price,
		Qty:   a.Qty,
		Seq:   b.arrival,
	})
	return b.resolve()
}

// Cancel removes a resting order.
func (b *OrderBook) Cancel(id OrderID) error {
	if err := b.Err(); err != nil {
		return err
	}
	loc, ok := b.index[id]
	if !ok {
		return fmt.Errorf("cancel %d: %w", id, ErrOrderNotFound)
	}
	_, err := b.remove(id, loc, "cancel")
	return err
}

// Restore rests o exactly as given, keeping its arrival sequence. It is
// used to rebuild a book from a snapshot and never matches: an order that
// would cross the opposite side is rejected.
func (b *OrderBook) Restore(o Order) error {
	if err := b.Err(); err != nil {
		return err
	}
	add := Add{ID: o.ID, Side: o.Side, Price: o.Price, Qty: o.Qty}
	if err := add.validate(); err != nil {
		return err
	}
	if _, ok := b.index[o.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateOrder, o.ID)
	}
	if opp := b.sideOf(o.Side.Opposite()).best(); opp != nil && crosses(o.Side, o.Price, opp.Price) {
		return fmt.Errorf("%w: restored order %d at %d crosses %d", ErrInvalidQuery, o.ID, o.Price, opp.Price)
	}

	if o.Seq == 0 {
		o.Seq = b.arrival + 1
	}
	b.arrival = max(b.arrival, o.Seq)
	b.insert(o)
	return nil
}

// Halt stops the book on behalf of the caller, for example when the log
// the book is rebuilt from can no longer be trusted. Only the first halt
// is recorded.
func (b *OrderBook) Halt(op string, cause error) error {
	return b.halt(&InvariantViolation{Op: op, Reason: cause.Error(), Cause: cause})
}

// ---- queries ----

// Err returns ErrBookHalted wrapping the recorded violation, or nil.
func (b *OrderBook) Err() error {
	if b.halted == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrBookHalted, b.halted)
}

func (b *OrderBook) Len() int { return len(b.index) }

func (b *OrderBook) LevelCount(side Side) int { return b.sideOf(side).levels.Len() }

func (b *OrderBook) Order(id OrderID) (Order, bool) {
	loc, ok := b.index[id]
	if !ok {
		return Order{}, false
	}
	o := loc.level.Queue.At(loc.ref)
	if o == nil {
		return Order{}, false
	}
	return *o, true
}

// Best returns the best level of side.
func (b *OrderBook) Best(side Side) (DepthLevel, bool) {
	lvl := b.sideOf(side).best()
	if lvl == nil {
		return DepthLevel{}, false
	}
	return depthOf(lvl), true
}

// Depth aggregates up to limit levels of side, best first: descending
// prices for buy, ascending for sell. limit <= 0 returns every level.
func (b *OrderBook) Depth(side Side, limit int) []DepthLevel {
	s := b.sideOf(side)
	out := make([]DepthLevel, 0, s.levels.Len())
	s.walk(func(lvl *PriceLevel) bool {
		out = append(out, depthOf(lvl))
		return limit <= 0 || len(out) < limit
	})
	return out
}

// Walk visits resting orders of side best level first, arrival order
// within a level, until fn returns false.
func (b *OrderBook) Walk(side Side, fn func(Order) bool) {
	b.sideOf(side).walk(func(lvl *PriceLevel) bool {
		more := true
		lvl.Queue.Each(func(o *Order) bool {
			more = fn(*o)
			return more
		})
		return more
	})
}

// ---- internals ----

func (b *OrderBook) sideOf(s Side) *bookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) nextQueueID() uint32 {
	b.queueSeq++
	if b.queueSeq == 0 {
		b.queueSeq = 1
	}
	return b.queueSeq
}

func (b *OrderBook) insert(o Order) {
	lvl := b.sideOf(o.Side).levelFor(o.Price, b.nextQueueID)
	ref := lvl.append(o)
	b.index[o.ID] = location{side: o.Side, level: lvl, ref: ref}
}

// remove unlinks an indexed order, drops its index entry and deletes the
// level once it is empty.
func (b *OrderBook) remove(id OrderID, loc location, op string) (Order, error) {
	o, ok := loc.level.remove(loc.ref)
	if !ok || o.ID != id {
		return Order{}, b.halt(violation(op, "order %d is not linked at its indexed slot %d", id, loc.ref))
	}
	delete(b.index, id)
	b.sideOf(loc.side).deleteIfEmpty(loc.level)
	return o, nil
}

func (b *OrderBook) removeFront(lvl *PriceLevel, op string) error {
	ref, ok := lvl.Queue.frontRef()
	if !ok {
		return b.halt(violation(op, "price level %d is empty", lvl.Price))
	}
	id := lvl.Queue.At(ref).ID
	loc, ok := b.index[id]
	if !ok || loc.level != lvl || loc.ref != ref {
		return b.halt(violation(op, "order %d at the front of level %d is not indexed", id, lvl.Price))
	}
	_, err := b.remove(id, loc, op)
	return err
}

// resolve matches the front orders of the best levels until the book no
// longer crosses.
func (b *OrderBook) resolve() ([]Match, error) {
	var matches []Match
	for {
		bid, ask := b.bids.best(), b.asks.best()
		if bid == nil || ask == nil || bid.Price < ask.Price {
			return matches, nil
		}

		buy, sell := bid.Queue.Front(), ask.Queue.Front()
		if buy == nil || sell == nil {
			return matches, b.halt(violation("resolve", "empty price level left in the index (bid %d, ask %d)", bid.Price, ask.Price))
		}
		if buy.Qty <= 0 || sell.Qty <= 0 {
			return matches, b.halt(violation("resolve", "non-positive resting quantity: buy %d qty %d, sell %d qty %d",
				buy.ID, buy.Qty, sell.ID, sell.Qty))
		}

		m := Match{
			BuyID:  buy.ID,
			SellID: sell.ID,
			Price:  sell.Price,
			Qty:    min(buy.Qty, sell.Qty),
		}
		if buy.Seq < sell.Seq {
			m.Price = buy.Price
		}

		var err error
		switch {
		case buy.Qty == sell.Qty:
			if err = b.removeFront(bid, "resolve"); err == nil {
				err = b.removeFront(ask, "resolve")
			}
		case sell.Qty > buy.Qty:
			ask.fill(sell, m.Qty)
			err = b.removeFront(bid, "resolve")
		case buy.Qty > sell.Qty:
			bid.fill(buy, m.Qty)
			err = b.removeFront(ask, "resolve")
		default:
			err = b.halt(violation("resolve", "unclassified match state: buy qty %d, sell qty %d", buy.Qty, sell.Qty))
		}
		if err != nil {
			return matches, err
		}

		matches = append(matches, m)
		if b.observer != nil {
			b.observer.OnMatch(m)
		}
	}
}

func (b *OrderBook) halt(v *InvariantViolation) error {
	if b.halted == nil {
		b.halted = v
	}
	return b.Err()
}

func crosses(side Side, price, opposite int64) bool {
	if side == Buy {
		return price >= opposite
	}
	return price <= opposite
}

func depthOf(lvl *PriceLevel) DepthLevel {
	return DepthLevel{Price: lvl.Price, Qty: lvl.TotalQty, Orders: lvl.OrderCount()}
}
