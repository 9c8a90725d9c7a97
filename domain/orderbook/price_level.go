package orderbook

import "fmt"

// PriceLevel is the FIFO queue of resting orders at a single price.
type PriceLevel struct {
	Price int64
	Queue *Queue

	// TotalQty is the resting quantity across the queue.
	TotalQty int64
}

func newPriceLevel(price int64, queueID uint32) *PriceLevel {
	return &PriceLevel{
		Price: price,
		Queue: NewQueue(queueID),
	}
}

func (p *PriceLevel) append(o Order) NodeRef {
	p.TotalQty += o.Qty
	return p.Queue.Append(o)
}

func (p *PriceLevel) remove(ref NodeRef) (Order, bool) {
	o, ok := p.Queue.Remove(ref)
	if ok {
		p.TotalQty -= o.Qty
	}
	return o, ok
}

// fill reduces the order at the front by qty without removing it.
func (p *PriceLevel) fill(o *Order, qty int64) {
	o.Qty -= qty
	p.TotalQty -= qty
}

func (p *PriceLevel) Empty() bool    { return p.Queue.Empty() }
func (p *PriceLevel) OrderCount() int { return p.Queue.Len() }

func (p *PriceLevel) String() string {
	return fmt.Sprintf("PriceLevel{Price=%d, Orders=%d, TotalQty=%d}", p.Price, p.Queue.Len(), p.TotalQty)
}
