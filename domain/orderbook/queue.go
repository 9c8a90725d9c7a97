package orderbook

// NodeRef addresses a slot in a Queue's arena. It stays valid until the
// node is removed; the slot is then recycled by later appends.
type NodeRef int32

const nilRef NodeRef = -1

type queueNode struct {
	order Order
	prev  NodeRef
	next  NodeRef

	// queue is the id of the owning queue, 0 while the slot is free.
	queue uint32
}

// Queue is a FIFO of orders at one price. Nodes are stored in a growable
// slot arena and linked by index; removed slots go on a free list that is
// chained through next.
type Queue struct {
	id    uint32
	slots []queueNode
	free  NodeRef
	head  NodeRef
	tail  NodeRef
	size  int
}

// NewQueue returns an empty queue. id must be non-zero.
func NewQueue(id uint32) *Queue {
	if id == 0 {
		panic("orderbook: queue id must be non-zero")
	}
	return &Queue{
		id:   id,
		free: nilRef,
		head: nilRef,
		tail: nilRef,
	}
}

func (q *Queue) ID() uint32  { return q.id }
func (q *Queue) Len() int    { return q.size }
func (q *Queue) Empty() bool { return q.size == 0 }

// Append adds o as the newest arrival and returns its reference.
func (q *Queue) Append(o Order) NodeRef {
	ref := q.alloc()
	n := &q.slots[ref]
	n.order = o
	n.queue = q.id
	n.next = nilRef
	n.prev = q.tail

	if q.tail == nilRef {
		q.head = ref
	} else {
		q.slots[q.tail].next = ref
	}
	q.tail = ref
	q.size++
	return ref
}

// Remove unlinks the node at ref from any position and returns its order.
// It reports false if ref is not a live node of this queue.
func (q *Queue) Remove(ref NodeRef) (Order, bool) {
	if !q.owns(ref) {
		return Order{}, false
	}
	n := &q.slots[ref]

	if n.prev == nilRef {
		q.head = n.next
	} else {
		q.slots[n.prev].next = n.next
	}
	if n.next == nilRef {
		q.tail = n.prev
	} else {
		q.slots[n.next].prev = n.prev
	}

	o := n.order
	*n = queueNode{prev: nilRef, next: q.free}
	q.free = ref
	q.size--
	return o, true
}

// Front returns the earliest arrival, or nil when empty. The pointer is
// invalidated by the next Append.
func (q *Queue) Front() *Order {
	if q.head == nilRef {
		return nil
	}
	return &q.slots[q.head].order
}

// frontRef returns the reference of the earliest arrival.
func (q *Queue) frontRef() (NodeRef, bool) {
	return q.head, q.head != nilRef
}

// At returns the order stored at ref, or nil if ref is not live.
func (q *Queue) At(ref NodeRef) *Order {
	if !q.owns(ref) {
		return nil
	}
	return &q.slots[ref].order
}

// Each visits orders front to back until fn returns false.
func (q *Queue) Each(fn func(*Order) bool) {
	for ref := q.head; ref != nilRef; ref = q.slots[ref].next {
		if !fn(&q.slots[ref].order) {
			return
		}
	}
}

func (q *Queue) owns(ref NodeRef) bool {
	return ref >= 0 && int(ref) < len(q.slots) && q.slots[ref].queue == q.id
}

func (q *Queue) alloc() NodeRef {
	if q.free != nilRef {
		ref := q.free
		q.free = q.slots[ref].next
		return ref
	}
	q.slots = append(q.slots, queueNode{})
	return NodeRef(len(q.slots) - 1)
}
