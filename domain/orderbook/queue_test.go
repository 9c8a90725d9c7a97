package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(q *Queue) []OrderID {
	var out []OrderID
	q.Each(func(o *Order) bool {
		out = append(out, o.ID)
		return true
	})
	return out
}

func TestQueueAppendPeekFIFO(t *testing.T) {
	q := NewQueue(1)
	require.True(t, q.Empty())
	require.Nil(t, q.Front())

	for i := 1; i <= 3; i++ {
		q.Append(Order{ID: OrderID(i), Qty: 1})
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, OrderID(1), q.Front().ID)
	assert.Equal(t, []OrderID{1, 2, 3}, ids(q))
}

func TestQueueRemoveHeadMiddleTail(t *testing.T) {
	q := NewQueue(7)
	refs := make([]NodeRef, 5)
	for i := range refs {
		refs[i] = q.Append(Order{ID: OrderID(i + 1)})
	}

	o, ok := q.Remove(refs[2])
	require.True(t, ok)
	assert.Equal(t, OrderID(3), o.ID)
	assert.Equal(t, []OrderID{1, 2, 4, 5}, ids(q))

	_, ok = q.Remove(refs[0])
	require.True(t, ok)
	assert.Equal(t, OrderID(2), q.Front().ID)

	_, ok = q.Remove(refs[4])
	require.True(t, ok)
	assert.Equal(t, []OrderID{2, 4}, ids(q))

	// the freed tail slot is reused and becomes the new tail
	r := q.Append(Order{ID: 6})
	assert.Equal(t, refs[4], r)
	assert.Equal(t, []OrderID{2, 4, 6}, ids(q))
	assert.Equal(t, 3, q.Len())
}

func TestQueueRemoveStaleOrForeignRef(t *testing.T) {
	q := NewQueue(1)
	other := NewQueue(2)
	ref := q.Append(Order{ID: 1})
	other.Append(Order{ID: 2})

	_, ok := other.Remove(ref)
	assert.False(t, ok, "ref of another queue must be rejected")

	_, ok = q.Remove(ref)
	require.True(t, ok)
	_, ok = q.Remove(ref)
	assert.False(t, ok, "a freed slot must be rejected")

	_, ok = q.Remove(NodeRef(42))
	assert.False(t, ok)
	assert.Nil(t, q.At(ref))
	assert.True(t, q.Empty())
}

func TestQueueDrainAndRefill(t *testing.T) {
	q := NewQueue(1)
	var refs []NodeRef
	for i := 0; i < 100; i++ {
		refs = append(refs, q.Append(Order{ID: OrderID(i)}))
	}
	for _, r := range refs {
		_, ok := q.Remove(r)
		require.True(t, ok)
	}
	require.True(t, q.Empty())
	_, ok := q.frontRef()
	require.False(t, ok)

	for i := 0; i < 100; i++ {
		q.Append(Order{ID: OrderID(1000 + i)})
	}
	assert.Len(t, q.slots, 100, "refill must reuse freed slots")
	assert.Equal(t, OrderID(1000), q.Front().ID)
}
