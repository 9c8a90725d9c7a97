package outbox

import (
	"testing"

	"fifobook/domain/orderbook"
	"fifobook/infra/codec"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func event(id string, seq uint64, buy, sell orderbook.OrderID) codec.MatchEvent {
	return codec.MatchEvent{
		EventID: id,
		Seq:     seq,
		Match:   orderbook.Match{BuyID: buy, SellID: sell, Price: 100, Qty: 1},
		Time:    1,
	}
}

func collect(t *testing.T, o *Outbox, s State) []Key {
	t.Helper()
	var keys []Key
	require.NoError(t, o.ScanByState(s, func(k Key, _ Record) error {
		keys = append(keys, k)
		return nil
	}))
	return keys
}

func TestPutAndScanInOrder(t *testing.T) {
	o := openTest(t)

	require.NoError(t, o.PutMatches(12, []codec.MatchEvent{event("c", 12, 3, 4)}))
	require.NoError(t, o.PutMatches(3, []codec.MatchEvent{event("a", 3, 1, 2), event("b", 3, 5, 2)}))
	require.NoError(t, o.PutMatches(4, nil))

	assert.Equal(t, []Key{{3, 0}, {3, 1}, {12, 0}}, collect(t, o, StateNew))

	rec, err := o.Get(Key{3, 1})
	require.NoError(t, err)
	assert.Equal(t, StateNew, rec.State)
	assert.Equal(t, event("b", 3, 5, 2), rec.Event)
}

func TestStateTransitions(t *testing.T) {
	o := openTest(t)
	require.NoError(t, o.PutMatches(1, []codec.MatchEvent{event("a", 1, 1, 2), event("b", 1, 3, 2)}))

	k := Key{Seq: 1, Index: 0}
	require.NoError(t, o.MarkSent(k))
	require.NoError(t, o.MarkSent(k))

	rec, err := o.Get(k)
	require.NoError(t, err)
	assert.Equal(t, StateSent, rec.State)
	assert.Equal(t, uint32(2), rec.Retries)
	assert.NotZero(t, rec.LastAttempt)

	require.NoError(t, o.MarkAcked(k))
	assert.Equal(t, []Key{k}, collect(t, o, StateAcked))
	assert.Equal(t, []Key{{1, 1}}, collect(t, o, StateNew))

	require.NoError(t, o.MarkFailed(Key{1, 1}))
	n, err := o.Count(StateFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, o.Delete(k))
	_, err = o.Get(k)
	assert.ErrorIs(t, err, pebble.ErrNotFound)
	assert.ErrorIs(t, o.MarkSent(k), pebble.ErrNotFound)
}

func TestTruncateAckedUpTo(t *testing.T) {
	o := openTest(t)
	for seq := uint64(1); seq <= 4; seq++ {
		require.NoError(t, o.PutMatches(seq, []codec.MatchEvent{event("e", seq, 1, 2)}))
	}
	for _, seq := range []uint64{1, 2, 4} {
		require.NoError(t, o.MarkAcked(Key{Seq: seq}))
	}

	n, err := o.TruncateAckedUpTo(3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []Key{{4, 0}}, collect(t, o, StateAcked))
	assert.Equal(t, []Key{{3, 0}}, collect(t, o, StateNew))
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, o.PutMatches(9, []codec.MatchEvent{event("x", 9, 1, 2)}))
	require.NoError(t, o.Close())

	o2, err := Open(dir)
	require.NoError(t, err)
	defer o2.Close()
	assert.Equal(t, []Key{{9, 0}}, collect(t, o2, StateNew))
}

func TestDecodeRecordRejectsShort(t *testing.T) {
	_, err := decodeRecord([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestPutMissingKeepsExisting(t *testing.T) {
	o := openTest(t)
	require.NoError(t, o.PutMatches(5, []codec.MatchEvent{event("a", 5, 1, 2)}))
	require.NoError(t, o.MarkAcked(Key{Seq: 5}))

	n, err := o.PutMissing(5, []codec.MatchEvent{event("a", 5, 1, 2), event("b", 5, 3, 2)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []Key{{5, 0}}, collect(t, o, StateAcked))
	assert.Equal(t, []Key{{5, 1}}, collect(t, o, StateNew))

	n, err = o.PutMissing(5, []codec.MatchEvent{event("a", 5, 1, 2), event("b", 5, 3, 2)})
	require.NoError(t, err)
	assert.Zero(t, n)
}
