package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"fifobook/domain/orderbook"
	"fifobook/infra/sequence"
	entrywal "fifobook/infra/wal/entry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyLog wraps a real WAL and fails appends with err. ErrNotDurable is
// returned after the record has been written, as the WAL does.
type faultyLog struct {
	*entrywal.WAL
	err error
}

func (l *faultyLog) Append(r *entrywal.Record) error {
	if l.err == nil {
		return l.WAL.Append(r)
	}
	if errors.Is(l.err, entrywal.ErrNotDurable) {
		if err := l.WAL.Append(r); err != nil {
			return err
		}
	}
	return l.err
}

func newFaultyFixture(t *testing.T) (*OrderService, *faultyLog, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := entrywal.Open(entrywal.Config{Dir: dir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	l := &faultyLog{WAL: w}
	return NewOrderService(orderbook.NewOrderBook(), sequence.New(0), l, newMemStore()), l, dir
}

// replayed rebuilds a book from walDir alone.
func replayed(t *testing.T, walDir string) *orderbook.OrderBook {
	t.Helper()
	book := orderbook.NewOrderBook()
	_, err := ReplayFromWAL(walDir, 0, book, sequence.New(0), nil, nil)
	require.NoError(t, err)
	return book
}

func TestFailedRotationDoesNotFailSubmit(t *testing.T) {
	walDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(walDir, "segment-000001.wal"), 0o755))

	w, err := entrywal.Open(entrywal.Config{Dir: walDir, SegmentSize: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	svc := NewOrderService(orderbook.NewOrderBook(), sequence.New(0), w, nil)
	ctx := context.Background()

	_, err = svc.Add(ctx, add(1, orderbook.Buy, 100, 5))
	require.NoError(t, err)
	_, err = svc.Add(ctx, add(2, orderbook.Buy, 99, 5))
	require.NoError(t, err)
	assert.NoError(t, svc.Err())

	book := replayed(t, walDir)
	assert.Equal(t, 2, book.Len())
	assert.Equal(t, svc.Depth(orderbook.Buy, 0), book.Depth(orderbook.Buy, 0))
}

func TestUnsyncedRecordIsAppliedAndHalts(t *testing.T) {
	svc, l, walDir := newFaultyFixture(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, add(1, orderbook.Buy, 100, 5))
	require.NoError(t, err)

	l.err = fmt.Errorf("%w: fsync: input/output error", entrywal.ErrNotDurable)
	res, err := svc.Add(ctx, add(2, orderbook.Sell, 100, 5))
	assert.ErrorIs(t, err, orderbook.ErrBookHalted)
	assert.ErrorIs(t, err, entrywal.ErrNotDurable)
	assert.Equal(t, uint64(2), res.Seq)
	assert.Len(t, res.Matches, 1)

	// the live book agrees with what replay rebuilds
	assert.Equal(t, 0, replayed(t, walDir).Len())
	assert.Empty(t, svc.Depth(orderbook.Buy, 0))

	l.err = nil
	_, err = svc.Add(ctx, add(3, orderbook.Buy, 90, 1))
	assert.ErrorIs(t, err, orderbook.ErrBookHalted)
	assert.Error(t, svc.Err())

	_, err = svc.TakeSnapshot(t.TempDir())
	assert.ErrorIs(t, err, orderbook.ErrBookHalted)
}

func TestFailedLogHaltsWithoutApplying(t *testing.T) {
	svc, l, walDir := newFaultyFixture(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, add(1, orderbook.Buy, 100, 5))
	require.NoError(t, err)

	l.err = fmt.Errorf("%w: rollback: read-only file system", entrywal.ErrFailed)
	_, err = svc.Add(ctx, add(2, orderbook.Buy, 99, 5))
	assert.ErrorIs(t, err, orderbook.ErrBookHalted)
	assert.ErrorIs(t, err, entrywal.ErrFailed)

	assert.Equal(t, 1, replayed(t, walDir).Len())
	assert.Len(t, svc.Depth(orderbook.Buy, 0), 1)
}

func TestUnloggedAppendIsReportedNotApplied(t *testing.T) {
	svc, l, walDir := newFaultyFixture(t)
	ctx := context.Background()

	l.err = errors.New("no space left on device")
	_, err := svc.Add(ctx, add(1, orderbook.Buy, 100, 5))
	require.Error(t, err)
	assert.NotErrorIs(t, err, orderbook.ErrBookHalted)
	assert.NoError(t, svc.Err())
	assert.Empty(t, svc.Depth(orderbook.Buy, 0))

	l.err = nil
	_, err = svc.Add(ctx, add(1, orderbook.Buy, 100, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, replayed(t, walDir).Len())
}
