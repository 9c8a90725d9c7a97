package codec

import (
	"errors"
	"fmt"
	"testing"

	"fifobook/domain/orderbook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestDecodeQueryJSON(t *testing.T) {
	q, err := DecodeQueryJSON([]byte(`{"type":"add","order_id":7,"side":"SELL","price":101,"quantity":3}`))
	require.NoError(t, err)
	assert.Equal(t, orderbook.Add{ID: 7, Side: orderbook.Sell, Price: 101, Qty: 3}, q)

	q, err = DecodeQueryJSON([]byte(`{"type":"cancel","order_id":7}`))
	require.NoError(t, err)
	assert.Equal(t, orderbook.Cancel{ID: 7}, q)

	q, err = DecodeQueryJSON([]byte(`{"type":"add","order_id":8,"side":"bid","price":99,"quantity":1}`))
	require.NoError(t, err)
	assert.Equal(t, orderbook.Buy, q.(orderbook.Add).Side)
}

func TestDecodeQueryJSONRejects(t *testing.T) {
	inputs := []string{
		`{"type":"modify","order_id":1,"price":5}`,
		`{"type":"add","order_id":1,"side":"sideways","price":5,"quantity":1}`,
		`{"type":"add","order_id":1,"side":"buy","price":5,"quantity":1,"tif":"ioc"}`,
		`not json`,
		`{"type":"cancel","order_id":-1}`,
	}
	for _, in := range inputs {
		_, err := DecodeQueryJSON([]byte(in))
		assert.ErrorIs(t, err, orderbook.ErrInvalidQuery, in)
	}
}

func TestQueryWireRoundTrip(t *testing.T) {
	queries := []orderbook.Query{
		orderbook.Add{ID: 1, Side: orderbook.Buy, Price: 100, Qty: 5},
		orderbook.Add{ID: 1 << 40, Side: orderbook.Sell, Price: -3, Qty: 0},
		orderbook.Cancel{ID: 42},
	}
	for _, q := range queries {
		b, err := MarshalQuery(q)
		require.NoError(t, err)
		got, _, err := UnmarshalEntry(b)
		require.NoError(t, err)
		assert.Equal(t, q, got)
	}
}

func TestEntryCarriesSource(t *testing.T) {
	q := orderbook.Add{ID: 7, Side: orderbook.Buy, Price: 100, Qty: 10}
	src := Source{Topic: "fifobook.queries", Partition: 3, Offset: 1 << 33}

	b, err := MarshalEntry(q, &src)
	require.NoError(t, err)
	gotQ, gotSrc, err := UnmarshalEntry(b)
	require.NoError(t, err)
	assert.Equal(t, q, gotQ)
	require.NotNil(t, gotSrc)
	assert.Equal(t, src, *gotSrc)

	b, err = MarshalEntry(orderbook.Cancel{ID: 7}, nil)
	require.NoError(t, err)
	_, gotSrc, err = UnmarshalEntry(b)
	require.NoError(t, err)
	assert.Nil(t, gotSrc)
}

func TestUnmarshalEntrySkipsUnknownFields(t *testing.T) {
	b, err := MarshalQuery(orderbook.Cancel{ID: 9})
	require.NoError(t, err)
	b = protowire.AppendTag(b, 15, protowire.BytesType)
	b = protowire.AppendString(b, "from a newer writer")

	got, _, err := UnmarshalEntry(b)
	require.NoError(t, err)
	assert.Equal(t, orderbook.Cancel{ID: 9}, got)
}

func TestUnmarshalEntryMalformed(t *testing.T) {
	b, err := MarshalQuery(orderbook.Add{ID: 1, Side: orderbook.Buy, Price: 100, Qty: 5})
	require.NoError(t, err)

	cases := map[string][]byte{
		"truncated": b[:len(b)-1],
		"empty":     nil,
		"wrong type": protowire.AppendVarint(
			protowire.AppendTag(nil, fieldQueryAdd, protowire.VarintType), 1),
	}
	for name, in := range cases {
		_, _, err := UnmarshalEntry(in)
		assert.ErrorIs(t, err, ErrMalformed, name)
	}

	_, err = MarshalQuery(nil)
	assert.ErrorIs(t, err, orderbook.ErrInvalidQuery)
}

func TestMatchEventWireRoundTrip(t *testing.T) {
	e := MatchEvent{
		EventID: "3f1c1f50-3b1e-4d0b-a2e4-3c1e1b1f0a01",
		Seq:     77,
		Match:   orderbook.Match{BuyID: 1, SellID: 2, Price: 101, Qty: 8},
		Time:    1700000000000000000,
	}
	got, err := UnmarshalMatchEvent(MarshalMatchEvent(e))
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("cancel 1: %w", orderbook.ErrOrderNotFound), "order_not_found"},
		{fmt.Errorf("%w: 3", orderbook.ErrDuplicateOrder), "duplicate_order"},
		{fmt.Errorf("%w: bad", orderbook.ErrInvalidQuery), "invalid_query"},
		{fmt.Errorf("%w: x", orderbook.ErrBookHalted), "halted"},
		{&orderbook.InvariantViolation{Op: "resolve", Reason: "x"}, "halted"},
		{fmt.Errorf("%w: q/0@4", ErrDuplicateDelivery), "already_applied"},
		{errors.New("disk"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err))
	}
}

func TestNewResult(t *testing.T) {
	msg := QueryMessage{Type: "add", OrderID: 5}
	ok := NewResult(3, msg, []orderbook.Match{{BuyID: 5, SellID: 2, Price: 100, Qty: 1}}, nil)
	assert.Equal(t, StatusOK, ok.Status)
	assert.Equal(t, []MatchMessage{{BuyOrderID: 5, SellOrderID: 2, Price: 100, Quantity: 1}}, ok.Matches)

	bad := NewResult(4, msg, nil, fmt.Errorf("%w: dup", orderbook.ErrDuplicateOrder))
	assert.Equal(t, StatusRejected, bad.Status)
	assert.Equal(t, "duplicate_order", bad.Code)
	assert.Empty(t, bad.Matches)

	again := NewResult(0, msg, nil, fmt.Errorf("%w: q/0@4", ErrDuplicateDelivery))
	assert.Equal(t, StatusDuplicate, again.Status)
	assert.Equal(t, "already_applied", again.Code)
}
