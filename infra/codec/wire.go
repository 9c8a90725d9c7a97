package codec

import (
	"errors"
	"fmt"
	"math"

	"fifobook/domain/orderbook"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrMalformed = errors.New("codec: malformed payload")

	// ErrDuplicateDelivery rejects a query whose source position has
	// already been logged.
	ErrDuplicateDelivery = errors.New("query already applied")
)

// Field numbers. An entry holds a oneof of Add and Cancel and, for queries
// read from the query topic, their source position.
const (
	fieldQueryAdd    protowire.Number = 1
	fieldQueryCancel protowire.Number = 2
	fieldQuerySource protowire.Number = 3

	fieldAddID    protowire.Number = 1
	fieldAddSide  protowire.Number = 2
	fieldAddPrice protowire.Number = 3
	fieldAddQty   protowire.Number = 4

	fieldCancelID protowire.Number = 1

	fieldSourceTopic     protowire.Number = 1
	fieldSourcePartition protowire.Number = 2
	fieldSourceOffset    protowire.Number = 3

	fieldEventID    protowire.Number = 1
	fieldEventSeq   protowire.Number = 2
	fieldEventBuy   protowire.Number = 3
	fieldEventSell  protowire.Number = 4
	fieldEventPrice protowire.Number = 5
	fieldEventQty   protowire.Number = 6
	fieldEventTime  protowire.Number = 7
)

// MatchEvent is a match as stored in the outbox and published downstream.
type MatchEvent struct {
	EventID string
	Seq     uint64
	Match   orderbook.Match
	Time    int64
}

// Source is the query topic position a query was consumed from.
type Source struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (s Source) String() string {
	return fmt.Sprintf("%s/%d@%d", s.Topic, s.Partition, s.Offset)
}

// -------------------- Queries --------------------

// MarshalEntry encodes q for the entry WAL together with its source, when
// it has one.
func MarshalEntry(q orderbook.Query, src *Source) ([]byte, error) {
	b, err := MarshalQuery(q)
	if err != nil || src == nil {
		return b, err
	}
	var body []byte
	body = protowire.AppendTag(body, fieldSourceTopic, protowire.BytesType)
	body = protowire.AppendString(body, src.Topic)
	body = appendVarint(body, fieldSourcePartition, uint64(uint32(src.Partition)))
	body = appendSint(body, fieldSourceOffset, src.Offset)
	return appendMessage(b, fieldQuerySource, body), nil
}

func MarshalQuery(q orderbook.Query) ([]byte, error) {
	switch q := q.(type) {
	case orderbook.Add:
		var body []byte
		body = appendVarint(body, fieldAddID, uint64(q.ID))
		body = appendVarint(body, fieldAddSide, uint64(q.Side))
		body = appendSint(body, fieldAddPrice, q.Price)
		body = appendSint(body, fieldAddQty, q.Qty)
		return appendMessage(nil, fieldQueryAdd, body), nil
	case orderbook.Cancel:
		body := appendVarint(nil, fieldCancelID, uint64(q.ID))
		return appendMessage(nil, fieldQueryCancel, body), nil
	}
	return nil, fmt.Errorf("%w: cannot encode %T", orderbook.ErrInvalidQuery, q)
}

// UnmarshalEntry decodes a WAL payload. src is nil for queries that did
// not come from the query topic.
func UnmarshalEntry(b []byte) (orderbook.Query, *Source, error) {
	var q orderbook.Query
	var src *Source
	err := eachField(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldQueryAdd:
			body, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			add, err := unmarshalAdd(body)
			if err != nil {
				return 0, err
			}
			q = add
			return n, nil
		case fieldQueryCancel:
			body, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			var c orderbook.Cancel
			err = eachField(body, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if num != fieldCancelID {
					return skip(num, typ, b)
				}
				v, n, err := consumeVarint(typ, b)
				c.ID = orderbook.OrderID(v)
				return n, err
			})
			if err != nil {
				return 0, err
			}
			q = c
			return n, nil
		case fieldQuerySource:
			body, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			s, err := unmarshalSource(body)
			if err != nil {
				return 0, err
			}
			src = &s
			return n, nil
		}
		return skip(num, typ, b)
	})
	if err != nil {
		return nil, nil, err
	}
	if q == nil {
		return nil, nil, fmt.Errorf("%w: no query variant set", ErrMalformed)
	}
	return q, src, nil
}

func unmarshalSource(b []byte) (Source, error) {
	var s Source
	err := eachField(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldSourceTopic:
			v, n, err := consumeBytes(typ, b)
			s.Topic = string(v)
			return n, err
		case fieldSourcePartition, fieldSourceOffset:
		default:
			return skip(num, typ, b)
		}
		v, n, err := consumeVarint(typ, b)
		if err != nil {
			return 0, err
		}
		if num == fieldSourcePartition {
			if v > math.MaxUint32 {
				return 0, fmt.Errorf("%w: partition %d out of range", ErrMalformed, v)
			}
			s.Partition = int32(uint32(v))
		} else {
			s.Offset = protowire.DecodeZigZag(v)
		}
		return n, nil
	})
	return s, err
}

func unmarshalAdd(b []byte) (orderbook.Add, error) {
	var a orderbook.Add
	err := eachField(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldAddID, fieldAddSide, fieldAddPrice, fieldAddQty:
		default:
			return skip(num, typ, b)
		}
		v, n, err := consumeVarint(typ, b)
		if err != nil {
			return 0, err
		}
		switch num {
		case fieldAddID:
			a.ID = orderbook.OrderID(v)
		case fieldAddSide:
			if v > math.MaxUint8 {
				return 0, fmt.Errorf("%w: side %d out of range", ErrMalformed, v)
			}
			a.Side = orderbook.Side(v)
		case fieldAddPrice:
			a.Price = protowire.DecodeZigZag(v)
		case fieldAddQty:
			a.Qty = protowire.DecodeZigZag(v)
		}
		return n, nil
	})
	return a, err
}

// -------------------- Match events --------------------

func MarshalMatchEvent(e MatchEvent) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldEventID, protowire.BytesType)
	b = protowire.AppendString(b, e.EventID)
	b = appendVarint(b, fieldEventSeq, e.Seq)
	b = appendVarint(b, fieldEventBuy, uint64(e.Match.BuyID))
	b = appendVarint(b, fieldEventSell, uint64(e.Match.SellID))
	b = appendSint(b, fieldEventPrice, e.Match.Price)
	b = appendSint(b, fieldEventQty, e.Match.Qty)
	b = appendSint(b, fieldEventTime, e.Time)
	return b
}

func UnmarshalMatchEvent(b []byte) (MatchEvent, error) {
	var e MatchEvent
	err := eachField(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldEventID {
			s, n, err := consumeBytes(typ, b)
			e.EventID = string(s)
			return n, err
		}
		switch num {
		case fieldEventSeq, fieldEventBuy, fieldEventSell, fieldEventPrice, fieldEventQty, fieldEventTime:
		default:
			return skip(num, typ, b)
		}
		v, n, err := consumeVarint(typ, b)
		if err != nil {
			return 0, err
		}
		switch num {
		case fieldEventSeq:
			e.Seq = v
		case fieldEventBuy:
			e.Match.BuyID = orderbook.OrderID(v)
		case fieldEventSell:
			e.Match.SellID = orderbook.OrderID(v)
		case fieldEventPrice:
			e.Match.Price = protowire.DecodeZigZag(v)
		case fieldEventQty:
			e.Match.Qty = protowire.DecodeZigZag(v)
		case fieldEventTime:
			e.Time = protowire.DecodeZigZag(v)
		}
		return n, nil
	})
	return e, err
}

// -------------------- Helpers --------------------

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(v))
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

// eachField calls fn with the value bytes of every field in b; fn returns
// how many bytes it consumed.
func eachField(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: wire type %d, want varint", ErrMalformed, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: wire type %d, want bytes", ErrMalformed, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	return v, n, nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	return n, nil
}
