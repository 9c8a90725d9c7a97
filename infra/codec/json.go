package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fifobook/domain/orderbook"
)

// QueryMessage is the JSON shape of a query on the query topic.
type QueryMessage struct {
	Type     string `json:"type"`
	OrderID  uint64 `json:"order_id"`
	Side     string `json:"side,omitempty"`
	Price    int64  `json:"price,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
}

type MatchMessage struct {
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
}

// ResultMessage acknowledges or rejects one query.
type ResultMessage struct {
	Seq     uint64         `json:"seq,omitempty"`
	Type    string         `json:"type"`
	OrderID uint64         `json:"order_id"`
	Status  string         `json:"status"`
	Code    string         `json:"code,omitempty"`
	Error   string         `json:"error,omitempty"`
	Matches []MatchMessage `json:"matches,omitempty"`
}

const (
	StatusOK       = "ok"
	StatusRejected = "rejected"

	// StatusDuplicate answers a redelivered query that was applied before.
	StatusDuplicate = "duplicate"
)

// ParseSide accepts buy/sell and bid/ask, case-insensitive.
func ParseSide(s string) (orderbook.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "bid":
		return orderbook.Buy, nil
	case "sell", "ask":
		return orderbook.Sell, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", orderbook.ErrInvalidQuery, s)
}

// ToQuery converts m into a domain query. Unsupported types such as
// "modify" are rejected as invalid.
func (m QueryMessage) ToQuery() (orderbook.Query, error) {
	switch strings.ToLower(m.Type) {
	case "add":
		side, err := ParseSide(m.Side)
		if err != nil {
			return nil, err
		}
		return orderbook.Add{
			ID:    orderbook.OrderID(m.OrderID),
			Side:  side,
			Price: m.Price,
			Qty:   m.Quantity,
		}, nil
	case "cancel":
		return orderbook.Cancel{ID: orderbook.OrderID(m.OrderID)}, nil
	}
	return nil, fmt.Errorf("%w: unsupported query type %q", orderbook.ErrInvalidQuery, m.Type)
}

// DecodeQueryJSON parses one JSON query. Any decode failure is an
// ErrInvalidQuery.
func DecodeQueryJSON(data []byte) (orderbook.Query, error) {
	var m QueryMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", orderbook.ErrInvalidQuery, err)
	}
	return m.ToQuery()
}

// QueryMessageOf is the inverse of ToQuery.
func QueryMessageOf(q orderbook.Query) QueryMessage {
	switch q := q.(type) {
	case orderbook.Add:
		return QueryMessage{Type: "add", OrderID: uint64(q.ID), Side: q.Side.String(), Price: q.Price, Quantity: q.Qty}
	case orderbook.Cancel:
		return QueryMessage{Type: "cancel", OrderID: uint64(q.ID)}
	}
	return QueryMessage{Type: fmt.Sprintf("%T", q)}
}

func MatchMessages(matches []orderbook.Match) []MatchMessage {
	if len(matches) == 0 {
		return nil
	}
	out := make([]MatchMessage, len(matches))
	for i, m := range matches {
		out[i] = MatchMessage{
			BuyOrderID:  uint64(m.BuyID),
			SellOrderID: uint64(m.SellID),
			Price:       m.Price,
			Quantity:    m.Qty,
		}
	}
	return out
}

// ErrorCode classifies a query error for result records.
func ErrorCode(err error) string {
	var iv *orderbook.InvariantViolation
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateDelivery):
		return "already_applied"
	case errors.Is(err, orderbook.ErrBookHalted), errors.As(err, &iv):
		return "halted"
	case errors.Is(err, orderbook.ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, orderbook.ErrDuplicateOrder):
		return "duplicate_order"
	case errors.Is(err, orderbook.ErrInvalidQuery):
		return "invalid_query"
	}
	return "internal"
}

// NewResult builds the result record of q.
func NewResult(seq uint64, q QueryMessage, matches []orderbook.Match, err error) ResultMessage {
	r := ResultMessage{
		Seq:     seq,
		Type:    q.Type,
		OrderID: q.OrderID,
		Status:  StatusOK,
		Matches: MatchMessages(matches),
	}
	if err != nil {
		r.Status = StatusRejected
		if errors.Is(err, ErrDuplicateDelivery) {
			r.Status = StatusDuplicate
		}
		r.Code = ErrorCode(err)
		r.Error = err.Error()
	}
	return r
}
