package orderbook

import "fmt"

type OrderID uint64

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of side s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is a resting limit order. Price is an integer tick count.
// Qty is only ever reduced by the matching engine.
type Order struct {
	ID    OrderID
	Side  Side
	Price int64
	Qty   int64

	// Seq is the arrival sequence assigned by the book.
	Seq uint64
}

// Match is one execution between the front buy and front sell order.
// Price is the price of the order that was resting first.
type Match struct {
	BuyID  OrderID
	SellID OrderID
	Price  int64
	Qty    int64
}

// Query is the closed set of inputs the book accepts: Add and Cancel.
type Query interface {
	isQuery()
}

// Add submits a new limit order.
type Add struct {
	ID    OrderID
	Side  Side
	Price int64
	Qty   int64
}

// Cancel removes a resting order.
type Cancel struct {
	ID OrderID
}

func (Add) isQuery()    {}
func (Cancel) isQuery() {}

func (a Add) validate() error {
	switch {
	case !a.Side.Valid():
		return fmt.Errorf("%w: unknown side %d", ErrInvalidQuery, uint8(a.Side))
	case a.Price <= 0:
		return fmt.Errorf("%w: price must be positive, got %d", ErrInvalidQuery, a.Price)
	case a.Qty <= 0:
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidQuery, a.Qty)
	}
	return nil
}
