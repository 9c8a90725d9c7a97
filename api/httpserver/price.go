package httpserver

import (
	"fmt"
	"math"

	"fifobook/domain/orderbook"

	"github.com/shopspring/decimal"
)

var maxTicks = decimal.NewFromInt(math.MaxInt64)

// toTicks converts a decimal price string into integer ticks of
// 10^-scale. Prices finer than one tick are rejected.
func toTicks(price string, scale int32) (int64, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return 0, fmt.Errorf("%w: price %q: %v", orderbook.ErrInvalidQuery, price, err)
	}
	ticks := d.Shift(scale)
	if !ticks.IsInteger() {
		return 0, fmt.Errorf("%w: price %s is finer than the tick size", orderbook.ErrInvalidQuery, price)
	}
	if ticks.Abs().GreaterThan(maxTicks) {
		return 0, fmt.Errorf("%w: price %s out of range", orderbook.ErrInvalidQuery, price)
	}
	return ticks.IntPart(), nil
}

func fromTicks(ticks int64, scale int32) string {
	return decimal.New(ticks, -scale).StringFixed(scale)
}
