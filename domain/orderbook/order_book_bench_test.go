package orderbook

import "testing"

func BenchmarkAddResting(b *testing.B) {
	book := NewOrderBook()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = book.Add(Add{ID: OrderID(i + 1), Side: Buy, Price: 100 - int64(i%64), Qty: 10})
	}
}

func BenchmarkCancel(b *testing.B) {
	book := NewOrderBook()
	for i := 0; i < b.N; i++ {
		_, _ = book.Add(Add{ID: OrderID(i + 1), Side: Buy, Price: 100, Qty: 10})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = book.Cancel(OrderID(i + 1))
	}
}

func BenchmarkAddCrossing(b *testing.B) {
	book := NewOrderBook()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		side := Buy
		if i%2 == 1 {
			side = Sell
		}
		_, _ = book.Add(Add{ID: OrderID(i + 1), Side: side, Price: 100, Qty: 10})
	}
}

func BenchmarkMixed(b *testing.B) {
	book := NewOrderBook()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := OrderID(i + 1)
		switch i % 4 {
		case 0:
			_, _ = book.Add(Add{ID: id, Side: Buy, Price: 99 - int64(i%16), Qty: 5})
		case 1:
			_, _ = book.Add(Add{ID: id, Side: Sell, Price: 101 + int64(i%16), Qty: 5})
		case 2:
			_ = book.Cancel(id - 2)
		case 3:
			_, _ = book.Add(Add{ID: id, Side: Sell, Price: 95, Qty: 3})
		}
	}
}

func BenchmarkDepth(b *testing.B) {
	book := NewOrderBook()
	for i := 0; i < 1000; i++ {
		_, _ = book.Add(Add{ID: OrderID(i + 1), Side: Sell, Price: 100 + int64(i%200), Qty: 10})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = book.Depth(Sell, 20)
	}
}
