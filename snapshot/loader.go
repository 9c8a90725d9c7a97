package snapshot

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"fifobook/domain/orderbook"
	"fifobook/infra/codec"
)

// Load restores the snapshot at path into an empty book and returns the
// query sequence and source offsets it covers. A missing file is not an
// error: it yields 0 and no sources.
func Load(path string, book *orderbook.OrderBook) (uint64, []codec.Source, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return 0, nil, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	if err := Restore(s, book); err != nil {
		return 0, nil, err
	}
	return s.Seq, s.Sources, nil
}

func Restore(s Snapshot, book *orderbook.OrderBook) error {
	if book.Len() != 0 {
		return fmt.Errorf("snapshot: restore into a book with %d orders", book.Len())
	}
	for _, e := range s.Orders {
		err := book.Restore(orderbook.Order{
			ID:    orderbook.OrderID(e.ID),
			Side:  orderbook.Side(e.Side),
			Price: e.Price,
			Qty:   e.Qty,
			Seq:   e.Arrival,
		})
		if err != nil {
			return fmt.Errorf("snapshot: restore order %d: %w", e.ID, err)
		}
	}
	return nil
}
