package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"fifobook/domain/orderbook"
)

// Book is the read side the writer needs.
type Book interface {
	Walk(side orderbook.Side, fn func(orderbook.Order) bool)
}

type Writer struct {
	Dir string
}

func (w *Writer) Path() string {
	return filepath.Join(w.Dir, FileName)
}

func (w *Writer) Write(seq uint64, book Book) error {
	return w.WriteSnapshot(Capture(seq, book))
}

// WriteSnapshot replaces the snapshot file atomically.
func (w *Writer) WriteSnapshot(s Snapshot) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(w.Dir, FileName+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(&s); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), w.Path())
}

// Capture copies the resting orders of book.
func Capture(seq uint64, book Book) Snapshot {
	s := Snapshot{
		Seq:     seq,
		Created: time.Now(),
		Orders:  make([]OrderEntry, 0, 1024),
	}
	for _, side := range []orderbook.Side{orderbook.Buy, orderbook.Sell} {
		book.Walk(side, func(o orderbook.Order) bool {
			s.Orders = append(s.Orders, OrderEntry{
				ID:      uint64(o.ID),
				Side:    uint8(o.Side),
				Price:   o.Price,
				Qty:     o.Qty,
				Arrival: o.Seq,
			})
			return true
		})
	}
	return s
}
