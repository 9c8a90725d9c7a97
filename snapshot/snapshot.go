package snapshot

import (
	"time"

	"fifobook/infra/codec"
)

const FileName = "snapshot.bin"

// Snapshot lists resting orders bids first then asks, each side best level
// first and arrival order within a level.
type Snapshot struct {
	Seq     uint64
	Created time.Time
	Orders  []OrderEntry

	// Sources holds, per query topic partition, the highest offset the
	// snapshot covers.
	Sources []codec.Source
}

type OrderEntry struct {
	ID    uint64
	Side  uint8
	Price int64
	Qty   int64

	// Arrival is the book's arrival sequence, not the WAL sequence.
	Arrival uint64
}
