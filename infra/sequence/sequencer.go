package sequence

import "sync/atomic"

// Sequencer numbers accepted queries. Numbers are strictly increasing and
// the same query keeps its number across WAL replay.
type Sequencer struct {
	last atomic.Uint64
}

// New starts after last: 0 on a fresh start, the snapshot or WAL
// sequence when recovering.
func New(last uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(last)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Last returns the most recently issued number.
func (s *Sequencer) Last() uint64 {
	return s.last.Load()
}

// Observe moves the sequencer forward to v if it is behind. Recovery calls
// it with every sequence it finds in the snapshot and the WAL.
func (s *Sequencer) Observe(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
