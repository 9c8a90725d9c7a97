package service

import (
	"context"
	"time"

	"fifobook/snapshot"

	"github.com/sirupsen/logrus"
)

// TakeSnapshot writes the current book to dir, then drops WAL segments and
// ACKED outbox records the snapshot covers. It returns the covered sequence.
func (s *OrderService) TakeSnapshot(dir string) (uint64, error) {
	s.mu.RLock()
	if err := s.book.Err(); err != nil {
		s.mu.RUnlock()
		return 0, err
	}
	seq := s.seqGen.Last()
	snap := snapshot.Capture(seq, s.book)
	snap.Sources = s.applied.List()
	s.mu.RUnlock()

	w := &snapshot.Writer{Dir: dir}
	if err := w.WriteSnapshot(snap); err != nil {
		return 0, err
	}

	// Truncate ENTRY WAL after snapshot
	segments, err := s.wal.TruncateBefore(seq)
	if err != nil {
		s.log.WithError(err).Warn("WAL truncation failed")
	}

	// GC outbox (acked only)
	var acked int
	if s.store != nil {
		if acked, err = s.store.TruncateAckedUpTo(seq); err != nil {
			s.log.WithError(err).Warn("outbox truncation failed")
		}
	}

	s.log.WithFields(logrus.Fields{
		"seq":              seq,
		"orders":           len(snap.Orders),
		"segments_dropped": segments,
		"acked_dropped":    acked,
	}).Info("snapshot written")
	return seq, nil
}

func (s *OrderService) StartSnapshotJob(ctx context.Context, dir string, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := s.TakeSnapshot(dir); err != nil {
					s.log.WithError(err).Error("snapshot failed")
				}
			}
		}
	}()
}
