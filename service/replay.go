package service

import (
	"errors"
	"fmt"
	"path/filepath"

	"fifobook/domain/orderbook"
	"fifobook/infra/codec"
	"fifobook/infra/sequence"
	entrywal "fifobook/infra/wal/entry"
	"fifobook/pkg/logger"
	"fifobook/snapshot"

	"github.com/sirupsen/logrus"
)

/*
ReplayFromWAL re-applies every entry WAL record after afterSeq to book.

IMPORTANT:
- This MUST run before accepting traffic
- Order-level rejections are replayed as rejections and ignored
- An invariant violation aborts recovery
- Matches are re-derived and stored only where the outbox lacks them
- Source positions of replayed records are marked in offsets (may be nil)
*/
func ReplayFromWAL(
	walDir string,
	afterSeq uint64,
	book *orderbook.OrderBook,
	seqGen *sequence.Sequencer,
	store MatchStore,
	offsets *Offsets,
) (int, error) {
	log := logger.Component("replay")
	applied := 0

	lastSeq, err := entrywal.Replay(walDir, func(rec *entrywal.Record) error {
		if rec.Seq <= afterSeq {
			return nil
		}

		q, src, err := codec.UnmarshalEntry(rec.Data)
		if err != nil {
			return fmt.Errorf("record %d: %w", rec.Seq, err)
		}
		if recordType(q) != rec.Type {
			return fmt.Errorf("record %d: type %s does not match payload %T", rec.Seq, rec.Type, q)
		}
		if src != nil && offsets != nil {
			offsets.Mark(*src)
		}

		matches, err := book.Process(q)
		applied++
		if err != nil {
			var iv *orderbook.InvariantViolation
			if errors.As(err, &iv) || errors.Is(err, orderbook.ErrBookHalted) {
				return fmt.Errorf("record %d: %w", rec.Seq, err)
			}
			log.WithFields(logrus.Fields{"seq": rec.Seq, "error": err}).Debug("replayed rejection")
			return nil
		}

		if len(matches) > 0 && store != nil {
			if _, err := store.PutMissing(rec.Seq, matchEvents(rec.Seq, rec.Time, matches)); err != nil {
				return fmt.Errorf("record %d: outbox: %w", rec.Seq, err)
			}
		}
		return nil
	})
	if err != nil {
		return applied, err
	}

	// Resume sequencing AFTER replay
	seqGen.Observe(afterSeq)
	seqGen.Observe(lastSeq)

	log.WithFields(logrus.Fields{
		"after_seq": afterSeq,
		"last_seq":  seqGen.Last(),
		"applied":   applied,
	}).Info("WAL replay completed")
	return applied, nil
}

// Recover loads the snapshot in snapshotDir, when present, and replays the
// WAL tail after it. The book must be empty.
func (s *OrderService) Recover(snapshotDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapSeq, sources, err := snapshot.Load(filepath.Join(snapshotDir, snapshot.FileName), s.book)
	if err != nil {
		return err
	}
	for _, src := range sources {
		s.applied.Mark(src)
	}
	s.log.WithFields(logrus.Fields{"seq": snapSeq, "orders": s.book.Len()}).Info("snapshot loaded")

	if _, err := ReplayFromWAL(s.wal.Dir(), snapSeq, s.book, s.seqGen, s.store, s.applied); err != nil {
		return err
	}
	// A rejected append can leave the WAL ahead of its last record.
	s.seqGen.Observe(s.wal.LastSeq())
	return nil
}
