package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fifobook/domain/orderbook"
	"fifobook/infra/codec"
	"fifobook/infra/sequence"
	entrywal "fifobook/infra/wal/entry"
	"fifobook/pkg/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MatchStore receives the match events of every applied query.
type MatchStore interface {
	PutMatches(seq uint64, events []codec.MatchEvent) error
	PutMissing(seq uint64, events []codec.MatchEvent) (int, error)
	TruncateAckedUpTo(seq uint64) (int, error)
}

// Log is the entry WAL as the service uses it.
type Log interface {
	Append(r *entrywal.Record) error
	LastSeq() uint64
	Dir() string
	TruncateBefore(seq uint64) (int, error)
}

// Result is the outcome of one accepted query.
type Result struct {
	Seq     uint64
	Matches []orderbook.Match
}

// TopOfBook holds the best level of each side; a nil side is empty.
type TopOfBook struct {
	Bid *orderbook.DepthLevel
	Ask *orderbook.DepthLevel
}

// eventNamespace scopes match event ids so the same (seq, index) always
// yields the same id, including after WAL replay.
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("fifobook/match"))

/*
OrderService is the ONLY write entry point into the book.

Every mutation runs under one lock covering:
- redelivery check
- sequence assignment
- entry WAL append
- the book transition
- outbox write
Reads take the shared side of the same lock.

A WAL failure that leaves the log ahead of the book, or unusable, halts
the book: the live state must never differ from what replay rebuilds.
*/
type OrderService struct {
	mu sync.RWMutex

	book    *orderbook.OrderBook
	seqGen  *sequence.Sequencer
	wal     Log
	store   MatchStore
	applied *Offsets

	log *logrus.Entry
}

// NewOrderService wires all dependencies. store may be nil when matches
// are not published.
func NewOrderService(
	book *orderbook.OrderBook,
	seqGen *sequence.Sequencer,
	w Log,
	store MatchStore,
) *OrderService {
	return &OrderService{
		book:    book,
		seqGen:  seqGen,
		wal:     w,
		store:   store,
		applied: NewOffsets(),
		log:     logger.Component("service"),
	}
}

// -------------------- Commands --------------------

// Submit applies one query. Order-level rejections are returned with the
// sequence the query was logged under.
func (s *OrderService) Submit(ctx context.Context, q orderbook.Query) (Result, error) {
	return s.submit(ctx, nil, q)
}

// SubmitFrom applies a query consumed from the query topic at src. A
// query whose position is already logged is rejected with
// codec.ErrDuplicateDelivery and not applied again.
func (s *OrderService) SubmitFrom(ctx context.Context, src codec.Source, q orderbook.Query) (Result, error) {
	return s.submit(ctx, &src, q)
}

func (s *OrderService) submit(ctx context.Context, src *codec.Source, q orderbook.Query) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	q = normalize(q)
	if q == nil {
		return Result{}, fmt.Errorf("%w: nil query", orderbook.ErrInvalidQuery)
	}
	payload, err := codec.MarshalEntry(q, src)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.book.Err(); err != nil {
		return Result{}, err
	}
	if src != nil && s.applied.Applied(*src) {
		return Result{}, fmt.Errorf("%w: %s", codec.ErrDuplicateDelivery, src)
	}

	seq := s.seqGen.Next()
	rec := entrywal.NewRecord(recordType(q), seq, payload)
	if err := s.wal.Append(rec); err != nil {
		fields := logrus.Fields{"seq": seq, "error": err}
		switch {
		case errors.Is(err, entrywal.ErrNotDurable):
			// Replay will apply the record, so the book applies it too
			// before it stops taking writes.
			res, _ := s.apply(seq, rec, src, q)
			s.log.WithFields(fields).Error("entry WAL not durable, halting")
			return res, s.book.Halt("wal", err)
		case errors.Is(err, entrywal.ErrFailed):
			s.log.WithFields(fields).Error("entry WAL failed, halting")
			return Result{}, s.book.Halt("wal", err)
		}
		s.log.WithFields(fields).Error("entry WAL append failed")
		return Result{}, fmt.Errorf("wal append: %w", err)
	}
	return s.apply(seq, rec, src, q)
}

// apply runs a logged query against the book and stores its matches.
func (s *OrderService) apply(seq uint64, rec *entrywal.Record, src *codec.Source, q orderbook.Query) (Result, error) {
	if src != nil {
		s.applied.Mark(*src)
	}

	matches, err := s.book.Process(q)
	res := Result{Seq: seq, Matches: matches}
	if err != nil {
		s.logRejection(seq, q, err)
		return res, err
	}

	if len(matches) > 0 && s.store != nil {
		if err := s.store.PutMatches(seq, matchEvents(seq, rec.Time, matches)); err != nil {
			// The query is applied; replay recreates the missing events.
			s.log.WithFields(logrus.Fields{"seq": seq, "matches": len(matches), "error": err}).
				Error("outbox write failed")
		}
	}
	return res, nil
}

func (s *OrderService) Add(ctx context.Context, a orderbook.Add) (Result, error) {
	return s.Submit(ctx, a)
}

func (s *OrderService) Cancel(ctx context.Context, id orderbook.OrderID) (Result, error) {
	return s.Submit(ctx, orderbook.Cancel{ID: id})
}

// -------------------- Queries --------------------

// Depth returns up to limit levels of side, best first.
func (s *OrderService) Depth(side orderbook.Side, limit int) []orderbook.DepthLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Depth(side, limit)
}

func (s *OrderService) Best() TopOfBook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var top TopOfBook
	if lvl, ok := s.book.Best(orderbook.Buy); ok {
		top.Bid = &lvl
	}
	if lvl, ok := s.book.Best(orderbook.Sell); ok {
		top.Ask = &lvl
	}
	return top
}

func (s *OrderService) Order(id orderbook.OrderID) (orderbook.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Order(id)
}

// Err reports whether the book has halted.
func (s *OrderService) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Err()
}

func (s *OrderService) LastSeq() uint64 {
	return s.seqGen.Last()
}

// -------------------- Helpers --------------------

// matchEvents stamps events with the WAL record time so replay rebuilds
// them identically.
func matchEvents(seq uint64, ts int64, matches []orderbook.Match) []codec.MatchEvent {
	out := make([]codec.MatchEvent, len(matches))
	for i, m := range matches {
		out[i] = codec.MatchEvent{
			EventID: EventID(seq, i),
			Seq:     seq,
			Match:   m,
			Time:    ts,
		}
	}
	return out
}

// EventID is the stable id of the index-th match of query seq.
func EventID(seq uint64, index int) string {
	return uuid.NewSHA1(eventNamespace, []byte(fmt.Sprintf("%d/%d", seq, index))).String()
}

func (s *OrderService) logRejection(seq uint64, q orderbook.Query, err error) {
	entry := s.log.WithFields(logrus.Fields{
		"seq":   seq,
		"query": fmt.Sprintf("%T", q),
		"error": err,
	})
	var iv *orderbook.InvariantViolation
	if errors.As(err, &iv) {
		entry.Error("book halted")
		return
	}
	entry.Debug("query rejected")
}

// normalize dereferences pointer variants so the WAL only sees values.
func normalize(q orderbook.Query) orderbook.Query {
	switch v := q.(type) {
	case *orderbook.Add:
		if v != nil {
			return *v
		}
	case *orderbook.Cancel:
		if v != nil {
			return *v
		}
	}
	return q
}

func recordType(q orderbook.Query) entrywal.RecordType {
	if _, ok := q.(orderbook.Cancel); ok {
		return entrywal.RecordCancel
	}
	return entrywal.RecordAdd
}
