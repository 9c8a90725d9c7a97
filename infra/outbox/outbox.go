package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"fifobook/infra/codec"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

// Key identifies one match: the query sequence that produced it and its
// position among that query's matches.
type Key struct {
	Seq   uint64
	Index uint32
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.Seq, k.Index)
}

type Record struct {
	State       State
	Retries     uint32
	LastAttempt int64
	Event       codec.MatchEvent
}

var ErrInvalidRecord = errors.New("outbox: invalid record")

const recordHeader = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][event...]
func encodeRecord(r Record) []byte {
	event := codec.MarshalMatchEvent(r.Event)
	buf := make([]byte, recordHeader, recordHeader+len(event))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	return append(buf, event...)
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < recordHeader {
		return Record{}, fmt.Errorf("%w: length %d", ErrInvalidRecord, len(b))
	}
	event, err := codec.UnmarshalMatchEvent(b[recordHeader:])
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return Record{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Event:       event,
	}, nil
}

// -------------------- Outbox --------------------

// Outbox stores match events until the broadcaster has published them.
type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// -------------------- API --------------------

// PutMatches stores the events of one query atomically in state NEW.
func (o *Outbox) PutMatches(seq uint64, events []codec.MatchEvent) error {
	if len(events) == 0 {
		return nil
	}
	b := o.db.NewBatch()
	defer b.Close()

	for i, e := range events {
		rec := Record{State: StateNew, Event: e}
		if err := b.Set(keyFor(Key{Seq: seq, Index: uint32(i)}), encodeRecord(rec), nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

// PutMissing stores only the events whose key is absent. WAL replay uses
// it to recreate events lost in a crash without resetting published ones.
func (o *Outbox) PutMissing(seq uint64, events []codec.MatchEvent) (int, error) {
	b := o.db.NewBatch()
	defer b.Close()

	n := 0
	for i, e := range events {
		key := keyFor(Key{Seq: seq, Index: uint32(i)})
		_, closer, err := o.db.Get(key)
		if err == nil {
			_ = closer.Close()
			continue
		}
		if !errors.Is(err, pebble.ErrNotFound) {
			return 0, err
		}
		if err := b.Set(key, encodeRecord(Record{State: StateNew, Event: e}), nil); err != nil {
			return 0, err
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, b.Commit(pebble.Sync)
}

func (o *Outbox) MarkSent(k Key) error {
	return o.update(k, func(r *Record) {
		r.State = StateSent
		r.Retries++
		r.LastAttempt = time.Now().UnixNano()
	})
}

func (o *Outbox) MarkAcked(k Key) error {
	return o.update(k, func(r *Record) { r.State = StateAcked })
}

func (o *Outbox) MarkFailed(k Key) error {
	return o.update(k, func(r *Record) { r.State = StateFailed })
}

func (o *Outbox) update(k Key, fn func(*Record)) error {
	rec, err := o.Get(k)
	if err != nil {
		return err
	}
	fn(&rec)
	return o.db.Set(keyFor(k), encodeRecord(rec), pebble.Sync)
}

// Delete removes a record; deleting a missing key is not an error.
func (o *Outbox) Delete(k Key) error {
	return o.db.Delete(keyFor(k), pebble.Sync)
}

// Get returns pebble.ErrNotFound for an unknown key.
func (o *Outbox) Get(k Key) (Record, error) {
	val, closer, err := o.db.Get(keyFor(k))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()

	return decodeRecord(val)
}

// -------------------- Scan --------------------

// ScanByState visits records in the given state in key order. This is
// used by the broadcaster.
func (o *Outbox) ScanByState(state State, fn func(Key, Record) error) error {
	return o.scan(func(k Key, rec Record) error {
		if rec.State != state {
			return nil
		}
		return fn(k, rec)
	})
}

func (o *Outbox) Count(state State) (int, error) {
	n := 0
	err := o.ScanByState(state, func(Key, Record) error {
		n++
		return nil
	})
	return n, err
}

// TruncateAckedUpTo deletes ACKED records produced by queries <= seq.
func (o *Outbox) TruncateAckedUpTo(seq uint64) (int, error) {
	b := o.db.NewBatch()
	defer b.Close()

	n := 0
	err := o.scan(func(k Key, rec Record) error {
		if k.Seq > seq || rec.State != StateAcked {
			return nil
		}
		n++
		return b.Delete(keyFor(k), nil)
	})
	if err != nil || n == 0 {
		return 0, err
	}
	return n, b.Commit(pebble.Sync)
}

func (o *Outbox) scan(fn func(Key, Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		k, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if err := fn(k, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

const keyPrefix = "match/"

func keyFor(k Key) []byte {
	return []byte(fmt.Sprintf("%s%020d/%06d", keyPrefix, k.Seq, k.Index))
}

func parseKey(b []byte) (Key, error) {
	var k Key
	_, err := fmt.Sscanf(string(b), keyPrefix+"%d/%d", &k.Seq, &k.Index)
	if err != nil {
		return Key{}, fmt.Errorf("outbox: bad key %q: %w", b, err)
	}
	return k, nil
}
