package entry

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"fifobook/pkg/logger"

	"github.com/sirupsen/logrus"
)

var (
	ErrClosed     = errors.New("wal: closed")
	ErrOutOfOrder = errors.New("wal: sequence not increasing")

	// ErrNotDurable: the record was written but may not survive a crash.
	ErrNotDurable = errors.New("wal: record written but not synced")

	// ErrFailed: an earlier I/O failure left the log unusable.
	ErrFailed = errors.New("wal: log failed")
)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration

	// SyncEveryWrite fsyncs each record before Append returns.
	SyncEveryWrite bool
}

// WAL is the append-only log of accepted queries, split into numbered
// segments.
type WAL struct {
	mu sync.Mutex

	dir         string
	segSize     int64
	segDuration time.Duration
	syncWrites  bool

	current    *segment
	lastRotate time.Time
	lastSeq    uint64
	closed     bool
	failed     error

	log *logrus.Entry
}

// Open resumes the newest segment of cfg.Dir, cutting off a torn tail
// left by a crash.
func Open(cfg Config) (*WAL, error) {
	if cfg.SegmentSize <= 0 {
		return nil, fmt.Errorf("wal: invalid segment size %d", cfg.SegmentSize)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	files, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	index := 0
	var lastSeq uint64
	for i := len(files) - 1; i >= 0; i-- {
		validLen, maxSeq, err := scanSegment(files[i])
		if err != nil {
			return nil, fmt.Errorf("wal: scan %s: %w", files[i], err)
		}
		if i == len(files)-1 {
			index = segmentIndex(files[i])
			if err := trimTail(files[i], validLen); err != nil {
				return nil, err
			}
		}
		if maxSeq > 0 {
			lastSeq = maxSeq
			break
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}

	return &WAL{
		dir:         cfg.Dir,
		segSize:     cfg.SegmentSize,
		segDuration: cfg.SegmentDuration,
		syncWrites:  cfg.SyncEveryWrite,
		current:     seg,
		lastRotate:  time.Now(),
		lastSeq:     lastSeq,
		log:         logger.Component("wal"),
	}, nil
}

func trimTail(path string, validLen int64) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if st.Size() == validLen {
		return nil
	}
	logger.Component("wal").WithFields(logrus.Fields{
		"segment": path,
		"size":    st.Size(),
		"valid":   validLen,
	}).Warn("truncating torn WAL tail")
	return os.Truncate(path, validLen)
}

// Append writes r to the current segment. An error wrapping ErrNotDurable
// means the frame is in the segment but could not be synced: replay will
// see it. Any other error means r was not logged. After ErrNotDurable, or
// a write that could not be rolled back, the log refuses further appends
// with ErrFailed.
func (w *WAL) Append(r *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.failed != nil {
		return fmt.Errorf("%w: %v", ErrFailed, w.failed)
	}
	if r.Seq <= w.lastSeq {
		return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, r.Seq, w.lastSeq)
	}

	start := w.current.offset
	if err := w.current.append(encodeFrame(r)); err != nil {
		if tErr := w.current.truncate(start); tErr != nil {
			w.failed = fmt.Errorf("rollback after %v: %w", err, tErr)
			return fmt.Errorf("%w: %v", ErrFailed, w.failed)
		}
		return err
	}
	w.lastSeq = r.Seq

	if w.syncWrites {
		if err := w.current.sync(); err != nil {
			w.failed = err
			return fmt.Errorf("%w: seq %d: %v", ErrNotDurable, r.Seq, err)
		}
	}

	if w.shouldRotate() {
		return w.rotate()
	}
	return nil
}

func (w *WAL) shouldRotate() bool {
	if w.current.offset >= w.segSize {
		return true
	}
	return w.segDuration > 0 && time.Since(w.lastRotate) >= w.segDuration
}

// rotate seals the current segment and moves to the next one. The record
// that triggered it is already written, so failing to open the next
// segment only keeps the current one in use.
func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		w.failed = err
		return fmt.Errorf("%w: seal %s: %v", ErrNotDurable, w.current.path, err)
	}

	next, err := openSegment(w.dir, w.current.index+1)
	if err != nil {
		w.log.WithFields(logrus.Fields{
			"segment": w.current.path,
			"error":   err,
		}).Warn("segment rotation failed, staying on current segment")
		w.lastRotate = time.Now()
		return nil
	}

	if err := w.current.close(); err != nil {
		w.log.WithFields(logrus.Fields{"segment": w.current.path, "error": err}).Warn("closing sealed segment")
	}
	w.current = next
	w.lastRotate = time.Now()
	return nil
}

// LastSeq is the sequence of the newest record written.
func (w *WAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

func (w *WAL) Dir() string { return w.dir }

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.current.sync(); err != nil {
		_ = w.current.close()
		return err
	}
	return w.current.close()
}

// TruncateBefore removes every closed segment whose records all have a
// sequence <= seq. The open segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	files, err := listSegments(w.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range files {
		if path == w.current.path {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
