package entry

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

type ReplayHandler func(*Record) error

// Replay feeds every record of dir to fn in sequence order and returns the
// last sequence seen. A torn record is tolerated only at the end of the
// newest segment.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	for i, path := range files {
		lastSeq, err = replaySegment(path, i == len(files)-1, lastSeq, fn)
		if err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}

func replaySegment(path string, newest bool, lastSeq uint64, fn ReplayHandler) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return lastSeq, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := readFrame(r)
		switch {
		case err == io.EOF:
			return lastSeq, nil
		case err == errTorn && newest:
			return lastSeq, nil
		case err == errTorn:
			return lastSeq, fmt.Errorf("%w: torn record inside %s", ErrCorrupt, path)
		case err != nil:
			return lastSeq, fmt.Errorf("%s: %w", path, err)
		}

		if rec.Seq <= lastSeq {
			return lastSeq, fmt.Errorf("%w: non-monotonic seq %d after %d in %s", ErrCorrupt, rec.Seq, lastSeq, path)
		}
		lastSeq = rec.Seq

		if err := fn(rec); err != nil {
			return lastSeq, err
		}
	}
}
