package entry

import (
	"bufio"
	"io"
	"os"
)

// scanSegment walks a segment and returns the length of its intact prefix
// and the highest sequence in it. A torn tail ends the scan without error.
func scanSegment(path string) (validLen int64, maxSeq uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := readFrame(r)
		if err != nil {
			if err == io.EOF || err == errTorn {
				return validLen, maxSeq, nil
			}
			return validLen, maxSeq, err
		}
		validLen += int64(headerSize + len(rec.Data) + trailerSize)
		if rec.Seq > maxSeq {
			maxSeq = rec.Seq
		}
	}
}

// maxSeqInSegment is used for snapshot-based truncation only.
func maxSeqInSegment(path string) (uint64, error) {
	_, max, err := scanSegment(path)
	return max, err
}
