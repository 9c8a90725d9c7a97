package entry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Frame:
// [type:1][seq:8][time:8][len:4][payload][crc:4]
const (
	headerSize  = 1 + 8 + 8 + 4
	trailerSize = 4

	// MaxPayload bounds a single record; larger lengths mean a corrupt header.
	MaxPayload = 16 << 20
)

// Frames are checksummed with CRC-32C over header and payload.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var (
	ErrCorrupt = errors.New("wal: corrupt record")

	// errTorn marks a record cut short by a crash mid-write.
	errTorn = errors.New("wal: torn record")
)

func encodeFrame(r *Record) []byte {
	payloadLen := uint32(len(r.Data))
	buf := make([]byte, headerSize+payloadLen+trailerSize)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := crc32.Checksum(buf[:headerSize+payloadLen], castagnoli)
	binary.BigEndian.PutUint32(buf[headerSize+payloadLen:], crc)
	return buf
}

// readFrame returns io.EOF at a clean end of stream and errTorn when the
// stream ends inside a record.
func readFrame(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errTorn
		}
		return nil, err
	}

	l := binary.BigEndian.Uint32(header[17:21])
	if l > MaxPayload {
		return nil, fmt.Errorf("%w: payload length %d", ErrCorrupt, l)
	}

	data := make([]byte, l+trailerSize)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errTorn
		}
		return nil, err
	}

	payload := data[:l]
	sum := crc32.New(castagnoli)
	sum.Write(header)
	sum.Write(payload)
	if sum.Sum32() != binary.BigEndian.Uint32(data[l:]) {
		return nil, fmt.Errorf("%w: crc mismatch", ErrCorrupt)
	}

	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, nil
}
