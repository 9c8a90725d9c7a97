package entry

import "time"

type RecordType uint8

const (
	RecordAdd RecordType = iota + 1
	RecordCancel
)

func (t RecordType) String() string {
	switch t {
	case RecordAdd:
		return "add"
	case RecordCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Record is one accepted query. Data holds the encoded query.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
