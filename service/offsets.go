package service

import (
	"sort"

	"fifobook/infra/codec"
)

type partitionKey struct {
	topic     string
	partition int32
}

// Offsets records, per query topic partition, the highest offset whose
// query is in the entry WAL. Partitions deliver in offset order, so any
// offset at or below it is a redelivery.
type Offsets struct {
	last map[partitionKey]int64
}

func NewOffsets() *Offsets {
	return &Offsets{last: make(map[partitionKey]int64)}
}

func (o *Offsets) Applied(src codec.Source) bool {
	last, ok := o.last[partitionKey{src.Topic, src.Partition}]
	return ok && src.Offset <= last
}

func (o *Offsets) Mark(src codec.Source) {
	k := partitionKey{src.Topic, src.Partition}
	if last, ok := o.last[k]; !ok || src.Offset > last {
		o.last[k] = src.Offset
	}
}

// List returns the tracked positions sorted by topic and partition.
func (o *Offsets) List() []codec.Source {
	out := make([]codec.Source, 0, len(o.last))
	for k, off := range o.last {
		out = append(out, codec.Source{Topic: k.topic, Partition: k.partition, Offset: off})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].Partition < out[j].Partition
	})
	return out
}
