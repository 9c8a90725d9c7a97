package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"fifobook/domain/orderbook"
	"fifobook/infra/codec"
	"fifobook/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler applies one query read at src and reports the sequence it was
// logged under. A redelivered query is answered with
// codec.ErrDuplicateDelivery.
type Handler func(ctx context.Context, src codec.Source, q orderbook.Query) (seq uint64, matches []orderbook.Match, err error)

// Consumer feeds JSON queries from one topic to the engine in offset
// order and answers each with a result record.
type Consumer struct {
	reader  MessageReader
	results *Producer
	handle  Handler
	log     *logrus.Entry
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func NewConsumer(cfg ConsumerConfig, results *Producer, handle Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewConsumerWithReader(reader, results, handle)
}

func NewConsumerWithReader(reader MessageReader, results *Producer, handle Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		results: results,
		handle:  handle,
		log:     logger.Component("kafka-consumer"),
	}
}

// Run consumes until ctx is done. A message is committed only after its
// result has been written, so a failure redelivers it; the handler
// recognises the redelivery by its position and does not apply it twice.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	var qm codec.QueryMessage
	var seq uint64
	var matches []orderbook.Match

	q, err := codec.DecodeQueryJSON(msg.Value)
	if err == nil {
		qm = codec.QueryMessageOf(q)
		src := codec.Source{Topic: msg.Topic, Partition: int32(msg.Partition), Offset: msg.Offset}
		seq, matches, err = c.handle(ctx, src, q)
	} else {
		// best effort echo of what the producer sent
		_ = json.Unmarshal(msg.Value, &qm)
	}

	if err != nil && !isQueryError(err) {
		c.log.WithFields(logrus.Fields{"offset": msg.Offset, "error": err}).Error("query not applied")
		return err
	}

	res := codec.NewResult(seq, qm, matches, err)
	value, mErr := json.Marshal(res)
	if mErr != nil {
		return mErr
	}

	key := msg.Key
	if len(key) == 0 {
		key = []byte(strconv.FormatUint(qm.OrderID, 10))
	}
	if err := c.results.Send(ctx, key, value); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"offset":  msg.Offset,
		"seq":     seq,
		"status":  res.Status,
		"matches": len(matches),
	}).Debug("query processed")
	return nil
}

// isQueryError reports rejections that belong to the query rather than
// the engine.
func isQueryError(err error) bool {
	if errors.Is(err, orderbook.ErrBookHalted) {
		return false
	}
	return errors.Is(err, orderbook.ErrOrderNotFound) ||
		errors.Is(err, orderbook.ErrInvalidQuery) ||
		errors.Is(err, codec.ErrDuplicateDelivery)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
