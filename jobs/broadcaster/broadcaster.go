package broadcaster

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"fifobook/infra/outbox"
	"fifobook/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// Outbox is the part of the outbox store the broadcaster drives.
type Outbox interface {
	ScanByState(state outbox.State, fn func(outbox.Key, outbox.Record) error) error
	MarkSent(outbox.Key) error
	MarkAcked(outbox.Key) error
	MarkFailed(outbox.Key) error
}

type Broadcaster struct {
	box        Outbox
	producer   sarama.SyncProducer
	topic      string
	interval   time.Duration
	maxRetries uint32
	log        *logrus.Entry
}

// Event is the JSON value published for every match.
type Event struct {
	V           int    `json:"v"`
	Type        string `json:"type"`
	ID          string `json:"id"`
	Seq         uint64 `json:"seq"`
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	Time        int64  `json:"ts"`
}

const DefaultMaxRetries = 10

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	box *outbox.Outbox,
	brokers []string,
	topic string,
	interval time.Duration,
) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(box, producer, topic, interval), nil
}

func NewWithProducer(box Outbox, producer sarama.SyncProducer, topic string, interval time.Duration) *Broadcaster {
	return &Broadcaster{
		box:        box,
		producer:   producer,
		topic:      topic,
		interval:   interval,
		maxRetries: DefaultMaxRetries,
		log:        logger.Component("broadcaster"),
	}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

func (b *Broadcaster) Start(ctx context.Context) {
	b.log.WithField("topic", b.topic).Info("started")

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := b.PublishOnce(); err != nil {
					b.log.WithError(err).Warn("publish round stopped")
				}
			}
		}
	}()
}

// ------------------------------------------------
// PUBLISH LOGIC
// ------------------------------------------------

type pending struct {
	key outbox.Key
	rec outbox.Record
}

// PublishOnce sends every NEW or SENT record in match order. SENT records
// were interrupted mid-publish and are sent again. A failed send ends the
// round so later matches never overtake it.
func (b *Broadcaster) PublishOnce() (int, error) {
	var queue []pending
	collect := func(k outbox.Key, rec outbox.Record) error {
		queue = append(queue, pending{key: k, rec: rec})
		return nil
	}
	if err := b.box.ScanByState(outbox.StateSent, collect); err != nil {
		return 0, err
	}
	if err := b.box.ScanByState(outbox.StateNew, collect); err != nil {
		return 0, err
	}
	sort.Slice(queue, func(i, j int) bool {
		ki, kj := queue[i].key, queue[j].key
		if ki.Seq != kj.Seq {
			return ki.Seq < kj.Seq
		}
		return ki.Index < kj.Index
	})

	sent := 0
	for _, p := range queue {
		if err := b.publish(p); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (b *Broadcaster) publish(p pending) error {
	// 1. mark SENT (idempotent)
	if err := b.box.MarkSent(p.key); err != nil {
		return err
	}

	value, err := json.Marshal(eventOf(p.rec))
	if err != nil {
		return err
	}

	// 2. publish to Kafka
	_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(p.rec.Event.EventID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		fields := logrus.Fields{"key": p.key.String(), "retries": p.rec.Retries + 1, "error": err}
		if p.rec.Retries+1 >= b.maxRetries {
			b.log.WithFields(fields).Error("giving up on match event")
			if mErr := b.box.MarkFailed(p.key); mErr != nil {
				return mErr
			}
		} else {
			b.log.WithFields(fields).Warn("publish failed, will retry")
		}
		return err
	}

	// 3. mark ACKED
	return b.box.MarkAcked(p.key)
}

func eventOf(rec outbox.Record) Event {
	e := rec.Event
	return Event{
		V:           1,
		Type:        "match",
		ID:          e.EventID,
		Seq:         e.Seq,
		BuyOrderID:  uint64(e.Match.BuyID),
		SellOrderID: uint64(e.Match.SellID),
		Price:       e.Match.Price,
		Quantity:    e.Match.Qty,
		Time:        e.Time,
	}
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
