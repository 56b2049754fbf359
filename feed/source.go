package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"

	"github.com/subwave-io/subwave/cfg"
)

// Source yields raw change-event payloads from a broker.
type Source interface {
	// Next blocks until a payload arrives or ctx is done.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// SourceFactory is a function that creates a Source from the feed
// configuration.
type SourceFactory func(cfg.FeedConfiguration) (Source, error)

var (
	sourceFactories = make(map[cfg.FeedSourceType]SourceFactory)
	factoryMu       sync.RWMutex
)

// RegisterSource registers a source factory for a type.
func RegisterSource(sourceType cfg.FeedSourceType, factory SourceFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sourceFactories[sourceType] = factory
}

// NewSource creates a source based on the configuration.
func NewSource(config cfg.FeedConfiguration) (Source, error) {
	factoryMu.RLock()
	factory, exists := sourceFactories[config.Source]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown feed source: %s", config.Source)
	}

	return factory(config)
}

func init() {
	RegisterSource(cfg.FeedNATS, newNATSSource)
	RegisterSource(cfg.FeedKafka, newKafkaSource)
}

// natsSource consumes change events from a NATS subject.
type natsSource struct {
	conn *nats.Conn
	sub  *nats.Subscription
	ch   chan *nats.Msg
}

func newNATSSource(config cfg.FeedConfiguration) (Source, error) {
	conn, err := nats.Connect(config.NATS.URL, nats.Name("subwave-feed"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	ch := make(chan *nats.Msg, 256)
	sub, err := conn.ChanSubscribe(config.NATS.Subject, ch)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to %q: %w", config.NATS.Subject, err)
	}

	return &natsSource{conn: conn, sub: sub, ch: ch}, nil
}

func (s *natsSource) Next(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-s.ch:
		return msg.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *natsSource) Close() error {
	err := s.sub.Unsubscribe()
	s.conn.Close()
	return err
}

// kafkaSource consumes change events from a Kafka topic.
type kafkaSource struct {
	reader *kafka.Reader
}

func newKafkaSource(config cfg.FeedConfiguration) (Source, error) {
	if len(config.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka feed requires at least one broker")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: config.Kafka.Brokers,
		Topic:   config.Kafka.Topic,
		GroupID: config.Kafka.GroupID,
	})
	return &kafkaSource{reader: reader}, nil
}

func (s *kafkaSource) Next(ctx context.Context) ([]byte, error) {
	msg, err := s.reader.ReadMessage(ctx)
	if err != nil {
		return nil, err
	}
	return msg.Value, nil
}

func (s *kafkaSource) Close() error {
	return s.reader.Close()
}
