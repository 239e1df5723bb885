package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"saga-transaction/internal/common/logger"
	"saga-transaction/internal/domain/events"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const (
	defaultBrokerAddress = "localhost:19092"
	readTimeout          = 10 * time.Second
	writeTimeout         = 10 * time.Second
)

type kafkaEventBus struct {
	brokers   []string
	logger    logger.Logger
	writers   map[string]*kafka.Writer
	readers   map[string]*kafka.Reader
	writersMu sync.RWMutex
	readersMu sync.RWMutex
	running   bool
	mu        sync.RWMutex
}

// NewKafkaEventBus creates a Kafka-backed EventBus. Empty broker entries are ignored and
// an empty list falls back to localhost:19092.
func NewKafkaEventBus(brokers []string, l logger.Logger) EventBus {
	var cleaned []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{defaultBrokerAddress}
	}

	return &kafkaEventBus{
		brokers: cleaned,
		logger:  l,
		writers: make(map[string]*kafka.Writer),
		readers: make(map[string]*kafka.Reader),
		running: true,
	}
}

func (b *kafkaEventBus) Publish(ctx context.Context, topic string, event events.Event) error {
	b.mu.RLock()
	if !b.running {
		b.mu.RUnlock()
		return errors.New("event bus is closed")
	}
	b.mu.RUnlock()

	message, err := encodeMessage(event)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := b.getOrCreateWriter(topic).WriteMessages(writeCtx, message); err != nil {
		return pkgerrors.Wrapf(err, "failed to write message to topic %s", topic)
	}

	return nil
}

func (b *kafkaEventBus) Subscribe(ctx context.Context, topic string, handler EventHandler) error {
	return b.SubscribeWithGroupID(ctx, topic, "", handler)
}

func (b *kafkaEventBus) SubscribeWithGroupID(ctx context.Context, topic, groupID string, handler EventHandler) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return errors.New("event bus is closed")
	}

	reader := b.getOrCreateReader(topic, groupID)
	go b.consume(ctx, reader, handler)

	return nil
}

// consume commits every fetched message, including ones that fail to decode or to handle
func (b *kafkaEventBus) consume(ctx context.Context, reader *kafka.Reader, handler EventHandler) {
	for {
		if ctx.Err() != nil {
			return
		}
		b.mu.RLock()
		running := b.running
		b.mu.RUnlock()
		if !running {
			return
		}

		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		message, err := reader.FetchMessage(readCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			b.logger.Warn("Failed to fetch message", logger.Field{Key: "topic", Value: reader.Config().Topic}, logger.Field{Key: "error", Value: err})
			time.Sleep(100 * time.Millisecond)
			continue
		}

		event, err := decodeMessage(message)
		if err != nil {
			b.logger.Error("Failed to decode message", logger.Field{Key: "offset", Value: message.Offset}, logger.Field{Key: "error", Value: err})
		} else if err := handler(ctx, event); err != nil {
			b.logger.Error("Failed to handle event",
				logger.Field{Key: "event_type", Value: event.Type()},
				logger.Field{Key: "transaction_id", Value: event.AggregateID()},
				logger.Field{Key: "error", Value: err},
			)
		}

		if err := reader.CommitMessages(ctx, message); err != nil {
			b.logger.Warn("Failed to commit message", logger.Field{Key: "offset", Value: message.Offset}, logger.Field{Key: "error", Value: err})
		}
	}
}

func (b *kafkaEventBus) getOrCreateWriter(topic string) *kafka.Writer {
	b.writersMu.RLock()
	if writer, exists := b.writers[topic]; exists {
		b.writersMu.RUnlock()
		return writer
	}
	b.writersMu.RUnlock()

	b.writersMu.Lock()
	defer b.writersMu.Unlock()

	if writer, exists := b.writers[topic]; exists {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(b.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	b.writers[topic] = writer
	return writer
}

func (b *kafkaEventBus) getOrCreateReader(topic, groupID string) *kafka.Reader {
	readerKey := topic
	if groupID != "" {
		readerKey = topic + ":" + groupID
	}

	b.readersMu.RLock()
	if reader, exists := b.readers[readerKey]; exists {
		b.readersMu.RUnlock()
		return reader
	}
	b.readersMu.RUnlock()

	b.readersMu.Lock()
	defer b.readersMu.Unlock()

	if reader, exists := b.readers[readerKey]; exists {
		return reader
	}

	if groupID == "" {
		groupID = fmt.Sprintf("saga-%s-%d", topic, time.Now().Unix())
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    10e3,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})

	b.readers[readerKey] = reader
	return reader
}

func (b *kafkaEventBus) Close() error {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	var errs []error

	b.writersMu.Lock()
	for topic, writer := range b.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "failed to close writer for topic %s", topic))
		}
	}
	b.writersMu.Unlock()

	b.readersMu.Lock()
	for key, reader := range b.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "failed to close reader %s", key))
		}
	}
	b.readersMu.Unlock()

	return errors.Join(errs...)
}
