package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/infra/config"
)

// enqueueTimeout caps how long a request waits on a full producer buffer
// before its audit event is dropped.
const enqueueTimeout = 50 * time.Millisecond

// ErrEventDropped is returned when an audit event could not be enqueued in time.
var ErrEventDropped = errors.New("kafka audit event dropped")

// Producer feeds audit events to a Sarama AsyncProducer. Delivery errors are
// logged from a background drain; request handling never waits on the broker.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	prefix   string
	dropped  atomic.Int64
	done     chan struct{}
}

// NewProducer connects to the brokers listed in cfg.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Info("kafka audit producer ready",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.Bool("async", cfg.Async),
	)
	return newProducer(producer, cfg, logger), nil
}

// saramaConfig favours throughput. With Async unset the leader must
// acknowledge each batch; with Async set nothing is awaited.
func saramaConfig(cfg config.KafkaSettings) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = "newsroom-security-edge"
	sc.Version = sarama.V3_5_0_0

	sc.Producer.RequiredAcks = sarama.WaitForLocal
	if cfg.Async {
		sc.Producer.RequiredAcks = sarama.NoResponse
	}
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Flush.Frequency = 250 * time.Millisecond
	sc.Producer.Flush.Messages = 100
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true

	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond
	return sc
}

func newProducer(producer sarama.AsyncProducer, cfg config.KafkaSettings, logger *zap.Logger) *Producer {
	p := &Producer{
		producer: producer,
		logger:   logger,
		prefix:   strings.TrimSuffix(strings.TrimSpace(cfg.TopicPrefix), "."),
		done:     make(chan struct{}),
	}
	go p.drainErrors()
	return p
}

// Enqueue hands msg to the producer, giving up after enqueueTimeout or when
// ctx ends.
func (p *Producer) Enqueue(ctx context.Context, msg *sarama.ProducerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		p.dropped.Add(1)
		return fmt.Errorf("%w: %w", ErrEventDropped, ctx.Err())
	}
}

// Dropped reports how many events were abandoned by Enqueue.
func (p *Producer) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Producer) drainErrors() {
	for {
		select {
		case perr, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			if perr != nil {
				p.logger.Warn("kafka audit delivery failed", zap.Error(perr.Err), zap.String("topic", perr.Msg.Topic))
			}
		case <-p.done:
			return
		}
	}
}

// Close flushes buffered events and stops the error drain.
func (p *Producer) Close() error {
	close(p.done)
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	p.logger.Info("kafka audit producer closed", zap.Int64("dropped_events", p.Dropped()))
	return nil
}

// TopicName prefixes eventType with the configured topic prefix once.
func (p *Producer) TopicName(eventType string) string {
	if p.prefix == "" || strings.HasPrefix(eventType, p.prefix+".") {
		return eventType
	}
	return p.prefix + "." + eventType
}
