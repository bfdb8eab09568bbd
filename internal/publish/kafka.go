// Package publish announces detected goals on a Kafka topic.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"

	"github.com/keagan/goalcut/internal/goals"
)

// Config holds the Kafka connection settings.
type Config struct {
	Enabled          bool   `yaml:"enabled"`
	BootstrapServers string `yaml:"bootstrap_servers"`
	Topic            string `yaml:"topic"`
	Acks             string `yaml:"acks"`
	FlushTimeoutMS   int    `yaml:"flush_timeout_ms"`
}

// Validate reports missing settings when publishing is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BootstrapServers == "" {
		return fmt.Errorf("kafka bootstrap_servers is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("kafka topic is required")
	}
	return nil
}

// Message is the JSON value published for every goal.
type Message struct {
	RunID  string `json:"run_id"`
	Source string `json:"source"`
	goals.GoalEvent
	ClipKey string `json:"clip_key,omitempty"`
}

// Stats counts messages by delivery state.
type Stats struct {
	Sent   int64
	Acked  int64
	Failed int64
}

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaPublisher produces one message per goal, keyed by run id so a run's
// goals stay on one partition.
type KafkaPublisher struct {
	logger       zerolog.Logger
	producer     producer
	topic        string
	flushTimeout time.Duration
	deliveries   chan kafka.Event
	done         chan struct{}
	wg           sync.WaitGroup

	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64
}

// NewKafkaPublisher connects a producer and starts draining delivery reports.
func NewKafkaPublisher(logger zerolog.Logger, cfg Config) (*KafkaPublisher, error) {
	acks := cfg.Acks
	if acks == "" {
		acks = "all"
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.BootstrapServers,
		"acks":               acks,
		"enable.idempotence": true,
		"linger.ms":          5,
		"request.timeout.ms": 30000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	kp := newKafkaPublisher(logger, p, cfg)
	kp.logger.Info().Str("servers", cfg.BootstrapServers).Msg("kafka producer initialized")
	return kp, nil
}

func newKafkaPublisher(logger zerolog.Logger, p producer, cfg Config) *KafkaPublisher {
	timeout := time.Duration(cfg.FlushTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	kp := &KafkaPublisher{
		logger:       logger.With().Str("component", "kafka").Str("topic", cfg.Topic).Logger(),
		producer:     p,
		topic:        cfg.Topic,
		flushTimeout: timeout,
		deliveries:   make(chan kafka.Event, 1024),
		done:         make(chan struct{}),
	}
	kp.wg.Add(1)
	go kp.handleDeliveryReports()
	return kp
}

func (kp *KafkaPublisher) handleDeliveryReports() {
	defer kp.wg.Done()
	for {
		select {
		case e := <-kp.deliveries:
			kp.record(e)
		case <-kp.done:
			for {
				select {
				case e := <-kp.deliveries:
					kp.record(e)
				default:
					return
				}
			}
		}
	}
}

func (kp *KafkaPublisher) record(e kafka.Event) {
	m, ok := e.(*kafka.Message)
	if !ok {
		return
	}
	if m.TopicPartition.Error != nil {
		kp.failed.Add(1)
		kp.logger.Error().Err(m.TopicPartition.Error).Str("key", string(m.Key)).Msg("delivery failed")
		return
	}
	kp.acked.Add(1)
	kp.logger.Debug().
		Int32("partition", m.TopicPartition.Partition).
		Str("offset", m.TopicPartition.Offset.String()).
		Msg("message delivered")
}

// PublishRun queues one message per event. clipKeys, when given, is indexed
// like events.
func (kp *KafkaPublisher) PublishRun(ctx context.Context, runID, source string, events []goals.GoalEvent, clipKeys []string) error {
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := Message{RunID: runID, Source: source, GoalEvent: ev}
		if i < len(clipKeys) {
			msg.ClipKey = clipKeys[i]
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to serialize goal %d: %w", ev.SequenceNumber, err)
		}

		err = kp.producer.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &kp.topic, Partition: kafka.PartitionAny},
			Key:            []byte(runID),
			Value:          payload,
			Headers: []kafka.Header{
				{Key: "sequence_number", Value: []byte(fmt.Sprint(ev.SequenceNumber))},
			},
		}, kp.deliveries)
		if err != nil {
			kp.failed.Add(1)
			return fmt.Errorf("failed to produce goal %d: %w", ev.SequenceNumber, err)
		}
		kp.sent.Add(1)
	}
	kp.logger.Info().Str("run", runID).Int("goals", len(events)).Msg("goals queued")
	return nil
}

// Stats returns the current delivery counters.
func (kp *KafkaPublisher) Stats() Stats {
	return Stats{Sent: kp.sent.Load(), Acked: kp.acked.Load(), Failed: kp.failed.Load()}
}

// Close flushes outstanding messages and shuts the producer down. It reports
// an error when messages were left undelivered.
func (kp *KafkaPublisher) Close() error {
	remaining := kp.producer.Flush(int(kp.flushTimeout.Milliseconds()))
	close(kp.done)
	kp.wg.Wait()
	kp.producer.Close()

	stats := kp.Stats()
	kp.logger.Info().
		Int64("sent", stats.Sent).
		Int64("acked", stats.Acked).
		Int64("failed", stats.Failed).
		Msg("kafka producer closed")
	if remaining > 0 {
		return fmt.Errorf("%d messages still queued after flush", remaining)
	}
	return nil
}
