package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"
	"go.viam.com/test"

	"github.com/keagan/goalcut/internal/goals"
)

// fakeProducer acknowledges messages asynchronously. Messages whose produce
// order is in reject are reported as failed.
type fakeProducer struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	messages []*kafka.Message
	reject   map[int]bool
	refuse   error
	stuck    int
	closed   bool
}

func (f *fakeProducer) Produce(msg *kafka.Message, ch chan kafka.Event) error {
	if f.refuse != nil {
		return f.refuse
	}
	f.mu.Lock()
	idx := len(f.messages)
	f.messages = append(f.messages, msg)
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		report := *msg
		if f.reject[idx] {
			report.TopicPartition.Error = errors.New("broker down")
		}
		ch <- &report
	}()
	return nil
}

func (f *fakeProducer) Flush(int) int {
	f.wg.Wait()
	return f.stuck
}

func (f *fakeProducer) Close() { f.closed = true }

var testEvents = []goals.GoalEvent{
	{SequenceNumber: 1, Timestamp: 31, Confidence: 0.85, FrameIndex: 775},
	{SequenceNumber: 2, Timestamp: 91, Confidence: 0.77, FrameIndex: 2275},
}

func TestConfigValidate(t *testing.T) {
	test.That(t, Config{}.Validate(), test.ShouldBeNil)
	test.That(t, Config{Enabled: true, Topic: "goals"}.Validate(), test.ShouldNotBeNil)
	test.That(t, Config{Enabled: true, BootstrapServers: "localhost:9092"}.Validate(), test.ShouldNotBeNil)
	test.That(t, Config{Enabled: true, BootstrapServers: "localhost:9092", Topic: "goals"}.Validate(), test.ShouldBeNil)
}

func TestPublishRun(t *testing.T) {
	fake := &fakeProducer{}
	kp := newKafkaPublisher(zerolog.Nop(), fake, Config{Topic: "goals"})

	err := kp.PublishRun(context.Background(), "run-1", "match.mp4", testEvents, []string{"goal_highlight_00_1.mp4"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kp.Close(), test.ShouldBeNil)
	test.That(t, fake.closed, test.ShouldBeTrue)

	test.That(t, fake.messages, test.ShouldHaveLength, 2)
	first := fake.messages[0]
	test.That(t, *first.TopicPartition.Topic, test.ShouldEqual, "goals")
	test.That(t, string(first.Key), test.ShouldEqual, "run-1")

	var decoded map[string]interface{}
	test.That(t, json.Unmarshal(first.Value, &decoded), test.ShouldBeNil)
	test.That(t, decoded["run_id"], test.ShouldEqual, "run-1")
	test.That(t, decoded["sequence_number"], test.ShouldEqual, 1.0)
	test.That(t, decoded["timestamp_seconds"], test.ShouldEqual, 31.0)
	test.That(t, decoded["clip_key"], test.ShouldEqual, "goal_highlight_00_1.mp4")

	var second map[string]interface{}
	test.That(t, json.Unmarshal(fake.messages[1].Value, &second), test.ShouldBeNil)
	_, hasClip := second["clip_key"]
	test.That(t, hasClip, test.ShouldBeFalse)

	test.That(t, kp.Stats(), test.ShouldResemble, Stats{Sent: 2, Acked: 2})
}

func TestPublishDeliveryFailure(t *testing.T) {
	fake := &fakeProducer{reject: map[int]bool{1: true}}
	kp := newKafkaPublisher(zerolog.Nop(), fake, Config{Topic: "goals"})
	test.That(t, kp.PublishRun(context.Background(), "run-2", "a.csv", testEvents, nil), test.ShouldBeNil)
	test.That(t, kp.Close(), test.ShouldBeNil)
	test.That(t, kp.Stats(), test.ShouldResemble, Stats{Sent: 2, Acked: 1, Failed: 1})
}

func TestPublishProduceError(t *testing.T) {
	fake := &fakeProducer{refuse: errors.New("queue full")}
	kp := newKafkaPublisher(zerolog.Nop(), fake, Config{Topic: "goals"})
	err := kp.PublishRun(context.Background(), "run-3", "a.csv", testEvents, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "queue full")
	test.That(t, kp.Close(), test.ShouldBeNil)
	test.That(t, kp.Stats().Failed, test.ShouldEqual, int64(1))
}

func TestCloseReportsUndelivered(t *testing.T) {
	kp := newKafkaPublisher(zerolog.Nop(), &fakeProducer{stuck: 3}, Config{Topic: "goals"})
	err := kp.Close()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "3 messages")
}

func TestPublishCancelled(t *testing.T) {
	fake := &fakeProducer{}
	kp := newKafkaPublisher(zerolog.Nop(), fake, Config{Topic: "goals"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.That(t, kp.PublishRun(ctx, "run-4", "a.csv", testEvents, nil), test.ShouldEqual, context.Canceled)
	test.That(t, kp.Close(), test.ShouldBeNil)
	test.That(t, fake.messages, test.ShouldBeEmpty)
}
