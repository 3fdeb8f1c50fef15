package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func deadLetter(t *testing.T, key string, eventType kafka.EventType, payload any) []byte {
	t.Helper()
	event, err := kafka.NewDeadLetterEvent(kafka.TopicCartEvents, key, eventType, payload, errors.New("kafka: client has run out of available brokers"))
	require.NoError(t, err)
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return raw
}

func updated(session string, items int) *kafka.CartUpdatedEvent {
	return &kafka.CartUpdatedEvent{EventType: kafka.EventTypeCartUpdated, SessionID: session, ItemCount: items, LineCount: 1, Version: 3}
}

func failed(session string) *kafka.MutationFailedEvent {
	return &kafka.MutationFailedEvent{EventType: kafka.EventTypeMutationFailed, SessionID: session, NoticeID: "n-1", Source: "add", Kind: "validation", Message: "Sold out"}
}

// fakeBroker отдаёт заранее заданные записи DLQ по партициям; смещения
// записей назначаются подряд с нуля.
type fakeBroker struct {
	records       map[int32][][]byte
	partitionsErr error
	offsetErr     error
	consumeErr    error
	consumedFrom  map[int32]int64
	closed        bool
}

func newFakeBroker(records map[int32][][]byte) *fakeBroker {
	return &fakeBroker{records: records, consumedFrom: map[int32]int64{}}
}

func (b *fakeBroker) Partitions(string) ([]int32, error) {
	if b.partitionsErr != nil {
		return nil, b.partitionsErr
	}
	partitions := make([]int32, 0, len(b.records))
	for p := range b.records {
		partitions = append(partitions, p)
	}
	return partitions, nil
}

func (b *fakeBroker) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if b.offsetErr != nil {
		return 0, b.offsetErr
	}
	if at == sarama.OffsetOldest {
		return 0, nil
	}
	return int64(len(b.records[partition])), nil
}

func (b *fakeBroker) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	if b.consumeErr != nil {
		return nil, b.consumeErr
	}
	b.consumedFrom[partition] = offset
	records := b.records[partition]
	pc := &fakePartition{
		messages: make(chan *sarama.ConsumerMessage, len(records)),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	for i := offset; i < int64(len(records)); i++ {
		pc.messages <- &sarama.ConsumerMessage{Partition: partition, Offset: i, Value: records[i]}
	}
	return pc, nil
}

func (b *fakeBroker) Close() error {
	b.closed = true
	return nil
}

type fakePartition struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (p *fakePartition) Messages() <-chan *sarama.ConsumerMessage { return p.messages }
func (p *fakePartition) Errors() <-chan *sarama.ConsumerError     { return p.errors }
func (p *fakePartition) Close() error                             { return nil }

func testConfig() config {
	return config{
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicCartEvents,
		limit:       100,
		idleTimeout: 20 * time.Millisecond,
	}
}

func TestDecodeDeadLetter_ValidatesCartEvent(t *testing.T) {
	candidate, err := decodeDeadLetter(deadLetter(t, "session-1", kafka.EventTypeMutationFailed, failed("session-1")), "fallback")
	require.NoError(t, err)
	require.Equal(t, kafka.TopicCartEvents, candidate.topic)
	require.Equal(t, kafka.EventTypeMutationFailed, candidate.event.Type())
	require.Equal(t, "session-1", candidate.event.Key())

	_, err = decodeDeadLetter(deadLetter(t, "session-1", "order.created", updated("session-1", 1)), "fallback")
	require.ErrorIs(t, err, kafka.ErrUnknownEventType)

	_, err = decodeDeadLetter(deadLetter(t, "session-1", kafka.EventTypeCartUpdated, updated("", 1)), "fallback")
	require.ErrorIs(t, err, kafka.ErrInvalidEvent)

	_, err = decodeDeadLetter(deadLetter(t, "session-2", kafka.EventTypeCartUpdated, updated("session-1", 1)), "fallback")
	require.ErrorIs(t, err, kafka.ErrInvalidEvent, "envelope key must match the session")

	for _, raw := range []string{`{"foo":"bar"}`, `not-json`} {
		_, err = decodeDeadLetter([]byte(raw), "fallback")
		require.ErrorIs(t, err, errNotDeadLetter)
	}
}

func TestDecodeDeadLetter_FallbackTopic(t *testing.T) {
	raw := []byte(`{"original_key":"s","original_event_type":"cart.updated","original_value":"{\"session_id\":\"s\",\"item_count\":1,\"line_count\":1}"}`)

	candidate, err := decodeDeadLetter(raw, "fallback-topic")
	require.NoError(t, err)
	require.Equal(t, "fallback-topic", candidate.topic)
}

func TestReplayer_DryRunCountsVerdicts(t *testing.T) {
	b := newFakeBroker(map[int32][][]byte{
		0: {
			deadLetter(t, "session-1", kafka.EventTypeCartUpdated, updated("session-1", 2)),
			[]byte(`{"foo":"bar"}`),
			deadLetter(t, "session-1", "order.created", updated("session-1", 2)),
		},
		1: {
			deadLetter(t, "session-2", kafka.EventTypeMutationFailed, failed("session-2")),
		},
	})

	stats, err := newReplayer(testConfig(), b, nil, quietLogger()).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, stats.scanned)
	require.Equal(t, 2, stats.replayed)
	require.Equal(t, 1, stats.foreign)
	require.Equal(t, 1, stats.rejected)
	require.Equal(t, 1, stats.byType[kafka.EventTypeCartUpdated])
	require.Equal(t, 1, stats.byType[kafka.EventTypeMutationFailed])
}

func TestReplayer_ExecuteRestoresKeyAndHeader(t *testing.T) {
	b := newFakeBroker(map[int32][][]byte{
		0: {
			deadLetter(t, "session-1", kafka.EventTypeCartUpdated, updated("session-1", 2)),
			deadLetter(t, "session-1", "order.created", updated("session-1", 2)),
		},
	})
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != kafka.TopicCartEvents {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "session-1" {
			return fmt.Errorf("unexpected key %s", key)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != string(kafka.EventTypeCartUpdated) {
			return fmt.Errorf("unexpected headers %+v", msg.Headers)
		}
		value, _ := msg.Value.Encode()
		_, err := kafka.DecodeCartEvent(kafka.EventTypeCartUpdated, value)
		return err
	})

	cfg := testConfig()
	cfg.execute = true
	stats, err := newReplayer(cfg, b, producer, quietLogger()).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.replayed)
	require.Equal(t, 1, stats.rejected)
	require.NoError(t, producer.Close())
}

func TestReplayer_Filters(t *testing.T) {
	records := map[int32][][]byte{
		0: {
			deadLetter(t, "session-1", kafka.EventTypeCartUpdated, updated("session-1", 2)),
			deadLetter(t, "session-1", kafka.EventTypeMutationFailed, failed("session-1")),
			deadLetter(t, "session-2", kafka.EventTypeCartUpdated, updated("session-2", 5)),
		},
	}

	cfg := testConfig()
	cfg.session = "session-1"
	cfg.eventType = kafka.EventTypeCartUpdated
	stats, err := newReplayer(cfg, newFakeBroker(records), nil, quietLogger()).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.replayed)
	require.Equal(t, 2, stats.filtered)
}

func TestReplayer_LimitAndFromNewest(t *testing.T) {
	records := map[int32][][]byte{}
	for p := int32(0); p < 2; p++ {
		for i := 0; i < 5; i++ {
			records[p] = append(records[p], deadLetter(t, "s", kafka.EventTypeCartUpdated, updated("s", i+1)))
		}
	}

	cfg := testConfig()
	cfg.limit = 3
	cfg.fromNewest = true
	b := newFakeBroker(records)
	stats, err := newReplayer(cfg, b, nil, quietLogger()).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.scanned)
	require.Equal(t, map[int32]int64{0: 2}, b.consumedFrom, "only partition 0 is read, from newest-limit")
}

func TestReplayer_Errors(t *testing.T) {
	records := map[int32][][]byte{0: {deadLetter(t, "s", kafka.EventTypeCartUpdated, updated("s", 1))}}
	cfg := testConfig()

	b := newFakeBroker(records)
	b.partitionsErr = errors.New("metadata")
	_, err := newReplayer(cfg, b, nil, quietLogger()).Run(context.Background())
	require.ErrorContains(t, err, "metadata")

	b = newFakeBroker(records)
	b.offsetErr = errors.New("offset")
	_, err = newReplayer(cfg, b, nil, quietLogger()).Run(context.Background())
	require.ErrorContains(t, err, "oldest offset")

	b = newFakeBroker(records)
	b.consumeErr = errors.New("consume")
	_, err = newReplayer(cfg, b, nil, quietLogger()).Run(context.Background())
	require.ErrorContains(t, err, "consume partition 0")

	execute := cfg
	execute.execute = true
	_, err = newReplayer(execute, newFakeBroker(records), nil, quietLogger()).Run(context.Background())
	require.ErrorContains(t, err, "producer is required")

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	_, err = newReplayer(execute, newFakeBroker(records), producer, quietLogger()).Run(context.Background())
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}

func TestReplayer_IdleAndCancel(t *testing.T) {
	// Смещения обещают две записи, но партиция молчит: срабатывает idle.
	silent := &silentBroker{fakeBroker: newFakeBroker(map[int32][][]byte{0: {[]byte("{}"), []byte("{}")}})}
	stats, err := newReplayer(testConfig(), silent, nil, quietLogger()).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.scanned)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newReplayer(testConfig(), silent, nil, quietLogger()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

type silentBroker struct {
	*fakeBroker
}

func (b *silentBroker) ConsumePartition(string, int32, int64) (partitionConsumer, error) {
	return &fakePartition{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}, nil
}

func TestRun_ClosesConnections(t *testing.T) {
	old := connect
	defer func() { connect = old }()

	connect = func(config) (broker, sarama.SyncProducer, error) {
		return nil, nil, errors.New("dial failed")
	}
	require.ErrorContains(t, run(context.Background(), testConfig()), "dial failed")

	b := newFakeBroker(map[int32][][]byte{0: {deadLetter(t, "s", kafka.EventTypeCartUpdated, updated("s", 1))}})
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	connect = func(config) (broker, sarama.SyncProducer, error) {
		return b, producer, nil
	}
	cfg := testConfig()
	cfg.execute = true
	require.NoError(t, run(context.Background(), cfg))
	require.True(t, b.closed)
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-brokers=broker-1:9092, ,broker-2:9092",
		"-limit=10",
		"-execute",
		"-from-newest",
		"-idle-timeout=3s",
		"-session= session-1 ",
		"-event-type=cart.mutation_failed",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.brokers)
	require.Equal(t, 10, cfg.limit)
	require.True(t, cfg.execute)
	require.True(t, cfg.fromNewest)
	require.Equal(t, 3*time.Second, cfg.idleTimeout)
	require.Equal(t, "session-1", cfg.session)
	require.Equal(t, kafka.EventTypeMutationFailed, cfg.eventType)

	cfg, err = parseConfig(nil, func(key string) string {
		if key == "KAFKA_BROKERS" {
			return "kafka:9092"
		}
		return ""
	})
	require.NoError(t, err)
	require.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	require.Equal(t, kafka.TopicCartEvents, cfg.targetTopic)
	require.False(t, cfg.execute, "dry-run is the default")
}

func TestParseConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-brokers="}, "kafka brokers are required"},
		{[]string{"-brokers=b:9092", "-source-topic="}, "source-topic is required"},
		{[]string{"-brokers=b:9092", "-target-topic="}, "target-topic is required"},
		{[]string{"-brokers=b:9092", "-target-topic=" + kafka.TopicDeadLetterQueue}, "must differ"},
		{[]string{"-brokers=b:9092", "-limit=0"}, "limit must be > 0"},
		{[]string{"-brokers=b:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
		{[]string{"-brokers=b:9092", "-event-type=cart.dead_letter"}, "not a replayable cart event"},
		{[]string{"-limit=many"}, "invalid value"},
	}

	for _, tt := range tests {
		_, err := parseConfig(tt.args, nil)
		require.ErrorContains(t, err, tt.want, "args %v", tt.args)
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.NotZero(t, exitErr.ExitCode())
}
