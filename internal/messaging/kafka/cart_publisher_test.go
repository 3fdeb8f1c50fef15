package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type sentEvent struct {
	topic     string
	key       string
	eventType EventType
}

type recordingSender struct {
	mu       sync.Mutex
	sent     []sentEvent
	payloads []any
	failures int
	// failTopic всегда отклоняет отправку в указанный topic.
	failTopic string
}

func (s *recordingSender) PublishEvent(topic, key string, eventType EventType, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if topic == s.failTopic {
		return sarama.ErrOutOfBrokers
	}
	s.payloads = append(s.payloads, payload)
	if s.failures > 0 {
		s.failures--
		return sarama.ErrOutOfBrokers
	}
	s.sent = append(s.sent, sentEvent{topic: topic, key: key, eventType: eventType})
	return nil
}

func (s *recordingSender) lastPayload() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.payloads) == 0 {
		return nil
	}
	return s.payloads[len(s.payloads)-1]
}

func (s *recordingSender) events() []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentEvent(nil), s.sent...)
}

func runPublisher(t *testing.T, p *CartPublisher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestCartPublisher_PublishesSnapshotsAndNotices(t *testing.T) {
	sender := &recordingSender{}
	publisher := NewCartPublisher(sender, "session-1")

	installed := time.Unix(1_700_000_000, 0)
	snapshot := &domain.CartSnapshot{ItemCount: 1}

	publisher.Listen(cart.State{})
	publisher.Listen(cart.State{Snapshot: snapshot, UpdatedAt: installed, Version: 1})
	// Только pending-маркер изменился: снимок тот же.
	publisher.Listen(cart.State{Snapshot: snapshot, UpdatedAt: installed, Version: 2,
		Pending: []domain.PendingMutation{{Target: domain.VariantTarget(5)}}})
	publisher.Listen(cart.State{Snapshot: snapshot, UpdatedAt: installed, Version: 3,
		Notice: &cart.Notice{ID: "n-1", Source: cart.NoticeSourceAdd, Kind: domain.ErrorKindValidation}})

	runPublisher(t, publisher)

	require.Eventually(t, func() bool { return len(sender.events()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []sentEvent{
		{topic: TopicCartEvents, key: "session-1", eventType: EventTypeCartUpdated},
		{topic: TopicCartEvents, key: "session-1", eventType: EventTypeMutationFailed},
	}, sender.events())
}

func TestCartPublisher_RetriesFailedSend(t *testing.T) {
	sender := &recordingSender{failures: 2}
	publisher := NewCartPublisher(sender, "session-1",
		WithTopic("custom.topic"), WithRetryDelay(time.Millisecond), WithMaxAttempts(3))

	publisher.Listen(cart.State{Snapshot: &domain.CartSnapshot{ItemCount: 2}, UpdatedAt: time.Now()})
	runPublisher(t, publisher)

	require.Eventually(t, func() bool { return len(sender.events()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "custom.topic", sender.events()[0].topic)
}

func TestCartPublisher_DropsWhenQueueFull(t *testing.T) {
	sender := &recordingSender{}
	publisher := NewCartPublisher(sender, "session-1", WithQueueSize(1))

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		publisher.Listen(cart.State{Snapshot: &domain.CartSnapshot{ItemCount: i}, UpdatedAt: base.Add(time.Duration(i) * time.Second)})
	}
	require.Equal(t, uint64(2), publisher.dropped)
	require.Len(t, publisher.queue, 1)
}

func TestCartPublisher_WithSaramaProducer(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	publisher := NewCartPublisher(newProducer(mockProducer), "session-1")
	err := publisher.publish(context.Background(), queuedEvent{
		eventType: EventTypeCartUpdated,
		payload:   NewCartUpdatedEvent("session-1", cart.State{}),
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestCartPublisher_GivesUpAfterMaxAttempts(t *testing.T) {
	sender := &recordingSender{failures: 5}
	publisher := NewCartPublisher(sender, "session-1", WithRetryDelay(time.Millisecond), WithMaxAttempts(2))

	err := publisher.publish(context.Background(), queuedEvent{eventType: EventTypeCartUpdated})
	require.Error(t, err)
	require.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
	require.Equal(t, 3, sender.failures)
}

func TestCartPublisher_SendsExhaustedEventToDeadLetterQueue(t *testing.T) {
	sender := &recordingSender{failTopic: TopicCartEvents}
	publisher := NewCartPublisher(sender, "session-1", WithRetryDelay(time.Millisecond), WithMaxAttempts(2))

	publisher.Listen(cart.State{Snapshot: &domain.CartSnapshot{ItemCount: 3}, UpdatedAt: time.Now(), Version: 4})
	runPublisher(t, publisher)

	require.Eventually(t, func() bool { return len(sender.events()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, sentEvent{topic: TopicDeadLetterQueue, key: "session-1", eventType: EventTypeDeadLetter}, sender.events()[0])

	dlq, ok := sender.lastPayload().(*DeadLetterEvent)
	require.True(t, ok)
	require.Equal(t, TopicCartEvents, dlq.OriginalTopic)
	require.Equal(t, EventTypeCartUpdated, dlq.OriginalEventType)
	require.Contains(t, dlq.OriginalValue, `"item_count":3`)
	require.NotEmpty(t, dlq.PublishError)
}

func TestCartPublisher_DeadLetterDisabled(t *testing.T) {
	sender := &recordingSender{failTopic: TopicCartEvents}
	publisher := NewCartPublisher(sender, "session-1", WithDeadLetterTopic(""))

	publisher.deadLetter(queuedEvent{eventType: EventTypeCartUpdated}, errors.New("boom"))
	require.Empty(t, sender.events())
}

func TestNewDeadLetterEvent_UnsupportedPayload(t *testing.T) {
	_, err := NewDeadLetterEvent(TopicCartEvents, "session-1", EventTypeCartUpdated, make(chan int), nil)
	require.Error(t, err)
}
