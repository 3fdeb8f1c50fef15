package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
)

// DefaultQueueSize: ёмкость очереди событий между store и Kafka.
const DefaultQueueSize = 256

// EventSender отправляет событие в topic.
type EventSender interface {
	PublishEvent(topic, key string, eventType EventType, event any) error
}

type queuedEvent struct {
	eventType EventType
	payload   any
}

// CartPublisher слушает cart.Store и публикует события корзины в Kafka.
// Слушатель не блокируется: при переполнении очереди событие отбрасывается.
type CartPublisher struct {
	sender      EventSender
	topic       string
	dlqTopic    string
	sessionID   string
	maxAttempts uint
	retryDelay  time.Duration
	logger      *log.Entry

	queue       chan queuedEvent
	lastUpdated time.Time
	dropped     uint64
}

// PublisherOption настраивает CartPublisher.
type PublisherOption func(*CartPublisher)

// WithTopic задаёт topic (по умолчанию TopicCartEvents).
func WithTopic(topic string) PublisherOption {
	return func(p *CartPublisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithDeadLetterTopic задаёт topic для событий, исчерпавших попытки;
// пустая строка отключает отправку в DLQ.
func WithDeadLetterTopic(topic string) PublisherOption {
	return func(p *CartPublisher) {
		p.dlqTopic = topic
	}
}

// WithQueueSize задаёт ёмкость очереди.
func WithQueueSize(size int) PublisherOption {
	return func(p *CartPublisher) {
		if size > 0 {
			p.queue = make(chan queuedEvent, size)
		}
	}
}

// WithMaxAttempts задаёт число попыток отправки одного события.
func WithMaxAttempts(attempts uint) PublisherOption {
	return func(p *CartPublisher) {
		if attempts > 0 {
			p.maxAttempts = attempts
		}
	}
}

// WithRetryDelay задаёт начальную задержку между попытками.
func WithRetryDelay(d time.Duration) PublisherOption {
	return func(p *CartPublisher) {
		if d > 0 {
			p.retryDelay = d
		}
	}
}

// WithPublisherLogger задаёт logger.
func WithPublisherLogger(logger *log.Entry) PublisherOption {
	return func(p *CartPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewCartPublisher создаёт паблишер; sessionID используется как ключ сообщений.
func NewCartPublisher(sender EventSender, sessionID string, opts ...PublisherOption) *CartPublisher {
	p := &CartPublisher{
		sender:      sender,
		topic:       TopicCartEvents,
		dlqTopic:    TopicDeadLetterQueue,
		sessionID:   sessionID,
		maxAttempts: 3,
		retryDelay:  200 * time.Millisecond,
		logger:      log.WithField("component", "kafka-cart-publisher"),
		queue:       make(chan queuedEvent, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Listen: слушатель для cart.Store.Subscribe. cart.updated публикуется только
// при установке нового снимка, изменения pending-маркеров пропускаются.
func (p *CartPublisher) Listen(state cart.State) {
	if state.Notice != nil {
		p.enqueue(EventTypeMutationFailed, NewMutationFailedEvent(p.sessionID, state.Notice))
	}
	if state.Snapshot == nil || state.UpdatedAt.Equal(p.lastUpdated) {
		return
	}
	p.lastUpdated = state.UpdatedAt
	p.enqueue(EventTypeCartUpdated, NewCartUpdatedEvent(p.sessionID, state))
}

func (p *CartPublisher) enqueue(eventType EventType, payload any) {
	select {
	case p.queue <- queuedEvent{eventType: eventType, payload: payload}:
	default:
		p.dropped++
		p.logger.WithFields(log.Fields{
			"event_type": eventType,
			"dropped":    p.dropped,
		}).Warn("cart event queue is full, dropping event")
	}
}

// Run отправляет события из очереди до отмены ctx. Оставшиеся в очереди
// события при остановке не отправляются.
func (p *CartPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-p.queue:
			if err := p.publish(ctx, event); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				p.logger.WithError(err).WithField("event_type", event.eventType).
					Error("failed to publish cart event")
				p.deadLetter(event, err)
			}
		}
	}
}

func (p *CartPublisher) publish(ctx context.Context, event queuedEvent) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.retryDelay
	policy.MaxInterval = 10 * p.retryDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, p.sender.PublishEvent(p.topic, p.sessionID, event.eventType, event.payload)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(p.maxAttempts),
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.eventType, err)
	}
	return nil
}

// deadLetter отправляет событие в DLQ одной попыткой; повторная отправка
// выполняется утилитой dlq-reprocess.
func (p *CartPublisher) deadLetter(event queuedEvent, cause error) {
	if p.dlqTopic == "" {
		return
	}
	dlq, err := NewDeadLetterEvent(p.topic, p.sessionID, event.eventType, event.payload, cause)
	if err == nil {
		err = p.sender.PublishEvent(p.dlqTopic, p.sessionID, EventTypeDeadLetter, dlq)
	}
	if err != nil {
		p.logger.WithError(err).WithField("event_type", event.eventType).
			Error("failed to send cart event to dead letter queue")
	}
}
