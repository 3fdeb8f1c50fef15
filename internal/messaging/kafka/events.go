package kafka

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
)

// EventType определяет тип события
type EventType string

const (
	EventTypeCartUpdated    EventType = "cart.updated"
	EventTypeMutationFailed EventType = "cart.mutation_failed"
	EventTypeDeadLetter     EventType = "cart.dead_letter"
)

const (
	// TopicCartEvents: topic событий корзины
	TopicCartEvents = "storefront.cart.events"
	// TopicDeadLetterQueue: topic событий, которые не удалось отправить
	TopicDeadLetterQueue = "storefront.cart.events.dlq"
)

// HeaderEventType: заголовок с типом события
const HeaderEventType = "x-event-type"

// CartUpdatedEvent публикуется после установки нового снимка корзины
type CartUpdatedEvent struct {
	EventType  EventType `json:"event_type"`
	SessionID  string    `json:"session_id"`
	ItemCount  int       `json:"item_count"`
	LineCount  int       `json:"line_count"`
	TotalMinor int64     `json:"total_minor"`
	Currency   string    `json:"currency,omitempty"`
	Version    uint64    `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
}

// MutationFailedEvent публикуется для каждого уведомления об отказе
type MutationFailedEvent struct {
	EventType EventType `json:"event_type"`
	SessionID string    `json:"session_id"`
	NoticeID  string    `json:"notice_id"`
	Source    string    `json:"source"`
	Target    string    `json:"target,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCartUpdatedEvent строит событие из состояния с известным снимком
func NewCartUpdatedEvent(sessionID string, state cart.State) *CartUpdatedEvent {
	event := &CartUpdatedEvent{
		EventType: EventTypeCartUpdated,
		SessionID: sessionID,
		Version:   state.Version,
		Timestamp: time.Now().UTC(),
	}
	if state.Snapshot != nil {
		event.ItemCount = state.Snapshot.ItemCount
		event.LineCount = len(state.Snapshot.Lines)
		event.TotalMinor = state.Snapshot.TotalMinor
		event.Currency = state.Snapshot.Currency
	}
	return event
}

// NewMutationFailedEvent строит событие из уведомления
func NewMutationFailedEvent(sessionID string, notice *cart.Notice) *MutationFailedEvent {
	event := &MutationFailedEvent{
		EventType: EventTypeMutationFailed,
		SessionID: sessionID,
		NoticeID:  notice.ID,
		Source:    string(notice.Source),
		Kind:      string(notice.Kind),
		Message:   notice.Message,
		Timestamp: notice.At.UTC(),
	}
	if notice.Target != nil {
		event.Target = notice.Target.String()
	}
	return event
}

// DeadLetterEvent хранит исходное событие в виде JSON-строки, чтобы его можно
// было переотправить без знания типа
type DeadLetterEvent struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalKey       string    `json:"original_key"`
	OriginalEventType EventType `json:"original_event_type"`
	OriginalValue     string    `json:"original_value"`
	PublishError      string    `json:"publish_error"`
	FailedAt          time.Time `json:"failed_at"`
}

// NewDeadLetterEvent упаковывает неотправленное событие
func NewDeadLetterEvent(topic, key string, eventType EventType, payload any, cause error) (*DeadLetterEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal original event: %w", err)
	}
	event := &DeadLetterEvent{
		OriginalTopic:     topic,
		OriginalKey:       key,
		OriginalEventType: eventType,
		OriginalValue:     string(raw),
		FailedAt:          time.Now().UTC(),
	}
	if cause != nil {
		event.PublishError = cause.Error()
	}
	return event, nil
}
