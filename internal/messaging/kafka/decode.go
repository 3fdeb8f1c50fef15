package kafka

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var (
	// ErrUnknownEventType: тип события не относится к корзине.
	ErrUnknownEventType = errors.New("unknown cart event type")
	// ErrInvalidEvent: payload не проходит проверку полей.
	ErrInvalidEvent = errors.New("invalid cart event")
)

// CartEvent: событие корзины, прочитанное из topic или DLQ.
type CartEvent interface {
	Type() EventType
	// Key: ключ партиционирования (session id).
	Key() string
	Validate() error
}

// Type возвращает EventTypeCartUpdated.
func (e *CartUpdatedEvent) Type() EventType { return EventTypeCartUpdated }

// Key возвращает session id.
func (e *CartUpdatedEvent) Key() string { return e.SessionID }

// Validate проверяет счётчики и session id.
func (e *CartUpdatedEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.SessionID) == "":
		return fmt.Errorf("%w: %s without session_id", ErrInvalidEvent, e.Type())
	case e.ItemCount < 0 || e.LineCount < 0:
		return fmt.Errorf("%w: negative counts item_count=%d line_count=%d", ErrInvalidEvent, e.ItemCount, e.LineCount)
	case e.LineCount > e.ItemCount:
		return fmt.Errorf("%w: %d lines for %d items", ErrInvalidEvent, e.LineCount, e.ItemCount)
	}
	return nil
}

// Type возвращает EventTypeMutationFailed.
func (e *MutationFailedEvent) Type() EventType { return EventTypeMutationFailed }

// Key возвращает session id.
func (e *MutationFailedEvent) Key() string { return e.SessionID }

// Validate проверяет идентификатор уведомления и класс ошибки.
func (e *MutationFailedEvent) Validate() error {
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("%w: %s without session_id", ErrInvalidEvent, e.Type())
	}
	if e.NoticeID == "" {
		return fmt.Errorf("%w: notice_id is required", ErrInvalidEvent)
	}
	switch domain.ErrorKind(e.Kind) {
	case domain.ErrorKindTransport, domain.ErrorKindBackend, domain.ErrorKindValidation:
		return nil
	default:
		return fmt.Errorf("%w: unknown error kind %q", ErrInvalidEvent, e.Kind)
	}
}

// DecodeCartEvent разбирает payload события заданного типа и проверяет его.
// event_type внутри payload, если указан, должен совпадать с eventType.
func DecodeCartEvent(eventType EventType, raw []byte) (CartEvent, error) {
	var event CartEvent
	switch eventType {
	case EventTypeCartUpdated:
		event = &CartUpdatedEvent{}
	case EventTypeMutationFailed:
		event = &MutationFailedEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	if err := json.Unmarshal(raw, event); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidEvent, eventType, err)
	}
	if declared := declaredType(event); declared != "" && declared != eventType {
		return nil, fmt.Errorf("%w: payload declares %s, envelope says %s", ErrInvalidEvent, declared, eventType)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

func declaredType(event CartEvent) EventType {
	switch e := event.(type) {
	case *CartUpdatedEvent:
		return e.EventType
	case *MutationFailedEvent:
		return e.EventType
	}
	return ""
}
