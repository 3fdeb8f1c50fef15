package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport: ответ от backend не получен (сеть, таймаут, отмена контекста).
	ErrTransport = errors.New("cart transport error")
	// ErrBackend: ответ получен, но имеет неожиданную форму или статус.
	ErrBackend = errors.New("cart backend error")
	// ErrValidation: backend отклонил операцию по бизнес-причине (нет стока, неверный вариант).
	ErrValidation = errors.New("cart validation error")

	// Ошибка некорректного количества при добавлении (< 1).
	ErrAddQuantityInvalid = errors.New("add quantity must be at least 1")
	// Ошибка отрицательного количества для строки корзины.
	ErrLineQuantityInvalid = errors.New("line quantity must be non-negative")
	// Ошибка некорректного номера строки (нумерация с 1).
	ErrLineIndexInvalid = errors.New("line index must be positive")
	// Ошибка отсутствующего идентификатора варианта.
	ErrVariantRequired = errors.New("variant id is required")
	// ErrVariantUnavailable: выбранной комбинации опций нет или вариант распродан.
	ErrVariantUnavailable = errors.New("variant is unavailable")
	// ErrLineNotFound: строка с таким номером отсутствует в текущем снимке.
	ErrLineNotFound = errors.New("cart line not found")

	// ErrCatalogEmpty: в каталоге товара нет ни одного варианта.
	ErrCatalogEmpty = errors.New("variant catalog is empty")
	// ErrOptionDimension: номер опции выходит за пределы каталога.
	ErrOptionDimension = errors.New("option dimension out of range")
	// ErrProductNotFound: каталог товара не зарегистрирован.
	ErrProductNotFound = errors.New("product catalog not found")

	// ErrPreferenceKeyRequired: пустой ключ настройки.
	ErrPreferenceKeyRequired = errors.New("preference key is required")
	// ErrPreferenceNotFound: настройка с таким ключом не сохранена.
	ErrPreferenceNotFound = errors.New("preference not found")
)

// ErrorKind классифицирует ошибки удалённой корзины.
type ErrorKind string

const (
	ErrorKindTransport  ErrorKind = "transport"
	ErrorKindBackend    ErrorKind = "backend"
	ErrorKindValidation ErrorKind = "validation"
)

// CartError описывает отказ одной удалённой операции с корзиной.
// Сопоставляется с ErrTransport/ErrBackend/ErrValidation через errors.Is.
type CartError struct {
	Kind ErrorKind
	// Op: имя операции: fetch_cart, add_item, change_line.
	Op string
	// Status: HTTP-статус ответа, 0 если ответа не было.
	Status int
	// Description: человекочитаемое описание от backend (для validation).
	Description string
	Err         error
}

func (e *CartError) Error() string {
	msg := fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CartError) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с sentinel-ошибкой своего вида.
func (e *CartError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == ErrorKindTransport
	case ErrBackend:
		return e.Kind == ErrorKindBackend
	case ErrValidation:
		return e.Kind == ErrorKindValidation
	}
	return false
}

// NewTransportError оборачивает сетевую ошибку операции.
func NewTransportError(op string, err error) *CartError {
	return &CartError{Kind: ErrorKindTransport, Op: op, Err: err}
}

// NewBackendError описывает некорректный ответ backend.
func NewBackendError(op string, status int, err error) *CartError {
	return &CartError{Kind: ErrorKindBackend, Op: op, Status: status, Err: err}
}

// NewValidationError описывает бизнес-отказ с описанием от backend.
func NewValidationError(op string, status int, description string) *CartError {
	return &CartError{Kind: ErrorKindValidation, Op: op, Status: status, Description: description}
}

// Describe возвращает текст, пригодный для показа покупателю.
func Describe(err error) string {
	var cartErr *CartError
	if errors.As(err, &cartErr) {
		if cartErr.Description != "" {
			return cartErr.Description
		}
		switch cartErr.Kind {
		case ErrorKindTransport:
			return "Unable to reach the store. Check your connection and try again."
		case ErrorKindBackend:
			return "The store returned an unexpected response. Please try again."
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsValidation проверяет, является ли ошибка бизнес-отказом backend.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
