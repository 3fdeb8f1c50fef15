package cart

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// NoticeSource: операция, отказ которой породил уведомление.
type NoticeSource string

const (
	NoticeSourceInitialize  NoticeSource = "initialize"
	NoticeSourceRefresh     NoticeSource = "refresh"
	NoticeSourceAdd         NoticeSource = "add"
	NoticeSourceSetQuantity NoticeSource = "set_quantity"
)

// Notice: одноразовое уведомление об отказе. Показ и автоматическое скрытие
// остаются на стороне подписчика.
type Notice struct {
	ID     string
	Source NoticeSource
	// Target заполнен для отказов мутаций.
	Target  *domain.TargetKey
	Kind    domain.ErrorKind
	Message string
	Err     error
	At      time.Time
}

// State: то, что получает подписчик при каждом изменении.
type State struct {
	// Snapshot равен nil, пока корзина неизвестна (показывать ноль/пусто).
	Snapshot *domain.CartSnapshot
	// Pending: незавершённые мутации, отсортированные по ключу цели.
	Pending []domain.PendingMutation
	// Notice присутствует ровно в одном уведомлении на каждый отказ.
	Notice *Notice
	// Version растёт с каждым изменением состояния.
	Version uint64
	// UpdatedAt: момент установки текущего снимка.
	UpdatedAt time.Time
}

// ItemCount возвращает число товаров или 0, если корзина неизвестна.
func (s State) ItemCount() int {
	if s.Snapshot == nil {
		return 0
	}
	return s.Snapshot.ItemCount
}

// IsPending проверяет, есть ли незавершённая мутация для цели.
func (s State) IsPending(key domain.TargetKey) bool {
	_, ok := s.PendingFor(key)
	return ok
}

// PendingFor возвращает незавершённую мутацию цели.
func (s State) PendingFor(key domain.TargetKey) (domain.PendingMutation, bool) {
	for _, p := range s.Pending {
		if p.Target == key {
			return p, true
		}
	}
	return domain.PendingMutation{}, false
}

// Listener получает состояние синхронно и не должен блокироваться.
// Add, SetQuantity, Refresh и Subscribe возвращаются только после того, как их
// состояние разослано, поэтому слушатель не должен вызывать их синхронно:
// изменения из слушателя запускаются в отдельной горутине.
type Listener func(State)
