// Package widget содержит кнопки «в корзину»: форму товара и карточку карусели.
// Каждый виджет работает с cart.Store напрямую и отражает жизненный цикл своей
// мутации (loading/disabled) только в собственном интерфейсе.
package widget

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	LabelAddToCart   = "Add to cart"
	LabelSoldOut     = "Sold out"
	LabelUnavailable = "Unavailable"
	LabelAdded       = "Added"
)

// Button: поверхность кнопки добавления в корзину.
type Button interface {
	SetDisabled(disabled bool)
	SetLoading(loading bool)
	SetLabel(label string)
}

// Store: часть cart.Store, нужная виджетам.
type Store interface {
	Add(ctx context.Context, variantID domain.VariantID, quantity int) error
	Subscribe(listener cart.Listener) func()
	State() cart.State
}

// DrawerOpener открывает панель корзины после успешного добавления.
type DrawerOpener interface {
	Open(ctx context.Context) error
}

// ButtonState: снимок состояния StateButton.
type ButtonState struct {
	Disabled bool   `json:"disabled"`
	Loading  bool   `json:"loading"`
	Label    string `json:"label"`
}

// StateButton хранит состояние кнопки для внешнего слоя отображения.
type StateButton struct {
	mu    sync.RWMutex
	state ButtonState
}

// NewStateButton создаёт кнопку с меткой «Add to cart».
func NewStateButton() *StateButton {
	return &StateButton{state: ButtonState{Label: LabelAddToCart}}
}

func (b *StateButton) SetDisabled(disabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Disabled = disabled
}

func (b *StateButton) SetLoading(loading bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Loading = loading
}

func (b *StateButton) SetLabel(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Label = label
}

// State возвращает текущее состояние кнопки.
func (b *StateButton) State() ButtonState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}
