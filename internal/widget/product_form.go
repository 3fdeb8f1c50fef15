package widget

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/variant"
)

// ProductForm: форма товара: следует за выбором варианта, добавляет его в
// корзину и открывает панель корзины при успехе.
type ProductForm struct {
	store  Store
	drawer DrawerOpener
	button Button
	logger *log.Entry

	mu          sync.Mutex
	view        variant.View
	quantity    int
	pending     bool
	message     string
	unsubscribe func()
}

// NewProductForm создаёт форму и подписывает её на store. drawer может быть nil.
func NewProductForm(store Store, drawer DrawerOpener, button Button, logger *log.Entry) *ProductForm {
	if logger == nil {
		logger = log.WithField("component", "product-form")
	}
	f := &ProductForm{
		store:    store,
		drawer:   drawer,
		button:   button,
		logger:   logger,
		quantity: 1,
		view:     variant.View{Unavailable: true},
	}
	f.unsubscribe = store.Subscribe(f.listen)
	return f
}

// Detach отписывает форму от store.
func (f *ProductForm) Detach() {
	f.unsubscribe()
}

func (f *ProductForm) listen(state cart.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := false
	if f.view.Variant != nil {
		pending = state.IsPending(domain.VariantTarget(f.view.Variant.ID))
	}
	if pending == f.pending {
		return
	}
	f.pending = pending
	f.paintLocked()
}

// ApplyView переключает форму на вариант из выбора опций. Loading берётся
// из pending-маркера нового варианта в store.
func (f *ProductForm) ApplyView(view variant.View) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view = view
	f.message = ""
	f.pending = false
	if view.Variant != nil {
		f.pending = f.store.State().IsPending(domain.VariantTarget(view.Variant.ID))
	}
	f.paintLocked()
}

// SetQuantity задаёт количество для добавления; значения меньше 1 заменяются на 1.
func (f *ProductForm) SetQuantity(quantity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if quantity < 1 {
		quantity = 1
	}
	f.quantity = quantity
}

// Message возвращает текст последней ошибки (пустой после успеха).
func (f *ProductForm) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// Submit добавляет текущий вариант в корзину.
func (f *ProductForm) Submit(ctx context.Context) error {
	f.mu.Lock()
	view, quantity := f.view, f.quantity
	f.mu.Unlock()

	if view.Variant == nil || !view.CanAddToCart {
		return fmt.Errorf("add to cart: %w", domain.ErrVariantUnavailable)
	}

	err := f.store.Add(ctx, view.Variant.ID, quantity)

	f.mu.Lock()
	f.message = domain.Describe(err)
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if f.drawer != nil {
		if openErr := f.drawer.Open(ctx); openErr != nil {
			f.logger.WithError(openErr).Warn("cart drawer did not refresh after add")
		}
	}
	return nil
}

func (f *ProductForm) paintLocked() {
	switch {
	case f.view.Variant == nil:
		f.button.SetLabel(LabelUnavailable)
	case !f.view.Variant.Available:
		f.button.SetLabel(LabelSoldOut)
	default:
		f.button.SetLabel(LabelAddToCart)
	}
	f.button.SetLoading(f.pending)
	f.button.SetDisabled(f.pending || !f.view.CanAddToCart)
}
