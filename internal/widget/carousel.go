package widget

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// AddedLabelDuration: сколько карточка показывает «Added» после успеха.
const AddedLabelDuration = 2 * time.Second

// Scheduler откладывает вызов f на d и возвращает функцию отмены.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// CarouselCard: кнопка карточки карусели с фиксированным вариантом и количеством 1.
type CarouselCard struct {
	store     Store
	variantID domain.VariantID
	button    Button
	schedule  Scheduler

	mu    sync.Mutex
	busy  bool
	stop  func() bool
	label string
}

// NewCarouselCard создаёт карточку. schedule может быть nil.
func NewCarouselCard(store Store, variantID domain.VariantID, button Button, schedule Scheduler) *CarouselCard {
	if schedule == nil {
		schedule = afterFunc
	}
	return &CarouselCard{
		store:     store,
		variantID: variantID,
		button:    button,
		schedule:  schedule,
		label:     LabelAddToCart,
	}
}

// VariantID возвращает вариант карточки.
func (c *CarouselCard) VariantID() domain.VariantID {
	return c.variantID
}

// Click добавляет вариант в корзину. Пока предыдущее нажатие не завершилось
// (включая показ «Added»), повторные нажатия игнорируются.
func (c *CarouselCard) Click(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil
	}
	c.busy = true
	c.button.SetDisabled(true)
	c.button.SetLoading(true)
	c.mu.Unlock()

	err := c.store.Add(ctx, c.variantID, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.button.SetLoading(false)
	if err != nil {
		c.restoreLocked()
		return err
	}
	c.button.SetLabel(LabelAdded)
	c.stop = c.schedule(AddedLabelDuration, c.restore)
	return nil
}

// Reset немедленно возвращает карточку в исходное состояние.
func (c *CarouselCard) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		c.stop()
	}
	c.restoreLocked()
}

func (c *CarouselCard) restore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restoreLocked()
}

func (c *CarouselCard) restoreLocked() {
	c.stop = nil
	c.busy = false
	c.button.SetLabel(c.label)
	c.button.SetDisabled(false)
}
