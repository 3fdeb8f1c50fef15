// Package drawer реализует выдвижную панель корзины: состояние open/closed,
// блокировку прокрутки и отрисовку содержимого из снимка корзины.
package drawer

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultFreshness: сколько последнее уведомление считается свежим.
const DefaultFreshness = 30 * time.Second

// Phase: состояние панели.
type Phase string

const (
	PhaseClosed Phase = "closed"
	PhaseOpen   Phase = "open"
)

// Store: часть cart.Store, нужная панели.
type Store interface {
	Subscribe(listener cart.Listener) func()
	State() cart.State
	Refresh(ctx context.Context) error
	SetQuantity(ctx context.Context, line int, quantity int) error
	RequestedQuantity(line int) (int, bool)
}

// ScrollLock блокирует прокрутку страницы, пока панель открыта.
type ScrollLock interface {
	Lock()
	Unlock()
}

// Surface: поверхность, на которой рисуется панель.
type Surface interface {
	Show()
	Hide()
	Paint(body Body)
}

// Option настраивает Controller.
type Option func(*Controller)

// WithFreshness задаёт окно свежести снимка.
func WithFreshness(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.freshness = d
		}
	}
}

// WithScrollLock подключает блокировку прокрутки.
func WithScrollLock(lock ScrollLock) Option {
	return func(c *Controller) {
		if lock != nil {
			c.lock = lock
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller: конечный автомат панели корзины. Начальное состояние, closed.
type Controller struct {
	store     Store
	surface   Surface
	lock      ScrollLock
	freshness time.Duration
	now       func() time.Time
	logger    *log.Entry

	mu           sync.Mutex
	phase        Phase
	lastNotified time.Time
	known        bool
	body         Body
	unsubscribe  func()
}

// New создаёт панель и подписывает её на store.
func New(store Store, surface Surface, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		surface:   surface,
		lock:      &PageLock{},
		freshness: DefaultFreshness,
		now:       time.Now,
		logger:    log.WithField("component", "cart-drawer"),
		phase:     PhaseClosed,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = store.Subscribe(c.listen)
	return c
}

// Detach отписывает панель от store.
func (c *Controller) Detach() {
	c.unsubscribe()
}

func (c *Controller) listen(state cart.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastNotified = c.now()
	c.known = state.Snapshot != nil
	if c.phase != PhaseOpen {
		return
	}
	c.paintLocked(state)
}

func (c *Controller) paintLocked(state cart.State) {
	body := RenderBody(state.Snapshot)
	body.markPending(state.Pending)
	c.body = body
	c.surface.Paint(body)
}

// Open открывает панель. Повторный вызов в состоянии open ничего не делает.
// Если снимок неизвестен или устарел, содержимое перечитывается через store;
// ошибка перечитывания возвращается, но панель остаётся открытой.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.phase == PhaseOpen {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseOpen
	c.lock.Lock()
	c.surface.Show()

	stale := !c.known || c.now().Sub(c.lastNotified) > c.freshness
	if !stale {
		c.paintLocked(c.store.State())
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// Refresh уведомляет слушателей синхронно, поэтому вызывается без c.mu.
	if err := c.store.Refresh(ctx); err != nil {
		c.logger.WithError(err).Warn("drawer refresh failed, showing last known cart")
		return err
	}
	return nil
}

// Close закрывает панель и снимает блокировку прокрутки. Идемпотентна.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseClosed {
		return
	}
	c.phase = PhaseClosed
	c.surface.Hide()
	c.lock.Unlock()
}

// Phase возвращает текущее состояние.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Body возвращает последнее отрисованное содержимое.
func (c *Controller) Body() Body {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.body
}

// ChangeQuantity меняет количество в строке на delta относительно последнего
// запрошенного значения (с учётом незавершённой мутации). Результат не меньше 0.
func (c *Controller) ChangeQuantity(ctx context.Context, line, delta int) error {
	current, ok := c.store.RequestedQuantity(line)
	if !ok {
		return fmt.Errorf("line %d: %w", line, domain.ErrLineNotFound)
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	return c.store.SetQuantity(ctx, line, next)
}

// RemoveLine удаляет строку из корзины.
func (c *Controller) RemoveLine(ctx context.Context, line int) error {
	if _, ok := c.store.RequestedQuantity(line); !ok {
		return fmt.Errorf("line %d: %w", line, domain.ErrLineNotFound)
	}
	return c.store.SetQuantity(ctx, line, 0)
}
