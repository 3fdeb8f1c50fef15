// Package projector отображает количество товаров корзины в счётчики (badge).
package projector

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
)

// BadgeSink: поверхность, показывающая число товаров (маркер data-cart-count).
type BadgeSink interface {
	RenderCount(n int)
}

// BadgeSinkFunc позволяет использовать функцию как BadgeSink.
type BadgeSinkFunc func(n int)

// RenderCount вызывает f(n).
func (f BadgeSinkFunc) RenderCount(n int) {
	f(n)
}

// Count проецирует ItemCount каждого состояния во все зарегистрированные sinks.
// Последнее значение запоминается для sinks, подключённых позже.
type Count struct {
	mu    sync.Mutex
	sinks []BadgeSink
	last  int
	seen  bool
}

// NewCount создаёт проектор с начальным набором sinks.
func NewCount(sinks ...BadgeSink) *Count {
	return &Count{sinks: append([]BadgeSink(nil), sinks...)}
}

// Attach добавляет sink и сразу показывает в нём последнее значение,
// если уведомления уже приходили.
func (c *Count) Attach(sink BadgeSink) {
	if sink == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, sink)
	if c.seen {
		sink.RenderCount(c.last)
	}
}

// Listen: слушатель для cart.Store.Subscribe.
func (c *Count) Listen(state cart.State) {
	n := state.ItemCount()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last, c.seen = n, true
	for _, sink := range c.sinks {
		sink.RenderCount(n)
	}
}

// Badge: потокобезопасный sink, из которого читает HTTP-поверхность.
type Badge struct {
	count atomic.Int64
}

// RenderCount сохраняет значение.
func (b *Badge) RenderCount(n int) {
	b.count.Store(int64(n))
}

// Count возвращает последнее показанное значение.
func (b *Badge) Count() int {
	return int(b.count.Load())
}

// Text возвращает значение в виде текста маркера data-cart-count.
func (b *Badge) Text() string {
	return strconv.Itoa(b.Count())
}
