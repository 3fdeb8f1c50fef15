// Package notice показывает одноразовые уведомления об отказах корзины
// и скрывает их по истечении TTL.
package notice

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
)

// DefaultTTL: время показа уведомления.
const DefaultTTL = 5 * time.Second

// Entry: видимое уведомление.
type Entry struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Target    string    `json:"target,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	ShownAt   time.Time `json:"shown_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Board хранит видимые уведомления.
type Board struct {
	ttl    time.Duration
	now    func() time.Time
	after  func(d time.Duration, f func()) func() bool
	logger *log.Entry

	mu      sync.Mutex
	entries map[string]Entry
	timers  map[string]func() bool
}

// Option настраивает Board.
type Option func(*Board)

// WithTTL задаёт время показа.
func WithTTL(ttl time.Duration) Option {
	return func(b *Board) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

// WithClock подменяет время и таймеры (для тестов).
func WithClock(now func() time.Time, after func(d time.Duration, f func()) func() bool) Option {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
		if after != nil {
			b.after = after
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBoard создаёт пустую доску уведомлений.
func NewBoard(opts ...Option) *Board {
	b := &Board{
		ttl: DefaultTTL,
		now: time.Now,
		after: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		logger:  log.WithField("component", "notice-board"),
		entries: make(map[string]Entry),
		timers:  make(map[string]func() bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Listen: слушатель для cart.Store.Subscribe.
func (b *Board) Listen(state cart.State) {
	if state.Notice == nil {
		return
	}
	n := state.Notice
	shown := b.now()
	entry := Entry{
		ID:        n.ID,
		Source:    string(n.Source),
		Kind:      string(n.Kind),
		Message:   n.Message,
		ShownAt:   shown,
		ExpiresAt: shown.Add(b.ttl),
	}
	if n.Target != nil {
		entry.Target = n.Target.String()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.entries[entry.ID]; exists {
		return
	}
	b.entries[entry.ID] = entry
	b.timers[entry.ID] = b.after(b.ttl, func() { b.Dismiss(entry.ID) })
	b.logger.WithFields(log.Fields{
		"notice_id": entry.ID,
		"source":    entry.Source,
		"kind":      entry.Kind,
	}).Info("cart notice shown")
}

// Dismiss скрывает уведомление досрочно или по таймеру.
func (b *Board) Dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[id]; !ok {
		return false
	}
	delete(b.entries, id)
	if stop := b.timers[id]; stop != nil {
		stop()
	}
	delete(b.timers, id)
	return true
}

// Active возвращает видимые уведомления в порядке показа.
func (b *Board) Active() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShownAt.Equal(out[j].ShownAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ShownAt.Before(out[j].ShownAt)
	})
	return out
}
