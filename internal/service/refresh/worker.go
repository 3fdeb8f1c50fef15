// Package refresh периодически перечитывает корзину, чтобы снимок не устаревал,
// пока ни одна поверхность не запрашивает его явно.
package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
)

const (
	defaultInterval = time.Minute
	defaultMaxAge   = 30 * time.Second
)

var (
	refreshRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_background_refresh_total",
		Help: "Total number of background cart refresh attempts grouped by result.",
	}, []string{"result"})
	refreshSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cart_background_refresh_skipped_total",
		Help: "Total number of ticks skipped because the cart snapshot was fresh.",
	})
)

// Source: хранилище, которое умеет отдавать состояние и перечитывать корзину.
type Source interface {
	State() cart.State
	Refresh(ctx context.Context) error
}

// Options задает параметры воркера.
type Options struct {
	Logger   *log.Entry
	Interval time.Duration
	MaxAge   time.Duration
	Clock    func() time.Time
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между проверками.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithMaxAge задает возраст снимка, после которого он перечитывается.
func WithMaxAge(maxAge time.Duration) Option {
	return func(opts *Options) {
		opts.MaxAge = maxAge
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// Worker перечитывает корзину, если снимок неизвестен или старше MaxAge.
type Worker struct {
	source   Source
	logger   *log.Entry
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

// NewWorker создает воркер фонового обновления.
func NewWorker(source Source, options ...Option) *Worker {
	opts := Options{
		Interval: defaultInterval,
		MaxAge:   defaultMaxAge,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-refresh-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Worker{
		source:   source,
		logger:   logger,
		interval: opts.Interval,
		maxAge:   opts.MaxAge,
		now:      opts.Clock,
	}
}

// Run проверяет снимок каждые Interval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.source == nil {
		w.logger.Warn("cart refresh worker is disabled: source is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	refreshed, err := w.RefreshIfStale(ctx)
	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) {
			return
		}
		refreshRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("background cart refresh failed")
	case refreshed:
		refreshRunsTotal.WithLabelValues("ok").Inc()
	default:
		refreshSkippedTotal.Inc()
	}
}

// RefreshIfStale вызывает Refresh, если корзина неизвестна или снимок устарел.
// Возвращает true, если Refresh был вызван и завершился успешно.
func (w *Worker) RefreshIfStale(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	state := w.source.State()
	if state.Snapshot != nil && w.now().Sub(state.UpdatedAt) < w.maxAge {
		return false, nil
	}

	if err := w.source.Refresh(ctx); err != nil {
		return false, err
	}
	w.logger.WithField("item_count", w.source.State().ItemCount()).Debug("cart refreshed in background")
	return true, nil
}
