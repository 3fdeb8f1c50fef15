package cartclient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RetryConfig конфигурация повторов для чтения корзины.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// retryFetch повторяет идемпотентное чтение. Мутации через него не проходят:
// повторное добавление добавило бы товар дважды.
func retryFetch(ctx context.Context, cfg RetryConfig, logger *log.Entry, fn func() (domain.CartSnapshot, error)) (domain.CartSnapshot, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialDelay
	policy.MaxInterval = cfg.MaxDelay
	if cfg.BackoffFactor > 1 {
		policy.Multiplier = cfg.BackoffFactor
	}

	attempt := 0
	snapshot, err := backoff.Retry(ctx, func() (domain.CartSnapshot, error) {
		attempt++
		result, err := fn()
		if err != nil && !shouldRetry(err) {
			return domain.CartSnapshot{}, backoff.Permanent(err)
		}
		return result, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			logger.WithError(err).WithFields(log.Fields{
				"op":      OpFetchCart,
				"attempt": attempt,
				"delay":   delay,
			}).Warn("fetch cart failed, retrying")
		}),
	)
	if err == nil {
		return snapshot, nil
	}

	var cartErr *domain.CartError
	if errors.As(err, &cartErr) {
		return domain.CartSnapshot{}, cartErr
	}
	// Отмена контекста во время ожидания между попытками.
	return domain.CartSnapshot{}, domain.NewTransportError(OpFetchCart, err)
}

// shouldRetry повторяет только сетевые сбои и 5xx.
func shouldRetry(err error) bool {
	if errors.Is(err, domain.ErrValidation) {
		return false
	}
	var cartErr *domain.CartError
	if errors.As(err, &cartErr) && cartErr.Kind == domain.ErrorKindBackend {
		return cartErr.Status >= 500
	}
	if errors.Is(err, gobreaker.ErrOpenState) {
		return false
	}
	return true
}

// BreakerConfig параметры circuit breaker удалённой корзины.
type BreakerConfig struct {
	// MaxFailures: число подряд идущих отказов, после которого цепь размыкается.
	MaxFailures  uint32
	ResetTimeout time.Duration
	// HalfOpenRequests: сколько пробных запросов пропускается в half-open.
	HalfOpenRequests uint32
}

// DefaultBreakerConfig возвращает параметры по умолчанию.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		ResetTimeout:     10 * time.Second,
		HalfOpenRequests: 1,
	}
}

func newBreaker(cfg BreakerConfig, logger *log.Entry) *gobreaker.CircuitBreaker[response] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = DefaultBreakerConfig().MaxFailures
	}
	return gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:        "storefront-cart",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// Бизнес-отказы backend не говорят о его недоступности.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("cart circuit breaker state changed")
		},
	})
}
