package health

import (
	"context"
	"fmt"
	"time"
)

// SnapshotSource сообщает, известна ли корзина.
type SnapshotSource interface {
	Known() bool
}

// CartChecker: корзина ещё не загружена, degraded (поверхности показывают ноль).
func CartChecker(source SnapshotSource) Checker {
	return NewFuncChecker("cart", func() (Status, string) {
		if source.Known() {
			return StatusHealthy, ""
		}
		return StatusDegraded, "cart snapshot is not loaded"
	})
}

// BreakerChecker отражает состояние circuit breaker удалённой корзины.
// Открытый breaker: degraded: агент продолжает отдавать последний снимок.
func BreakerChecker(state func() string) Checker {
	return NewFuncChecker("cart-backend", func() (Status, string) {
		switch s := state(); s {
		case "closed":
			return StatusHealthy, ""
		case "half-open":
			return StatusDegraded, "circuit breaker is half-open"
		default:
			return StatusDegraded, fmt.Sprintf("circuit breaker is %s", s)
		}
	})
}

// PingChecker проверяет внешнюю зависимость (например, PostgreSQL) с таймаутом.
func PingChecker(name string, timeout time.Duration, ping func(ctx context.Context) error) Checker {
	return NewSimpleChecker(name, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return ping(ctx)
	})
}
