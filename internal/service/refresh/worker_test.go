package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var _ Source = (*cart.Store)(nil)

type stubSource struct {
	mu       sync.Mutex
	state    cart.State
	err      error
	refreshs int
}

func (s *stubSource) State() cart.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubSource) Refresh(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshs++
	return s.err
}

func (s *stubSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshs
}

func TestWorker_RefreshIfStale(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshot := &domain.CartSnapshot{ItemCount: 2}

	tests := []struct {
		name      string
		state     cart.State
		err       error
		refreshed bool
		calls     int
		wantErr   bool
	}{
		{
			name:      "unknown cart",
			state:     cart.State{},
			refreshed: true,
			calls:     1,
		},
		{
			name:  "fresh snapshot",
			state: cart.State{Snapshot: snapshot, UpdatedAt: now.Add(-10 * time.Second)},
		},
		{
			name:      "stale snapshot",
			state:     cart.State{Snapshot: snapshot, UpdatedAt: now.Add(-time.Minute)},
			refreshed: true,
			calls:     1,
		},
		{
			name:    "refresh failure",
			state:   cart.State{},
			err:     errors.New("shop unavailable"),
			calls:   1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			source := &stubSource{state: tt.state, err: tt.err}
			worker := NewWorker(source,
				WithMaxAge(30*time.Second),
				WithClock(func() time.Time { return now }),
			)

			refreshed, err := worker.RefreshIfStale(context.Background())
			if tt.wantErr != (err != nil) {
				t.Fatalf("unexpected error: %v", err)
			}
			if refreshed != tt.refreshed {
				t.Fatalf("unexpected refreshed: got=%v want=%v", refreshed, tt.refreshed)
			}
			if got := source.calls(); got != tt.calls {
				t.Fatalf("unexpected refresh calls: got=%d want=%d", got, tt.calls)
			}
		})
	}
}

func TestWorker_RefreshIfStale_CancelledContext(t *testing.T) {
	t.Parallel()

	source := &stubSource{}
	worker := NewWorker(source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := worker.RefreshIfStale(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if source.calls() != 0 {
		t.Fatal("refresh must not run with cancelled context")
	}
}

func TestWorker_Run_RefreshesUntilCancel(t *testing.T) {
	t.Parallel()

	source := &stubSource{}
	worker := NewWorker(source, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for source.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
	if source.calls() == 0 {
		t.Fatal("expected at least one background refresh")
	}
}

func TestWorker_Run_NilSource(t *testing.T) {
	t.Parallel()

	worker := NewWorker(nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker with nil source must return immediately")
	}
}

func TestNewWorker_Defaults(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&stubSource{}, WithInterval(-1), WithMaxAge(0))
	if worker.interval != defaultInterval {
		t.Fatalf("unexpected interval: %s", worker.interval)
	}
	if worker.maxAge != defaultMaxAge {
		t.Fatalf("unexpected max age: %s", worker.maxAge)
	}
}
