package notice

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type fakeTimers struct {
	mu    sync.Mutex
	fns   map[int]func()
	next  int
	delay time.Duration
}

func (f *fakeTimers) after(d time.Duration, fn func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fns == nil {
		f.fns = make(map[int]func())
	}
	id := f.next
	f.next++
	f.fns[id] = fn
	f.delay = d
	return func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		_, ok := f.fns[id]
		delete(f.fns, id)
		return ok
	}
}

func (f *fakeTimers) fireAll() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.fns))
	for id, fn := range f.fns {
		fns = append(fns, fn)
		delete(f.fns, id)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func noticeState(id string) cart.State {
	target := domain.VariantTarget(42)
	return cart.State{Notice: &cart.Notice{
		ID:      id,
		Source:  cart.NoticeSourceAdd,
		Target:  &target,
		Kind:    domain.ErrorKindValidation,
		Message: "Sold out",
		Err:     errors.New("sold out"),
	}}
}

func TestBoard_ShowsAndAutoDismisses(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	timers := &fakeTimers{}
	board := NewBoard(WithTTL(3*time.Second), WithClock(func() time.Time { return now }, timers.after))

	board.Listen(cart.State{})
	require.Empty(t, board.Active())

	board.Listen(noticeState("n-1"))
	board.Listen(noticeState("n-1"))

	active := board.Active()
	require.Len(t, active, 1)
	require.Equal(t, "variant:42", active[0].Target)
	require.Equal(t, "Sold out", active[0].Message)
	require.Equal(t, now.Add(3*time.Second), active[0].ExpiresAt)
	require.Equal(t, 3*time.Second, timers.delay)

	timers.fireAll()
	require.Empty(t, board.Active())
}

func TestBoard_DismissEarly(t *testing.T) {
	timers := &fakeTimers{}
	board := NewBoard(WithClock(nil, timers.after))

	board.Listen(noticeState("n-1"))
	board.Listen(noticeState("n-2"))
	require.Len(t, board.Active(), 2)

	require.True(t, board.Dismiss("n-1"))
	require.False(t, board.Dismiss("n-1"))
	require.Len(t, board.Active(), 1)
	require.Len(t, timers.fns, 1)
}
