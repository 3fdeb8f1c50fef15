package projector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestCount_UnknownSnapshotRendersZero(t *testing.T) {
	badge := &Badge{}
	badge.RenderCount(7)

	NewCount(badge).Listen(cart.State{})

	require.Equal(t, 0, badge.Count())
	require.Equal(t, "0", badge.Text())
}

func TestCount_RendersIntoEverySink(t *testing.T) {
	first := &Badge{}
	second := &Badge{}
	var seen []int

	projector := NewCount(first, second)
	projector.Attach(BadgeSinkFunc(func(n int) { seen = append(seen, n) }))
	projector.Attach(nil)

	projector.Listen(cart.State{Snapshot: &domain.CartSnapshot{ItemCount: 3}})
	projector.Listen(cart.State{Snapshot: &domain.CartSnapshot{ItemCount: 5}})

	require.Equal(t, 5, first.Count())
	require.Equal(t, 5, second.Count())
	require.Equal(t, []int{3, 5}, seen)
}

func TestCount_AttachRendersLastCount(t *testing.T) {
	projector := NewCount()

	early := &Badge{}
	early.RenderCount(9)
	projector.Attach(early)
	require.Equal(t, 9, early.Count(), "nothing to render before the first notification")

	projector.Listen(cart.State{Snapshot: &domain.CartSnapshot{ItemCount: 4}})

	late := &Badge{}
	projector.Attach(late)
	require.Equal(t, 4, late.Count())
	require.Equal(t, "4", late.Text())

	projector.Listen(cart.State{})
	require.Equal(t, 0, late.Count())
	require.Equal(t, 0, early.Count())
}
