package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestPreferenceRepository_SetGetDelete(t *testing.T) {
	repo := NewPreferenceRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "collection_view")
	require.ErrorIs(t, err, domain.ErrPreferenceNotFound)

	require.NoError(t, repo.Set(ctx, " collection_view ", "grid"))
	value, err := repo.Get(ctx, "collection_view")
	require.NoError(t, err)
	require.Equal(t, "grid", value)

	require.NoError(t, repo.Set(ctx, "collection_view", "list"))
	value, err = repo.Get(ctx, "collection_view")
	require.NoError(t, err)
	require.Equal(t, "list", value)

	require.NoError(t, repo.Delete(ctx, "collection_view"))
	require.ErrorIs(t, repo.Delete(ctx, "collection_view"), domain.ErrPreferenceNotFound)
}

func TestPreferenceRepository_KeyRequired(t *testing.T) {
	repo := NewPreferenceRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, " ")
	require.ErrorIs(t, err, domain.ErrPreferenceKeyRequired)
	require.ErrorIs(t, repo.Set(ctx, "", "x"), domain.ErrPreferenceKeyRequired)
	require.ErrorIs(t, repo.Delete(ctx, ""), domain.ErrPreferenceKeyRequired)
}

func TestPreferenceRepository_ListReturnsCopy(t *testing.T) {
	repo := NewPreferenceRepository()
	ctx := context.Background()
	require.NoError(t, repo.Set(ctx, "a", "1"))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	all["b"] = "2"

	again, err := repo.List(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1"}, again)
}

func TestPreferenceRepository_Concurrent(t *testing.T) {
	repo := NewPreferenceRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%5)
			_ = repo.Set(ctx, key, fmt.Sprint(i))
			_, _ = repo.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
}
