package predictor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCountingCache(t *testing.T) (*ArtifactCache, *countingStore, string) {
	t.Helper()
	dir := t.TempDir()
	writeManifest(t, dir, "maccs_rf.json", ringForest())
	writeManifest(t, dir, "maccs_et.json", ringForest())
	store := &countingStore{ArtifactStore: NewFileStore(dir)}
	return NewArtifactCache(NewLoader(store), nil), store, dir
}

func TestArtifactCacheReusesLoads(t *testing.T) {
	cache, store, _ := newCountingCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			art, release, err := cache.Acquire(ctx, MACCS, "rf")
			assert.NoError(t, err)
			if err == nil {
				assert.Equal(t, 167, art.NumFeatures())
				release()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), store.opens.Load())

	_, release, err := cache.Acquire(ctx, MACCS, "et")
	require.NoError(t, err)
	release()
	assert.Equal(t, int32(2), store.opens.Load())
	assert.ElementsMatch(t, []string{"maccs_rf.json", "maccs_et.json"}, cache.Keys())
}

func TestArtifactCacheInvalidateAndReload(t *testing.T) {
	cache, store, _ := newCountingCache(t)
	ctx := context.Background()

	_, release, err := cache.Acquire(ctx, MACCS, "rf")
	require.NoError(t, err)
	release()

	assert.True(t, cache.Invalidate(MACCS, "rf"))
	assert.False(t, cache.Invalidate(MACCS, "rf"))
	_, release, err = cache.Acquire(ctx, MACCS, "rf")
	require.NoError(t, err)
	release()
	assert.Equal(t, int32(2), store.opens.Load())

	require.NoError(t, cache.Reload(ctx, MACCS, "rf"))
	assert.Equal(t, int32(3), store.opens.Load())

	assert.Equal(t, 1, cache.Purge())
	assert.Empty(t, cache.Keys())
}

func TestArtifactCacheDoesNotCacheFailures(t *testing.T) {
	cache, store, dir := newCountingCache(t)
	ctx := context.Background()

	_, _, err := cache.Acquire(ctx, MACCS, "late")
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	writeManifest(t, dir, "maccs_late.json", ringForest())
	_, release, err := cache.Acquire(ctx, MACCS, "late")
	require.NoError(t, err)
	release()
	assert.Equal(t, int32(2), store.opens.Load())
}

func TestArtifactCacheClosesAfterLastRelease(t *testing.T) {
	art := &fakeArtifact{classes: []Label{"a"}, width: 1}
	cache := NewArtifactCache(nil, nil)
	entry := &cacheEntry{art: art}
	cache.entries[ArtifactKey(MACCS, "rf")] = entry

	_, release, err := cache.Acquire(context.Background(), MACCS, "rf")
	require.NoError(t, err)

	cache.Purge()
	assert.Zero(t, art.closed.Load(), "in-flight artifact stays open")
	release()
	release()
	assert.Equal(t, int32(1), art.closed.Load())
}

func TestPipelineWithArtifactCache(t *testing.T) {
	cache, store, _ := newCountingCache(t)
	p := newTestPipeline(t, cache)
	for i := 0; i < 3; i++ {
		results, dropped, err := p.Run(context.Background(), []string{"CCO", "c1ccccc1"}, MACCS, "rf")
		require.NoError(t, err)
		assert.Zero(t, dropped)
		assert.Len(t, results, 2)
	}
	assert.Equal(t, int32(1), store.opens.Load())
}
