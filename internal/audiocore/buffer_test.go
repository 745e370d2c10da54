package audiocore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPoolCreation(t *testing.T) {
	t.Parallel()

	pool, err := NewBufferPool(4, 512)
	require.NoError(t, err)

	stats := pool.Stats()
	assert.Equal(t, 4, stats.Size)
	assert.Equal(t, 512, stats.BufferBytes)
	assert.Zero(t, stats.InFlight)

	_, err = NewBufferPool(0, 512)
	require.Error(t, err)
	_, err = NewBufferPool(2, 0)
	require.Error(t, err)
}

func TestBufferPoolExhaustion(t *testing.T) {
	t.Parallel()

	pool, err := NewBufferPool(2, 16)
	require.NoError(t, err)

	a, ok := pool.TryAcquire()
	require.True(t, ok)
	b, ok := pool.TryAcquire()
	require.True(t, ok)
	assert.NotSame(t, a, b)

	_, ok = pool.TryAcquire()
	assert.False(t, ok, "third acquire must fail without blocking")
	assert.Equal(t, 2, pool.InFlight())

	pool.Release(a)
	assert.Equal(t, 1, pool.InFlight())
	c, ok := pool.TryAcquire()
	require.True(t, ok)
	assert.Same(t, a, c)

	stats := pool.Stats()
	assert.Equal(t, uint64(3), stats.Acquisitions)
	assert.Equal(t, uint64(1), stats.Exhaustions)
}

func TestBufferPoolReleaseGuards(t *testing.T) {
	t.Parallel()

	pool, err := NewBufferPool(1, 16)
	require.NoError(t, err)
	other, err := NewBufferPool(1, 16)
	require.NoError(t, err)

	b, ok := pool.TryAcquire()
	require.True(t, ok)

	other.Release(b)
	assert.Equal(t, 1, pool.InFlight(), "foreign release is ignored")

	pool.Release(b)
	pool.Release(b)
	pool.Release(nil)
	assert.Equal(t, 0, pool.InFlight())

	_, ok = pool.TryAcquire()
	require.True(t, ok)
	_, ok = pool.TryAcquire()
	assert.False(t, ok, "double release must not duplicate a buffer")
}

func TestBufferFillZeroPads(t *testing.T) {
	t.Parallel()

	pool, err := NewBufferPool(1, 8)
	require.NoError(t, err)
	b, ok := pool.TryAcquire()
	require.True(t, ok)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.fill([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 4, 2, now, false)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, b.Samples())

	b.fill([]byte{9, 9}, 3, 2, now, true)
	assert.Equal(t, []byte{9, 9, 0, 0, 0, 0}, b.Samples())
	assert.Equal(t, 3, b.FrameCount())
	assert.Equal(t, now, b.CaptureTime())
	assert.True(t, b.inputOverflow)
}

func TestBufferPoolConcurrentUse(t *testing.T) {
	t.Parallel()

	pool, err := NewBufferPool(8, 64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 1000 {
				if b, ok := pool.TryAcquire(); ok {
					pool.Release(b)
				}
			}
		})
	}
	wg.Wait()

	assert.Zero(t, pool.InFlight())
	assert.LessOrEqual(t, pool.Stats().Acquisitions, uint64(8000))
}
