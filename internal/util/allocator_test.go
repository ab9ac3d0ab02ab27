package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntAllocatorLowestFirst(t *testing.T) {
	alloc := NewIntAllocator(1, 10)

	id1, ok := alloc.Allocate()
	require.True(t, ok)
	id2, ok := alloc.Allocate()
	require.True(t, ok)
	assert.Equal(t, 1, id1)
	assert.Equal(t, 2, id2)

	require.True(t, alloc.Free(id1))

	id3, ok := alloc.Allocate()
	require.True(t, ok)
	assert.Equal(t, id1, id3, "freed id is handed out again")
}

// TestIntAllocatorExhaustion tests exhausting the allocator
func TestIntAllocatorExhaustion(t *testing.T) {
	alloc := NewIntAllocator(1, 5)

	for i := 1; i <= 5; i++ {
		id, ok := alloc.Allocate()
		require.True(t, ok, "allocation %d", i)
		assert.Equal(t, i, id)
	}

	_, ok := alloc.Allocate()
	assert.False(t, ok, "allocator should be exhausted")

	require.True(t, alloc.Free(3))
	id, ok := alloc.Allocate()
	require.True(t, ok)
	assert.Equal(t, 3, id)
}

func TestIntAllocatorFree(t *testing.T) {
	alloc := NewIntAllocator(1, 70)
	assert.False(t, alloc.Free(5), "never allocated")
	assert.False(t, alloc.Free(0), "below range")
	assert.False(t, alloc.Free(71), "above range")

	for i := 1; i <= 70; i++ {
		_, ok := alloc.Allocate()
		require.True(t, ok)
	}
	require.True(t, alloc.Free(66))
	assert.False(t, alloc.Free(66), "double free")

	id, ok := alloc.Allocate()
	require.True(t, ok)
	assert.Equal(t, 66, id, "ids past the first word are reused")
}

func TestIntAllocatorConcurrent(t *testing.T) {
	alloc := NewIntAllocator(1, 100)

	var wg sync.WaitGroup
	allocated := make(chan int, 50)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if id, ok := alloc.Allocate(); ok {
					allocated <- id
				}
			}
		}()
	}
	wg.Wait()
	close(allocated)

	seen := make(map[int]bool)
	for id := range allocated {
		assert.False(t, seen[id], "id %d allocated twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, 50)

	next, ok := alloc.Allocate()
	require.True(t, ok)
	assert.Equal(t, 51, next)
}

func BenchmarkIntAllocator(b *testing.B) {
	alloc := NewIntAllocator(1, 2047)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id, ok := alloc.Allocate()
		if ok {
			alloc.Free(id)
		}
	}
}
