package util

import (
	"math/bits"
	"sync"
)

// IntAllocator hands out the lowest free integer in [min, max]. Connections
// use it for channel ids.
type IntAllocator struct {
	mu   sync.Mutex
	min  int
	max  int
	used []uint64 // bit i set: min+i is allocated
}

// NewIntAllocator returns an allocator for [min, max] with nothing
// allocated.
func NewIntAllocator(min, max int) *IntAllocator {
	n := max - min + 1
	if n < 0 {
		n = 0
	}
	return &IntAllocator{
		min:  min,
		max:  max,
		used: make([]uint64, (n+63)/64),
	}
}

// Allocate returns the lowest free integer, or false when none is left.
func (a *IntAllocator) Allocate() (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for w, word := range a.used {
		if word == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^word)
		i := a.min + w*64 + bit
		if i > a.max {
			return 0, false
		}
		a.used[w] |= 1 << uint(bit)
		return i, true
	}
	return 0, false
}

// Free releases i. It reports false when i is out of range or not
// allocated.
func (a *IntAllocator) Free(i int) bool {
	if i < a.min || i > a.max {
		return false
	}
	w, bit := (i-a.min)/64, uint(i-a.min)%64

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.used[w]&(1<<bit) == 0 {
		return false
	}
	a.used[w] &^= 1 << bit
	return true
}
