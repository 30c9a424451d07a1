// Package bloomfilter wraps a bits-and-blooms bloom filter as a probabilistic
// pre-filter over canonical URLs: a fast, bounded-memory "definitely unseen"
// / "maybe seen" test that sits in front of the authoritative visited set.
package bloomfilter

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// hashCount is the number of hash functions combined per key, a fixed
// conservative choice rather than a computed optimum.
const hashCount = 3

// sizeMultiplier sizes the underlying bit array at roughly 10x the expected
// capacity.
const sizeMultiplier = 10

// Filter is a fixed-size probabilistic membership test. Add never fails.
// Contains returns true for every key previously Added (no false negatives)
// and may return true for an unseen key with bounded probability; it is a
// pre-check only, never a replacement for the authoritative visited set.
type Filter struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// New builds a Filter sized for capacity expected distinct keys.
func New(capacity uint) *Filter {
	if capacity == 0 {
		capacity = 1
	}
	m := capacity * sizeMultiplier
	return &Filter{filter: bloom.New(m, hashCount)}
}

// Add records key as seen.
func (f *Filter) Add(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.Add([]byte(key))
}

// Contains reports whether key may have been added. A false result is
// authoritative ("definitely not seen"); a true result requires the caller
// to confirm against the real visited set.
func (f *Filter) Contains(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter.Test([]byte(key))
}
