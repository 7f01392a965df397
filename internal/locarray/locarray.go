// Package locarray implements a thread-safe, append-only growable
// vector of (line, field) locations.
package locarray

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrCapacityExceeded is returned by Grow when new_capacity would
// exceed the configured hard ceiling.
var ErrCapacityExceeded = errors.New("locarray: capacity ceiling exceeded")

// Location is a (line, field) pair identifying where an address was
// seen. Line is the absolute 1-based input line number; Field is the
// 1-based tokenizer field position.
type Location struct {
	Line  uint64
	Field uint16
}

const (
	// minCapacity is the floor enforced by New.
	minCapacity = 64
	// doublingCeiling is the capacity below which Append's growth step
	// doubles; at or above it, the step adds 25% instead, bounding
	// waste on addresses that recur millions of times.
	doublingCeiling = 1 << 20
	// DefaultMaxCapacity is the default hard ceiling.
	DefaultMaxCapacity = 1 << 31
)

// Array is an append-only growable sequence of Location, safe for
// concurrent Append/Grow calls, though in normal operation a given
// Array is only ever written by the single worker that owns it (see
// dict.PerAddressData); the mutex exists for the rare Grow and is a
// defensive invariant rather than a contended hot path.
type Array struct {
	mu          sync.Mutex
	entries     []Location
	count       int
	maxCapacity int
}

// New returns an Array with capacity at least initialCapacity (floored
// at 64). maxCapacity <= 0 selects DefaultMaxCapacity.
func New(initialCapacity int, maxCapacity int) *Array {
	if initialCapacity < minCapacity {
		initialCapacity = minCapacity
	}
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxCapacity
	}
	return &Array{
		entries:     make([]Location, initialCapacity),
		maxCapacity: maxCapacity,
	}
}

// Len returns the number of stored entries.
func (a *Array) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Append adds (line, field) to the array, growing it first if full.
// It returns ErrCapacityExceeded if the array is already at its hard
// ceiling; callers log and drop the location rather than failing the
// whole run.
func (a *Array) Append(line uint64, field uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count >= a.maxCapacity {
		return ErrCapacityExceeded
	}
	if a.count == len(a.entries) {
		next := a.nextCapacityLocked()
		if next > a.maxCapacity {
			next = a.maxCapacity
		}
		if err := a.growLocked(next); err != nil {
			return err
		}
	}
	a.entries[a.count] = Location{Line: line, Field: field}
	a.count++
	return nil
}

func (a *Array) nextCapacityLocked() int {
	cap := len(a.entries)
	if cap < doublingCeiling {
		return cap * 2
	}
	return cap + cap/4
}

// Grow reallocates the backing array to newCapacity, copying existing
// entries. It fails if newCapacity is smaller than the current
// capacity or exceeds the configured ceiling.
func (a *Array) Grow(newCapacity int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.growLocked(newCapacity)
}

func (a *Array) growLocked(newCapacity int) error {
	if newCapacity < len(a.entries) {
		return errors.New("locarray: new capacity smaller than current")
	}
	if newCapacity > a.maxCapacity {
		return ErrCapacityExceeded
	}
	grown := make([]Location, newCapacity)
	copy(grown, a.entries[:a.count])
	a.entries = grown
	return nil
}

// SortInPlace sorts entries[0:count) by line ascending, then field
// ascending on ties, for output-time merging. Only meaningful after
// all appends for this array have completed.
func (a *Array) SortInPlace() {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.entries[:a.count]
	sort.Slice(s, func(i, j int) bool {
		if s[i].Line != s[j].Line {
			return s[i].Line < s[j].Line
		}
		return s[i].Field < s[j].Field
	})
}

// Entries returns the stored locations. The caller must not mutate
// the result; it aliases the array's backing storage.
func (a *Array) Entries() []Location {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries[:a.count]
}
