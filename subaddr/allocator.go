// Package subaddr implements the Subaddress Allocator: it hands out unused
// (major, minor) subaddress indices to new invoices and recycles the index
// of any invoice that is removed.
package subaddr

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
)

// reservedMinor is never allocated; it belongs to the primary address.
const reservedMinor uint32 = 0

// ErrExhausted is returned by Allocate if the minor index space has been
// fully consumed, which in practice will never happen before the heat
// death of the universe but is checked anyway.
var ErrExhausted = errors.New("subaddr: minor index space exhausted")

// Allocator assigns minor indices under a single, fixed major (account)
// index. It is safe for concurrent use.
type Allocator struct {
	major uint32

	mu   sync.Mutex
	next uint32          // lowest minor never yet allocated
	free map[uint32]bool // released minors below next, available for reuse
	rng  *rand.Rand
}

// New builds an Allocator for the given major account index. If seed is
// non-nil, the allocator's choice among multiple free indices is
// deterministic (for reproducible tests); otherwise it is randomized, so
// that the sequence of minors handed out to a passive blockchain observer
// doesn't trivially reveal how many invoices have been removed and
// recreated.
func New(major uint32, seed *uint64) *Allocator {
	var src rand.Source
	if seed != nil {
		src = rand.NewSource(int64(*seed))
	} else {
		src = rand.NewSource(randomSeed())
	}

	return &Allocator{
		major: major,
		next:  reservedMinor + 1,
		free:  make(map[uint32]bool),
		rng:   rand.New(src),
	}
}

// Restore rebuilds the allocator's high-water mark and free set from the
// minor indices of currently-live invoices, as observed at startup. It must
// be called, if at all, before any call to Allocate or Release.
func (a *Allocator) Restore(liveMinors []uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var highest uint32
	live := make(map[uint32]bool, len(liveMinors))
	for _, m := range liveMinors {
		live[m] = true
		if m > highest {
			highest = m
		}
	}

	a.next = highest + 1
	a.free = make(map[uint32]bool)
	for m := reservedMinor + 1; m < a.next; m++ {
		if !live[m] {
			a.free[m] = true
		}
	}
}

// Allocate returns an unused minor index: a previously-released one if any
// exist, or the next never-used one otherwise.
func (a *Allocator) Allocate() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) > 0 {
		candidates := make([]uint32, 0, len(a.free))
		for m := range a.free {
			candidates = append(candidates, m)
		}
		// Sorted so the chosen index depends only on the free set's
		// contents and the rng state, never on Go's per-call map
		// iteration order (randomized independently of any seed).
		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
		chosen := candidates[a.rng.Intn(len(candidates))]
		delete(a.free, chosen)
		return chosen, nil
	}

	if a.next == 0 {
		return 0, ErrExhausted
	}
	m := a.next
	a.next++
	return m, nil
}

// Release returns a minor index to the free pool so a future Allocate call
// may reuse it. Releasing an index that was never allocated, or releasing
// it twice, is a caller bug but is tolerated rather than panicking.
func (a *Allocator) Release(minor uint32) {
	if minor == reservedMinor {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if minor >= a.next {
		return
	}
	a.free[minor] = true
}

// Major returns the fixed account index this allocator assigns minors
// under.
func (a *Allocator) Major() uint32 {
	return a.major
}
