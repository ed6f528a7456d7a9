package call

import "sync"

// ID identifies one channel. Zero is reserved as "no channel".
type ID uint32

// PassThroughID is the obfuscated correlation token exchanged with the
// station to match asynchronous media instructions to a call. It is the
// bitwise complement of the channel ID and opaque to callers.
type PassThroughID uint32

// maxCallID is the last usable channel ID before the counter wraps.
const maxCallID = 0xFFFFFFFF

// Allocator hands out process-wide monotonically increasing channel IDs.
// The counter starts at 1 and wraps back to 1 past the 32-bit maximum, so
// an ID of 0 is never produced. Uniqueness among live channels holds as
// long as fewer than 2^32-1 channels are created without any retiring;
// retirement is deliberately not tracked (stale IDs fail registry lookup
// instead).
type Allocator struct {
	mu   sync.Mutex
	next uint32
}

// NewAllocator creates an allocator with the counter at its initial value.
func NewAllocator() *Allocator {
	return &Allocator{next: 1}
}

// Next returns a fresh channel ID and its paired pass-through token.
func (a *Allocator) Next() (ID, PassThroughID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next == maxCallID {
		a.next = 1
	}
	id := ID(a.next)
	a.next++
	return id, PassThroughID(uint32(id) ^ 0xFFFFFFFF)
}

// Position returns the next ID the allocator will hand out. Exposed for
// telemetry only.
func (a *Allocator) Position() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}
