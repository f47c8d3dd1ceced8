package interpose

import (
	"errors"
	"sync"
)

// registryCapacity bounds how many payloads can be in flight at once. The
// registry rejects stores past this rather than growing.
const registryCapacity = 1024

// ErrRegistryFull is returned when the payload registry has no free slot.
// The submission it rejects must still run, just without instrumentation.
var ErrRegistryFull = errors.New("interpose: payload registry is full")

// payloadRegistry keeps payloads reachable while they cross the thread or
// queue boundary. Handles are generation-checked so a recycled slot never
// satisfies a stale handle.
type payloadRegistry struct {
	mu    sync.Mutex
	slots []registrySlot
	free  []uint32
}

type registrySlot struct {
	gen     uint32
	payload any
	live    bool
}

func newPayloadRegistry(capacity int) *payloadRegistry {
	r := &payloadRegistry{
		slots: make([]registrySlot, capacity),
		free:  make([]uint32, 0, capacity),
	}
	for i := capacity - 1; i >= 0; i-- {
		r.free = append(r.free, uint32(i))
	}
	return r
}

// store places payload in a free slot and returns its handle. Handles are
// never zero, so one can ride in a pointer-sized argument unambiguously.
func (r *payloadRegistry) store(payload any) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.free) == 0 {
		return 0, ErrRegistryFull
	}
	idx := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]

	slot := &r.slots[idx]
	slot.payload = payload
	slot.live = true
	return uint64(slot.gen)<<32 | uint64(idx+1), nil
}

// take removes and returns the payload for handle. A stale, recycled, or
// garbage handle returns false; it must never panic and never hand back
// somebody else's payload.
func (r *payloadRegistry) take(handle uint64) (any, bool) {
	low := uint32(handle)
	gen := uint32(handle >> 32)
	if low == 0 {
		return nil, false
	}
	idx := low - 1

	r.mu.Lock()
	defer r.mu.Unlock()

	if int(idx) >= len(r.slots) {
		return nil, false
	}
	slot := &r.slots[idx]
	if !slot.live || slot.gen != gen {
		return nil, false
	}

	payload := slot.payload
	slot.payload = nil
	slot.live = false
	slot.gen++ // retire outstanding handles before the slot is reused
	r.free = append(r.free, idx)
	return payload, true
}
