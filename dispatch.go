package interpose

import (
	"sync"
	"unsafe"

	"github.com/apex/log"
)

var (
	shimMu      sync.Mutex
	bridge      ContextBridge
	transformer BlockTransformer

	// payloads keeps in-flight work items and transformed blocks alive
	// until the underlying primitive consumes them. Swapped out by tests.
	payloads = newPayloadRegistry(registryCapacity)
)

// workItem carries one submission across the queue boundary: the context
// captured at submission time and the invocation of the caller's original
// work. It is consumed exactly once, by runWorkItem.
type workItem struct {
	ctx    unsafe.Pointer
	invoke func()
}

func currentBridge() ContextBridge {
	shimMu.Lock()
	defer shimMu.Unlock()
	return bridge
}

// captureWorkItem snapshots the ambient context and registers a work item
// wrapping invoke. The returned handle is all that crosses the boundary.
func captureWorkItem(invoke func()) (uint64, error) {
	var ctx unsafe.Pointer
	if b := currentBridge(); b != nil {
		ctx = b.Current()
	}
	return payloads.store(&workItem{ctx: ctx, invoke: invoke})
}

// runWorkItem is the trampoline body. It restores the captured context,
// runs the original work, and releases the item. The restore happens
// before the invocation on whatever thread this ends up on.
func runWorkItem(handle uint64) {
	payload, ok := payloads.take(handle)
	if !ok {
		log.Debugf("interpose: dropping stale work item handle %#x", handle)
		return
	}
	item := payload.(*workItem)
	if b := currentBridge(); b != nil {
		b.SetCurrent(item.ctx)
	}
	item.invoke()
}

// submitNow routes one "submit now" call through the shim. submit hands a
// wrapped handle to the real primitive; it is nil when the original entry
// point has not been captured yet, in which case the work runs
// synchronously right here rather than hang forever. submitRaw forwards
// the caller's submission untouched and is used when the registry is full.
func submitNow(submit func(handle uint64), submitRaw func(), invoke func()) {
	if submit == nil {
		// Degraded mode: the asynchrony and the context are lost for
		// this one call, the work is not.
		invoke()
		return
	}
	handle, err := captureWorkItem(invoke)
	if err != nil {
		log.WithError(err).Warn("interpose: submission not instrumented")
		if submitRaw != nil {
			submitRaw()
			return
		}
		invoke()
		return
	}
	submit(handle)
}

// submitAfter is the delay variant of submitNow. when rides through to the
// real primitive unchanged.
func submitAfter(when uint64, submit func(when uint64, handle uint64), submitRaw func(), invoke func()) {
	if submit == nil {
		invoke()
		return
	}
	handle, err := captureWorkItem(invoke)
	if err != nil {
		log.WithError(err).Warn("interpose: delayed submission not instrumented")
		if submitRaw != nil {
			submitRaw()
			return
		}
		invoke()
		return
	}
	submit(when, handle)
}

// wrapBlock returns the closure the real primitive should receive for an
// opaque-block submission: the transformed, context-restoring closure when
// a transformer is registered, otherwise the caller's block untouched. The
// transformed closure is pinned in the registry so it stays reachable; it
// has no matching release, which is the accepted capacity bound.
func wrapBlock(block unsafe.Pointer) unsafe.Pointer {
	shimMu.Lock()
	t := transformer
	b := bridge
	shimMu.Unlock()

	if t == nil {
		return block
	}
	var ctx unsafe.Pointer
	if b != nil {
		ctx = b.Current()
	}
	wrapped := t(ctx, block)
	if _, err := payloads.store(wrapped); err != nil {
		log.WithError(err).Warn("interpose: block submission not instrumented")
		return block
	}
	return wrapped
}
