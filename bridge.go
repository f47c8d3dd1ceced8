package interpose

import "unsafe"

// A ContextBridge gets and sets the ambient dependency-injection context
// for the current logical execution. The container owns the storage; this
// package only calls through it, capturing at submission and restoring
// just before the work runs.
type ContextBridge interface {
	// Current returns the ambient context, or nil when there is none.
	Current() unsafe.Pointer

	// SetCurrent makes ctx the ambient context for subsequent Current
	// calls on the same logical execution. nil clears it.
	SetCurrent(ctx unsafe.Pointer)
}

// A BlockTransformer wraps an opaque closure so that invoking the result
// restores ctx and then invokes the original closure. It must behave as a
// pure function. The result is retained by this package until the
// underlying primitive consumes it.
type BlockTransformer func(ctx, block unsafe.Pointer) unsafe.Pointer

// SetContextBridge registers the bridge used to capture and restore the
// ambient context. Without one, intercepted work runs with no context.
func SetContextBridge(b ContextBridge) {
	shimMu.Lock()
	bridge = b
	shimMu.Unlock()
}

// SetBlockTransformer registers the transformer used for the opaque-block
// submission forms. Without one, block submissions pass through untouched.
func SetBlockTransformer(t BlockTransformer) {
	shimMu.Lock()
	transformer = t
	shimMu.Unlock()
}
