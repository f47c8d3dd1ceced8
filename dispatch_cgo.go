//go:build cgo && (darwin || linux) && (amd64 || arm64)

package interpose

/*
#include "shims.h"
*/
import "C"

import "unsafe"

// shimRebindings is the interposition table for the dispatch primitives:
// the two function+argument forms and the two opaque-block forms. The
// Replaced cells live in C so no Go pointer ever crosses the boundary.
func shimRebindings() []Rebinding {
	return []Rebinding{
		{Name: "dispatch_async_f", Replacement: uintptr(C.interpose_shim_async_f()), Replaced: origCell(C.interpose_orig_async_f_cell())},
		{Name: "dispatch_after_f", Replacement: uintptr(C.interpose_shim_after_f()), Replaced: origCell(C.interpose_orig_after_f_cell())},
		{Name: "dispatch_async", Replacement: uintptr(C.interpose_shim_async()), Replaced: origCell(C.interpose_orig_async_cell())},
		{Name: "dispatch_after", Replacement: uintptr(C.interpose_shim_after()), Replaced: origCell(C.interpose_orig_after_cell())},
	}
}

func origCell(cell *C.uintptr_t) *uintptr {
	return (*uintptr)(unsafe.Pointer(cell))
}

// interposeTrampoline is the fixed callback handed to the real primitive
// in place of the caller's function. Its argument is a registry handle,
// not a pointer.
//
//export interposeTrampoline
func interposeTrampoline(arg unsafe.Pointer) {
	runWorkItem(uint64(uintptr(arg)))
}

//export interposeAsyncF
func interposeAsyncF(queue, context, work unsafe.Pointer) {
	orig := uintptr(*C.interpose_orig_async_f_cell())

	var submit func(uint64)
	var raw func()
	if orig != 0 {
		submit = func(handle uint64) {
			// The handle rides in the argument slot; it is not a pointer.
			C.interpose_call_async_f(C.uintptr_t(orig), queue, unsafe.Pointer(uintptr(handle)))
		}
		raw = func() {
			C.interpose_call_async_f_raw(C.uintptr_t(orig), queue, context, work)
		}
	}
	submitNow(submit, raw, func() { C.interpose_call_work(work, context) })
}

//export interposeAfterF
func interposeAfterF(when uint64, queue, context, work unsafe.Pointer) {
	orig := uintptr(*C.interpose_orig_after_f_cell())

	var submit func(uint64, uint64)
	var raw func()
	if orig != 0 {
		submit = func(when, handle uint64) {
			C.interpose_call_after_f(C.uintptr_t(orig), C.uint64_t(when), queue, unsafe.Pointer(uintptr(handle)))
		}
		raw = func() {
			C.interpose_call_after_f_raw(C.uintptr_t(orig), C.uint64_t(when), queue, context, work)
		}
	}
	submitAfter(when, submit, raw, func() { C.interpose_call_work(work, context) })
}

//export interposeWrapBlock
func interposeWrapBlock(block unsafe.Pointer) unsafe.Pointer {
	return wrapBlock(block)
}
