//go:build linux && cgo && (amd64 || arm64)

package interpose

/*
#cgo LDFLAGS: -ldl

#include <dlfcn.h>
#include <stdlib.h>
#include "shims.h"
*/
import "C"

import (
	"unsafe"

	"github.com/apex/log"
)

// candidateLibraries is the ordered list of shared objects tried when
// locating the real dispatch entry points. The first one that opens wins.
var candidateLibraries = []string{
	"libdispatch.so.0",
	"libdispatch.so",
}

// installShims resolves the original dispatch entry points by name. There
// is no image rebinding here: the shim definitions shadow libdispatch's
// when this library is linked ahead of it, and they forward through the
// originals resolved below. A missing library or symbol leaves
// interception inactive for the affected primitive; calls pass through
// exactly as the dynamic linker bound them, only without context
// propagation.
func installShims() error {
	var handle unsafe.Pointer
	for _, lib := range candidateLibraries {
		cname := C.CString(lib)
		handle = C.dlopen(cname, C.RTLD_LAZY|C.RTLD_GLOBAL)
		C.free(unsafe.Pointer(cname))
		if handle != nil {
			break
		}
	}
	if handle == nil {
		log.Warnf("interpose: no dispatch library found (tried %v); interception inactive", candidateLibraries)
		return nil
	}

	for _, target := range []struct {
		name string
		cell *uintptr
	}{
		{"dispatch_async_f", origCell(C.interpose_orig_async_f_cell())},
		{"dispatch_after_f", origCell(C.interpose_orig_after_f_cell())},
		{"dispatch_async", origCell(C.interpose_orig_async_cell())},
		{"dispatch_after", origCell(C.interpose_orig_after_cell())},
	} {
		cname := C.CString(target.name)
		addr := C.dlsym(handle, cname)
		C.free(unsafe.Pointer(cname))
		if addr == nil {
			log.Warnf("interpose: %s not found; interception inactive for it", target.name)
			continue
		}
		if *target.cell == 0 {
			*target.cell = uintptr(addr)
		}
	}
	return nil
}
