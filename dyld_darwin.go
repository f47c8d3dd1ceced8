//go:build darwin && cgo && (amd64 || arm64)

package interpose

/*
#include <stdint.h>
#include <mach-o/dyld.h>

extern void interposeAddImage(const struct mach_header *mh, intptr_t slide);

static void interpose_register_add_image(void) {
	_dyld_register_func_for_add_image(interposeAddImage);
}
*/
import "C"

import (
	"sync"
	"unsafe"
)

var registerOnce sync.Once

// installShims intercepts the dispatch primitives by rebinding them in
// every loaded image.
func installShims() error {
	return Rebind(shimRebindings())
}

// registerAddImageOnce installs the dyld add-image callback. Registration
// is guarded independently of table replacement: the table may be swapped
// many times while the callback stays registered once.
func registerAddImageOnce() {
	registerOnce.Do(func() {
		C.interpose_register_add_image()
	})
}

// interposeAddImage runs on dyld's thread, once per already-loaded image
// at registration and once per image mapped afterward, concurrently with
// whatever the rest of the process is doing.
//
//export interposeAddImage
func interposeAddImage(mh *C.struct_mach_header, slide C.intptr_t) {
	rebindImage(unsafe.Pointer(mh), uintptr(slide), snapshotTable())
}

func rebindAllImages(rebindings []Rebinding) {
	count := uint32(C._dyld_image_count())
	for i := uint32(0); i < count; i++ {
		header := unsafe.Pointer(C._dyld_get_image_header(C.uint32_t(i)))
		slide := uintptr(C._dyld_get_image_vmaddr_slide(C.uint32_t(i)))
		rebindImage(header, slide, rebindings)
	}
}
