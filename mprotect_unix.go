//go:build darwin || linux

package interpose

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// protectWritable makes the pages covering [addr, addr+size) readable and
// writable. mprotect wants whole pages, so the range is widened to page
// boundaries on both sides.
func protectWritable(addr, size uintptr) error {
	pageSize := uintptr(unix.Getpagesize())

	// Round address down to page boundary.
	// Example: addr=4196 with pageSize=4096 becomes 4096.
	pageStart := addr &^ (pageSize - 1)

	// Round up to cover complete pages, including the offset from
	// pageStart to addr.
	regionSize := (int(addr-pageStart) + int(size) + int(pageSize) - 1) &^ (int(pageSize) - 1)

	region := unsafe.Slice((*byte)(unsafe.Pointer(pageStart)), regionSize)
	return unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE)
}
