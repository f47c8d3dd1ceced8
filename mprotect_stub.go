//go:build !darwin && !linux

package interpose

// No live patching happens on these platforms. The scanner still compiles
// everywhere so it can walk synthetic images in tests.
func protectWritable(addr, size uintptr) error {
	return nil
}
