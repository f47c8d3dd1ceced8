//go:build !(darwin && cgo && (amd64 || arm64))

package interpose

// Image enumeration rides on dyld. Elsewhere the table can still be
// installed and applied to images handed in directly (which is how the
// scanner is tested), but nothing live gets patched.

func registerAddImageOnce() {}

func rebindAllImages(rebindings []Rebinding) {}
