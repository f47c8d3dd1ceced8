//go:build !cgo || (!amd64 && !arm64) || (!darwin && !linux)

package interpose

import "github.com/apex/log"

// installShims has nothing to intercept here. Calls pass through and
// context propagation is lost; nothing else changes.
func installShims() error {
	log.Debug("interpose: dispatch interception is not supported on this platform")
	return nil
}
