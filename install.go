package interpose

import "sync"

var (
	installOnce sync.Once
	installErr  error
)

// Install intercepts the dispatch submission primitives so that submitted
// work carries the ambient context across the queue boundary. It is safe
// to call any number of times from any number of goroutines: the one-time
// work runs once and every call returns the same result.
func Install() error {
	installOnce.Do(func() {
		installErr = installShims()
	})
	return installErr
}

// Rebind applies rebindings to every loaded image and to every image
// loaded afterward. Calling Rebind again replaces the table wholesale; the
// add-image callback is only ever registered once. A symbol with no live
// slot anywhere is simply left alone.
func Rebind(rebindings []Rebinding) error {
	if len(rebindings) == 0 {
		return nil
	}
	if err := installTable(rebindings); err != nil {
		return err
	}
	registerAddImageOnce()
	rebindAllImages(snapshotTable())
	return nil
}
