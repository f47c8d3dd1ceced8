package interpose

import (
	"fmt"
	"strings"
	"sync"
)

// A Rebinding redirects every indirect call to Name through Replacement.
type Rebinding struct {
	// Name is the undecorated symbol name, e.g. "dispatch_async_f".
	Name string

	// Replacement is the function pointer calls are redirected to.
	Replacement uintptr

	// Replaced, if non-nil, receives the pointer found in the first live
	// slot that matches Name. It is written at most once and never
	// overwritten, so it holds the original binding no matter how many
	// times the table is reapplied.
	Replaced *uintptr
}

var (
	tableMu sync.Mutex
	table   []Rebinding
)

// installTable atomically replaces the active table with a copy of
// rebindings. Readers that already took a snapshot keep iterating the old
// copy; nobody ever sees a partially updated table.
func installTable(rebindings []Rebinding) error {
	for i, r := range rebindings {
		if r.Name == "" {
			return fmt.Errorf("rebinding %d: empty symbol name", i)
		}
		if r.Replacement == 0 {
			return fmt.Errorf("rebinding %q: zero replacement pointer", r.Name)
		}
	}

	cp := make([]Rebinding, len(rebindings))
	copy(cp, rebindings)

	tableMu.Lock()
	table = cp
	tableMu.Unlock()
	return nil
}

func snapshotTable() []Rebinding {
	tableMu.Lock()
	defer tableMu.Unlock()
	return table
}

// trimLinkerPrefix strips the single leading underscore the darwin linker
// adds to C symbol names. Everything after this point is mangling-agnostic.
func trimLinkerPrefix(name string) string {
	return strings.TrimPrefix(name, "_")
}

// resolveRebinding returns the first entry whose name exactly matches the
// undecorated symbol name, or nil. A miss is normal per-symbol traffic, not
// an error: most symbols in any image are not targets.
func resolveRebinding(rebindings []Rebinding, symname string) *Rebinding {
	for i := range rebindings {
		if rebindings[i].Name == symname {
			return &rebindings[i]
		}
	}
	return nil
}
