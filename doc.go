// Redirect dynamically linked calls at runtime
//
// Package interpose rewrites the indirect-call pointer tables of loaded
// Mach-O images so that calls to a small set of named functions land in
// replacement functions instead. It uses that to intercept the dispatch
// submission primitives and carry an ambient dependency-injection context
// across the queue boundary: the context is captured when work is
// submitted and restored on whatever thread eventually runs it.
//
// Limitations:
//   - Live patching only works on 64-bit darwin; elsewhere Install is a
//     no-op and calls pass through unintercepted.
//   - Patched slots are never restored. There is no uninstall.
//   - A fixed number of submissions can be in flight at once; past that,
//     work still runs but without context propagation.
//   - Patching a running process is inherently unsupported territory.
package interpose
