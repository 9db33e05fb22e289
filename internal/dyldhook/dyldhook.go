// Package dyldhook wraps dyld's "add image" callback facility. It
// installs a single process-wide Go callback, sweeps already-loaded
// images into it once at registration, and then routes every future
// dyld image load to the same callback. The cgo shim shape mirrors
// github.com/blacktop/go-macho's pkg/swift/engine_darwin.go.
package dyldhook

// Callback is invoked once per image: already-loaded images at
// registration time, then once per subsequent load, on the loading
// thread.
type Callback func(header uintptr, slide uintptr)
