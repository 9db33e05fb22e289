// Package memtrace is a worked example of pkg/rebind: it rebinds
// malloc, calloc, realloc and free to wrapper functions that record
// every allocation event into a Collector, then call through to the
// original libc implementation. Install wires the hooks; Collector
// aggregates what they report into a call tree a pprof profile can be
// built from.
package memtrace

import (
	"unsafe"

	"github.com/appsworld/go-rebind/pkg/rebind"
)

var collector = NewCollector()

// Collect returns the process-wide collector Install's hooks report
// into.
func Collect() *Collector { return collector }

// rebindingSpec is the platform-specific half of a hook registration:
// the cgo trampoline address and the package-level variable that should
// receive the displaced original. hookRebindings builds these from C
// addresses that only exist under a cgo build, so the conversion to
// rebind.Rebinding happens here in platform-independent code.
type rebindingSpec struct {
	name        string
	replacement unsafe.Pointer
	original    *unsafe.Pointer
}

// Install rebinds malloc/calloc/realloc/free process-wide to this
// package's instrumented wrappers. Must be called before any code whose
// allocations should be traced runs, following the same single-shot,
// init-time precondition as rebind.Register itself.
func Install() {
	specs := hookRebindings()
	rebindings := make([]rebind.Rebinding, len(specs))
	for i, s := range specs {
		rebindings[i] = rebind.Rebinding{
			Name:        s.name,
			Replacement: s.replacement,
			Original:    s.original,
		}
	}
	rebind.Register(rebindings)
}
