// Package rebind is the public surface of the Mach-O symbol rebinder:
// Register(bindings) rewrites the lazy and non-lazy indirect symbol
// pointer tables of every currently-loaded and future-loaded image so
// that named external function references resolve to caller-supplied
// replacement functions instead of dyld's original bindings.
//
// Register has a single-shot, thread-unsafe contract: call it from one
// thread, during process initialization, before relying on any rebound
// symbol. See the package-level Register doc for the full precondition.
package rebind

import (
	"log"
	"os"
	"sync"
	"unsafe"

	"github.com/appsworld/go-rebind/internal/dyldhook"
	"github.com/appsworld/go-rebind/internal/machoview"
	"github.com/appsworld/go-rebind/internal/walker"
)

// Rebinding describes one interception: an external symbol name without
// its leading underscore (Mach-O mangles external symbols with a `_`
// prefix; the registry stores the bare form and the walker strips the
// prefix when comparing, never the other way around), the replacement
// function's address, and an optional slot to receive the pointer the
// replacement displaced.
type Rebinding struct {
	// Name is the external symbol name exactly as it appears in the
	// Mach-O string table, minus its leading underscore. "malloc", not
	// "_malloc".
	Name string

	// Replacement is the address of a valid, executable, C-callable
	// function with the same signature as the symbol being replaced.
	// Obtaining such an address from a Go function requires a cgo
	// export trampoline (see pkg/memtrace/hooks.go for the pattern);
	// this package never builds one itself, matching its teacher's own
	// `dlsym`-returns-an-address style of treating function addresses
	// as opaque.
	Replacement unsafe.Pointer

	// Original, if non-nil, receives the pointer a slot held before it
	// was rewritten to Replacement. Every successful rewrite of a slot
	// bound to this entry, in any image, stores into it, so after
	// several rewrites it holds the pointer displaced by the most recent
	// one. A slot that already holds Replacement is not rewritten and
	// leaves Original unmodified, as does a name that matches no slot.
	Original *unsafe.Pointer
}

var (
	mu       sync.Mutex
	bindings []walker.Binding
	debug    = os.Getenv("GOREBIND_DEBUG") != ""
	disabled = os.Getenv("GOREBIND_DISABLE") != ""
)

// Register installs bindings as the process-wide rebinding registry and
// arranges for every currently-loaded and future-loaded image to be
// walked against it.
//
// Precondition: called from a single thread during process
// initialization, before any other thread may have triggered a dyld
// image load (dyld's add-image callback registration, which this
// function drives, is itself not thread-safe). Calling Register more
// than once replaces the binding set but does not reinstall the dyld
// callback — dyld accepts one registration per callback function, and
// this package only ever registers one.
//
// Postcondition: every slot in every image, present and future, whose
// resolved external name (minus leading underscore) matches a Name in
// bindings is rewritten to the corresponding Replacement. For each
// Rebinding with a non-nil Original, each successful rewrite fills it
// with the pointer that slot held before.
//
// Register never returns an error: a malformed image, a section with no
// matching slots, or a kernel protection failure are all silently
// skipped — raising an error here would abort the load of an unrelated
// image on dyld's critical path.
func Register(rebindings []Rebinding) {
	mu.Lock()
	bindings = make([]walker.Binding, len(rebindings))
	for i, r := range rebindings {
		bindings[i] = walker.Binding{
			Name:        r.Name,
			Replacement: uintptr(r.Replacement),
			Original:    originalSlot(r.Original),
		}
	}
	snapshot := bindings
	mu.Unlock()

	if disabled {
		return
	}

	onImage := func(header, slide uintptr) {
		if debug {
			log.Printf("rebind: walking image %s (header=%#x slide=%#x)",
				dyldhook.ImageName(header), header, slide)
		}
		walker.Walk(machoview.Image{Header: header, Slide: slide}, snapshot)
	}

	dyldhook.Install(onImage)
	// dyld itself also replays already-loaded images through a freshly
	// registered callback, so an explicit Sweep here can walk an image
	// dyld already replayed a second time. The walker's idempotent
	// rewrite makes that harmless, so this sweep is done unconditionally
	// rather than relying on that replay behavior.
	dyldhook.Sweep(onImage)
}

func originalSlot(p *unsafe.Pointer) *uintptr {
	if p == nil {
		return nil
	}
	return (*uintptr)(unsafe.Pointer(p))
}
