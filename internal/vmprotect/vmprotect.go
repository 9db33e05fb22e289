// Package vmprotect implements a scoped page-protection flip: make a
// virtual memory range writable, run a function, and restore it to
// read-execute on every exit path of that function, including a panic.
// If the kernel refuses to make the range writable, the function is not
// run and no restore is attempted. The cgo shim shape (a small C helper compiled alongside the package,
// called through a Go wrapper) is grounded on
// github.com/blacktop/go-macho's pkg/swift/engine_darwin.go, which wraps
// dlopen/dlsym the same way this package wraps mach_vm_protect.
package vmprotect

import "fmt"

// ErrProtect is returned when the kernel refuses to change protection on
// the requested range. Not fatal to the caller's walk: the walker treats
// it as "slot left unchanged" and moves on.
type ErrProtect struct {
	Addr uintptr
	Size uintptr
	Code int32
}

func (e *ErrProtect) Error() string {
	return fmt.Sprintf("vmprotect: mach_vm_protect(addr=0x%x, size=0x%x) failed: kern_return %d", e.Addr, e.Size, e.Code)
}
