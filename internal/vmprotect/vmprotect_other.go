//go:build !darwin

package vmprotect

import "errors"

// ErrUnsupported is returned on every platform but Darwin: the Mach VM
// protection call this package wraps is Apple-specific and has no
// equivalent elsewhere.
var ErrUnsupported = errors.New("vmprotect: unsupported on this platform")

// Writable is a no-op stub so the rest of the module stays buildable (and
// its platform-independent logic testable) on non-Darwin hosts.
func Writable(addr, size uintptr, fn func()) error {
	return ErrUnsupported
}
