//go:build darwin

package vmprotect

import (
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

// TestWritableFlipsARealPage drives Writable against an actual mapped
// page (rather than a scratch Go slice, whose backing memory the
// runtime may not have mapped read-execute in the first place) to
// exercise the real mach_vm_protect round trip: unix.Mmap gives us a
// page at a known, page-aligned address the way a loaded image's
// __DATA segment would be mapped.
func TestWritableFlipsARealPage(t *testing.T) {
	pageSize := unix.Getpagesize()
	data, err := unix.Mmap(-1, 0, pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		t.Fatalf("mmap: %v", err)
	}
	defer unix.Munmap(data)

	addr := uintptr(unsafe.Pointer(&data[0]))

	var wrote bool
	err = Writable(addr, uintptr(pageSize), func() {
		*(*uint64)(unsafe.Pointer(addr)) = 0x1122334455667788
		wrote = true
	})
	if err != nil {
		t.Fatalf("Writable: %v", err)
	}
	if !wrote {
		t.Fatal("fn was never called")
	}
	if got := *(*uint64)(unsafe.Pointer(addr)); got != 0x1122334455667788 {
		t.Errorf("page contents = %#x, want 0x1122334455667788", got)
	}
}
