//go:build darwin

package vmprotect

/*
#include <mach/mach.h>
#include <mach/mach_vm.h>

static kern_return_t rebind_vm_writable(mach_vm_address_t addr, mach_vm_size_t size) {
	return mach_vm_protect(mach_task_self(), addr, size, 0,
		VM_PROT_READ | VM_PROT_WRITE | VM_PROT_COPY);
}

static kern_return_t rebind_vm_executable(mach_vm_address_t addr, mach_vm_size_t size) {
	return mach_vm_protect(mach_task_self(), addr, size, 0,
		VM_PROT_READ | VM_PROT_EXECUTE);
}
*/
import "C"

// Writable flips [addr, addr+size) to VM_PROT_READ|VM_PROT_WRITE|VM_PROT_COPY
// (VM_PROT_COPY forces copy-on-write so the write never disturbs a page
// shared with other processes mapping the same image), invokes fn, then
// restores VM_PROT_READ|VM_PROT_EXECUTE unconditionally — even if fn
// panics. If the kernel refuses the initial protection change, fn is
// never called and ErrProtect is returned; callers treat this as a
// silent-skip condition for the slot in question, not a fatal error for
// the process.
func Writable(addr, size uintptr, fn func()) error {
	if kr := C.rebind_vm_writable(C.mach_vm_address_t(addr), C.mach_vm_size_t(size)); kr != C.KERN_SUCCESS {
		return &ErrProtect{Addr: addr, Size: size, Code: int32(kr)}
	}
	defer C.rebind_vm_executable(C.mach_vm_address_t(addr), C.mach_vm_size_t(size))
	fn()
	return nil
}
