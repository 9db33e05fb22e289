//go:build darwin

package dyldhook

/*
#include <dlfcn.h>
#include <mach-o/dyld.h>
#include <mach-o/loader.h>
#include <stdint.h>
#include <stdlib.h>

extern void rebindAddImageGo(void *header, intptr_t slide);

static void rebind_add_image_trampoline(const struct mach_header *mh, intptr_t slide) {
	rebindAddImageGo((void *)mh, slide);
}

static void rebind_register_add_image(void) {
	_dyld_register_func_for_add_image(rebind_add_image_trampoline);
}

static uint32_t rebind_image_count(void) {
	return _dyld_image_count();
}

static const struct mach_header *rebind_image_header(uint32_t index) {
	return _dyld_get_image_header(index);
}

static intptr_t rebind_image_slide(uint32_t index) {
	return _dyld_get_image_vmaddr_slide(index);
}

static const char *rebind_image_name(const void *header) {
	Dl_info info;
	if (dladdr(header, &info) == 0 || info.dli_fname == NULL) {
		return NULL;
	}
	return info.dli_fname;
}
*/
import "C"

import (
	"sync"
	"unsafe"
)

var (
	mu        sync.Mutex
	callback  Callback
	installed bool
)

//export rebindAddImageGo
func rebindAddImageGo(header unsafe.Pointer, slide C.intptr_t) {
	mu.Lock()
	cb := callback
	mu.Unlock()
	if cb != nil {
		cb(uintptr(header), uintptr(slide))
	}
}

// Install registers cb as the process-wide dyld add-image callback. dyld
// accepts one registration per distinct C function pointer; this
// package only ever hands it rebind_add_image_trampoline, so a second
// Install call just swaps the Go-side callback without re-registering
// with dyld.
func Install(cb Callback) {
	mu.Lock()
	callback = cb
	alreadyInstalled := installed
	installed = true
	mu.Unlock()

	if alreadyInstalled {
		return
	}
	C.rebind_register_add_image()
}

// Sweep walks every image dyld has already loaded and invokes cb once per
// image, so bindings apply retroactively to images loaded before a
// callback was ever installed.
func Sweep(cb Callback) {
	count := uint32(C.rebind_image_count())
	for i := uint32(0); i < count; i++ {
		hdr := C.rebind_image_header(C.uint32_t(i))
		if hdr == nil {
			continue
		}
		slide := C.rebind_image_slide(C.uint32_t(i))
		cb(uintptr(unsafe.Pointer(hdr)), uintptr(slide))
	}
}

// ImageName resolves a loaded image's header address back to the path
// dyld loaded it from, via dladdr. Diagnostic use only — callers should
// not gate any rewrite decision on it, only logging.
func ImageName(header uintptr) string {
	cname := C.rebind_image_name(unsafe.Pointer(header))
	if cname == nil {
		return ""
	}
	return C.GoString(cname)
}
