//go:build darwin

package memtrace

/*
#include <stddef.h>

typedef void *(*malloc_fn)(size_t);
typedef void *(*calloc_fn)(size_t, size_t);
typedef void *(*realloc_fn)(void *, size_t);
typedef void (*free_fn)(void *);

static void *call_original_malloc(void *fn, size_t size) {
	return ((malloc_fn)fn)(size);
}

static void *call_original_calloc(void *fn, size_t num, size_t size) {
	return ((calloc_fn)fn)(num, size);
}

static void *call_original_realloc(void *fn, void *ptr, size_t size) {
	return ((realloc_fn)fn)(ptr, size);
}

static void call_original_free(void *fn, void *ptr) {
	((free_fn)fn)(ptr);
}

extern void *hookedMalloc(size_t size);
extern void *hookedCalloc(size_t num, size_t size);
extern void *hookedRealloc(void *ptr, size_t size);
extern void hookedFree(void *ptr);

static void *addr_of_hooked_malloc(void)  { return (void *)hookedMalloc; }
static void *addr_of_hooked_calloc(void)  { return (void *)hookedCalloc; }
static void *addr_of_hooked_realloc(void) { return (void *)hookedRealloc; }
static void *addr_of_hooked_free(void)    { return (void *)hookedFree; }
*/
import "C"

import "unsafe"

var (
	originalMalloc  unsafe.Pointer
	originalCalloc  unsafe.Pointer
	originalRealloc unsafe.Pointer
	originalFree    unsafe.Pointer
)

//export hookedMalloc
func hookedMalloc(size C.size_t) unsafe.Pointer {
	ptr := C.call_original_malloc(originalMalloc, size)
	collector.OnMalloc(uint64(size), uintptr(ptr))
	return ptr
}

//export hookedCalloc
func hookedCalloc(num, size C.size_t) unsafe.Pointer {
	ptr := C.call_original_calloc(originalCalloc, num, size)
	collector.OnCalloc(uint64(num), uint64(size), uintptr(ptr))
	return ptr
}

//export hookedRealloc
func hookedRealloc(in unsafe.Pointer, size C.size_t) unsafe.Pointer {
	ptr := C.call_original_realloc(originalRealloc, in, size)
	collector.OnRealloc(uint64(size), uintptr(ptr))
	return ptr
}

//export hookedFree
func hookedFree(ptr unsafe.Pointer) {
	collector.OnFree(uintptr(ptr))
	C.call_original_free(originalFree, ptr)
}

func hookRebindings() []rebindingSpec {
	return []rebindingSpec{
		{name: "malloc", replacement: C.addr_of_hooked_malloc(), original: &originalMalloc},
		{name: "calloc", replacement: C.addr_of_hooked_calloc(), original: &originalCalloc},
		{name: "realloc", replacement: C.addr_of_hooked_realloc(), original: &originalRealloc},
		{name: "free", replacement: C.addr_of_hooked_free(), original: &originalFree},
	}
}
