// Command memtrace-demo installs the malloc/calloc/realloc/free hooks
// from pkg/memtrace, forces a handful of allocations through cgo so the
// hooks actually fire, and writes the resulting call tree out as a
// pprof profile.
package main

/*
#include <stdlib.h>

static void drive_allocator(void) {
	void *a = malloc(64);
	void *b = calloc(4, 16);
	a = realloc(a, 128);
	free(a);
	free(b);
}
*/
import "C"

import (
	"flag"
	"log"

	"github.com/appsworld/go-rebind/pkg/memtrace"
)

func main() {
	out := flag.String("out", "memtrace.pb.gz", "path to write the pprof profile to")
	flag.Parse()

	memtrace.Install()

	C.drive_allocator()

	if err := memtrace.Collect().SaveProfile(*out); err != nil {
		log.Fatalf("memtrace: %v", err)
	}
	log.Printf("wrote profile to %s", *out)
}
