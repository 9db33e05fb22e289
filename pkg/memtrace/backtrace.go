package memtrace

import "runtime"

// Frame is one call site on a captured stack: the function that made
// the allocation call, and where in source it made it.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Capture walks the calling goroutine's stack via runtime.Callers and
// returns it innermost-frame-first. Capture's own frame is always left
// out; skip drops that many further frames, starting with Capture's
// caller (the Collector hook methods pass 1 to leave out their own
// frame).
//
// This only unwinds the Go-side call chain. A malloc triggered from
// native C code outside any cgo call boundary currently executing on
// this goroutine will not appear here; the Rust original's backtrace
// crate walks native frames directly, which runtime.Callers has no
// equivalent for.
func Capture(skip int) []Frame {
	pc := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pc)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pc[:n])

	var out []Frame
	for {
		frame, more := frames.Next()
		out = append(out, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return out
}
