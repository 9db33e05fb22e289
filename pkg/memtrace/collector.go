package memtrace

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/pprof/profile"
)

// Collector serializes every hook callback through a single mutex before
// updating the call tree. The Rust original calls into an unsynchronized
// Tree directly; this package hooks a process-wide allocator, so more
// than one goroutine can be inside a hook at once and the tree needs
// real mutual exclusion, not just the original's implicit
// single-threadedness.
type Collector struct {
	mu   sync.Mutex
	tree *Tree
}

// NewCollector returns an empty allocation collector.
func NewCollector() *Collector {
	return &Collector{tree: NewTree()}
}

func (c *Collector) OnMalloc(size uint64, ptr uintptr) {
	frames := Capture(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.OnMalloc(frames, size, ptr)
}

func (c *Collector) OnCalloc(num, size uint64, ptr uintptr) {
	frames := Capture(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.OnCalloc(frames, num, size, ptr)
}

func (c *Collector) OnRealloc(newSize uint64, ptr uintptr) {
	frames := Capture(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.OnRealloc(frames, newSize, ptr)
}

func (c *Collector) OnFree(ptr uintptr) {
	frames := Capture(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.OnFree(frames, ptr)
}

// SaveProfile renders the current call tree as a pprof profile and
// writes it, gzip-compressed, to path. Each tree node with at least one
// byte of total traffic becomes one sample, its call path (root to that
// node) becomes the sample's Location stack, and total_allocated /
// total_freed become its two value types — the pprof-native equivalent
// of the Rust original's per-line flamegraph folded-stack format.
func (c *Collector) SaveProfile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "total_allocated", Unit: "bytes"},
			{Type: "total_freed", Unit: "bytes"},
		},
		TimeNanos: 1,
	}

	funcs := make(map[string]*profile.Function)
	locs := make(map[string]*profile.Location)
	nextFuncID := uint64(1)
	nextLocID := uint64(1)

	funcFor := func(name string, file string, line int) *profile.Function {
		if fn, ok := funcs[name]; ok {
			return fn
		}
		fn := &profile.Function{
			ID:         nextFuncID,
			Name:       name,
			SystemName: name,
			Filename:   file,
		}
		nextFuncID++
		funcs[name] = fn
		p.Function = append(p.Function, fn)
		return fn
	}

	locFor := func(frame Frame) *profile.Location {
		key := fmt.Sprintf("%s:%s:%d", frame.Function, frame.File, frame.Line)
		if loc, ok := locs[key]; ok {
			return loc
		}
		fn := funcFor(frame.Function, frame.File, frame.Line)
		loc := &profile.Location{
			ID: nextLocID,
			Line: []profile.Line{
				{Function: fn, Line: int64(frame.Line)},
			},
		}
		nextLocID++
		locs[key] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	c.tree.Walk(func(ps PathStats) {
		if ps.TotalAllocated == 0 && ps.TotalFreed == 0 {
			return
		}
		locations := make([]*profile.Location, len(ps.Path))
		for i, frame := range ps.Path {
			// pprof orders a sample's locations leaf-first.
			locations[len(ps.Path)-1-i] = locFor(frame)
		}
		p.Sample = append(p.Sample, &profile.Sample{
			Location: locations,
			Value:    []int64{int64(ps.TotalAllocated), int64(ps.TotalFreed)},
		})
	})

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("memtrace: create %s: %w", path, err)
	}
	defer f.Close()

	if err := p.Write(f); err != nil {
		return fmt.Errorf("memtrace: write profile: %w", err)
	}
	return nil
}
