package walker

import (
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"

	"github.com/appsworld/go-rebind/internal/machoview"
	"github.com/appsworld/go-rebind/types"
)

// putAt writes v into buf at offset, using the same in-memory Go layout
// Walk reads back through unsafe.Pointer. Building the fixture this way
// keeps the test independent of host struct padding: whatever the Go
// compiler lays out here is exactly what Walk will see.
func putAt[T any](buf []byte, offset int, v T) {
	if offset+int(unsafe.Sizeof(v)) > len(buf) {
		panic("fixture buffer too small")
	}
	*(*T)(unsafe.Pointer(&buf[offset])) = v
}

// fixture lays out a minimal synthetic 64-bit Mach-O image in a plain
// byte slice: one __DATA segment with one S_LAZY_SYMBOL_POINTERS
// section of nslots words, backed by a symbol table, string table and
// indirect symbol table whose names are exactly names in order.
func fixture(names []string) (buf []byte, slotsOffset int) {
	const (
		headerOff   = 0
		segOff      = headerOff + int(unsafe.Sizeof(types.FileHeader{}))
		sectOff     = segOff + int(unsafe.Sizeof(types.Segment64{}))
		symtabOff   = sectOff + int(unsafe.Sizeof(types.Section64{}))
		dysymtabOff = symtabOff + int(unsafe.Sizeof(types.SymtabCmd{}))
		cmdsEnd     = dysymtabOff + int(unsafe.Sizeof(types.DysymtabCmd{}))
	)

	nlistSize := int(unsafe.Sizeof(types.Nlist64{}))
	nlistOff := cmdsEnd
	strtabOff := nlistOff + nlistSize*len(names)

	strtab := []byte{0} // index 0 is conventionally the empty string
	nameOffsets := make([]uint32, len(names))
	for i, n := range names {
		nameOffsets[i] = uint32(len(strtab))
		strtab = append(strtab, []byte("_"+n)...)
		strtab = append(strtab, 0)
	}
	indirectOff := strtabOff + len(strtab)
	indirectOff = (indirectOff + 3) &^ 3 // 4-byte align the uint32 table
	slotsOffset = indirectOff + 4*len(names)
	slotsOffset = (slotsOffset + 7) &^ 7 // 8-byte align the pointer slots

	total := slotsOffset + 8*len(names)
	buf = make([]byte, total)

	putAt(buf, headerOff, types.FileHeader{
		Magic:        types.Magic64,
		NCommands:    3,
		SizeCommands: uint32(dysymtabOff + int(unsafe.Sizeof(types.DysymtabCmd{})) - segOff),
	})

	var segName [16]byte
	copy(segName[:], "__DATA")
	putAt(buf, segOff, types.Segment64{
		LoadCmd: types.LC_SEGMENT_64,
		Len:     uint32(sectOff - segOff + int(unsafe.Sizeof(types.Section64{}))),
		Name:    segName,
		Nsect:   1,
	})

	var sectName [16]byte
	copy(sectName[:], "__la_symbol_ptr")
	putAt(buf, sectOff, types.Section64{
		Name:      sectName,
		Seg:       segName,
		Addr:      uint64(slotsOffset),
		Size:      uint64(8 * len(names)),
		Flags:     types.S_LAZY_SYMBOL_POINTERS,
		Reserve1:  0,
	})

	putAt(buf, symtabOff, types.SymtabCmd{
		LoadCmd: types.LC_SYMTAB,
		Len:     uint32(unsafe.Sizeof(types.SymtabCmd{})),
		Symoff:  uint32(nlistOff),
		Nsyms:   uint32(len(names)),
		Stroff:  uint32(strtabOff),
		Strsize: uint32(len(strtab)),
	})

	putAt(buf, dysymtabOff, types.DysymtabCmd{
		LoadCmd:        types.LC_DYSYMTAB,
		Len:            uint32(unsafe.Sizeof(types.DysymtabCmd{})),
		Indirectsymoff: uint32(indirectOff),
		Nindirectsyms:  uint32(len(names)),
	})

	for i, off := range nameOffsets {
		putAt(buf, nlistOff+i*nlistSize, types.Nlist64{Name: off})
		putAt(buf, indirectOff+i*4, uint32(i))
	}
	copy(buf[strtabOff:], strtab)

	return buf, slotsOffset
}

func slotValue(buf []byte, slotsOffset, i int) uintptr {
	return *(*uintptr)(unsafe.Pointer(&buf[slotsOffset+i*8]))
}

func image(buf []byte) machoview.Image {
	return machoview.Image{Header: uintptr(unsafe.Pointer(&buf[0])), Slide: 0}
}

func TestWalkRewritesMatchingSlot(t *testing.T) {
	buf, slotsOffset := fixture([]string{"malloc", "free"})

	var original uintptr
	replacement := uintptr(0xdeadbeef)
	Walk(image(buf), []Binding{
		{Name: "malloc", Replacement: replacement, Original: &original},
	})

	if got := slotValue(buf, slotsOffset, 0); got != replacement {
		t.Errorf("slot 0 (malloc) = %#x, want %#x", got, replacement)
	}
	if got := slotValue(buf, slotsOffset, 1); got != 0 {
		t.Errorf("slot 1 (free) = %#x, want untouched (0)", got)
	}
	if original != 0 {
		t.Errorf("original = %#x, want 0 (slot started zero)", original)
	}
}

func TestWalkRewritesOnlyNamedSlots(t *testing.T) {
	names := []string{"malloc", "free", "open", "calloc"}
	buf, slotsOffset := fixture(names)

	Walk(image(buf), []Binding{
		{Name: "malloc", Replacement: 0xaaaa},
		{Name: "calloc", Replacement: 0xbbbb},
	})

	got := make([]uintptr, len(names))
	for i := range names {
		got[i] = slotValue(buf, slotsOffset, i)
	}
	want := []uintptr{0xaaaa, 0, 0, 0xbbbb}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rewritten slots mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkFirstMatchWins(t *testing.T) {
	buf, slotsOffset := fixture([]string{"malloc"})

	Walk(image(buf), []Binding{
		{Name: "malloc", Replacement: 0x1111},
		{Name: "malloc", Replacement: 0x2222},
	})

	if got := slotValue(buf, slotsOffset, 0); got != 0x1111 {
		t.Errorf("slot 0 = %#x, want 0x1111 (first registered binding)", got)
	}
}

func TestWalkIsIdempotent(t *testing.T) {
	buf, slotsOffset := fixture([]string{"malloc"})
	_ = slotsOffset

	var firstOriginal, secondOriginal uintptr
	bindings := []Binding{{Name: "malloc", Replacement: 0x1111, Original: &firstOriginal}}
	Walk(image(buf), bindings)
	if firstOriginal != 0 {
		t.Fatalf("unexpected original on first walk: %#x", firstOriginal)
	}

	bindings2 := []Binding{{Name: "malloc", Replacement: 0x1111, Original: &secondOriginal}}
	Walk(image(buf), bindings2)
	if secondOriginal != 0 {
		t.Errorf("second walk of an already-rewritten slot populated Original = %#x, want untouched", secondOriginal)
	}
}

func TestWalkSkipsUnknownNames(t *testing.T) {
	buf, slotsOffset := fixture([]string{"open"})

	Walk(image(buf), []Binding{{Name: "malloc", Replacement: 0x1111}})

	if got := slotValue(buf, slotsOffset, 0); got != 0 {
		t.Errorf("slot for unmatched name was rewritten: %#x", got)
	}
}

func TestWalkSkipsNonPointerSections(t *testing.T) {
	buf, slotsOffset := fixture([]string{"malloc"})
	// Flip the section's flags away from S_LAZY_SYMBOL_POINTERS.
	sectOff := int(unsafe.Sizeof(types.FileHeader{})) + int(unsafe.Sizeof(types.Segment64{}))
	putAt(buf, sectOff+int(unsafe.Offsetof(types.Section64{}.Flags)), types.S_REGULAR)

	Walk(image(buf), []Binding{{Name: "malloc", Replacement: 0x1111}})

	if got := slotValue(buf, slotsOffset, 0); got != 0 {
		t.Errorf("slot in a non-pointer section was rewritten: %#x", got)
	}
}
