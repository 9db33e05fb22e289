// Package machoview provides zero-copy typed accessors over a Mach-O
// image already mapped into this process's address space: the header,
// its load commands, and the segments/sections/symbol tables those load
// commands describe. Every accessor is pure pointer arithmetic; nothing
// here allocates or copies, mirroring the read-only, bounds-checked style
// of github.com/blacktop/go-macho's types package, generalized from
// reading a file (io.ReaderAt + file offsets) to reading a live pointer
// (uintptr + load address).
package machoview

import (
	"unsafe"

	"github.com/appsworld/go-rebind/types"
)

// Image is a single loaded Mach-O image: its header address and the
// dyld-assigned slide between its on-disk vmaddrs and where it actually
// landed. Transient — callers must not retain an Image across dyld
// callbacks, since dyld reuses neither the header address nor the slide
// in any way that survives past the callback that reported them.
type Image struct {
	Header uintptr
	Slide  uintptr
}

// header reinterprets the image's header address as a 64-bit Mach-O
// header. This module only supports 64-bit images: every Apple platform
// that still loads third-party dylibs at runtime (the precondition for
// this whole system — a caller runs Register() in its own process) is
// 64-bit or arm64e.
func (img Image) header() *types.FileHeader {
	return (*types.FileHeader)(unsafe.Pointer(img.Header))
}

// Magic reports the image's Mach-O magic number.
func (img Image) Magic() types.Magic {
	return img.header().Magic
}

// Is64 reports whether the image is a 64-bit Mach-O. Non-64-bit images
// are never produced by a live dyld on a supported platform, but the
// check lets callers such as walker.Walk refuse a foreign pointer before
// LoadCommands reads it as a 64-bit header; LoadCommands itself does not
// check.
func (img Image) Is64() bool {
	return img.Magic() == types.Magic64
}

const fileHeaderSize64 = uintptr(types.FileHeaderSize64)

// LoadCommand is one load command's address plus its declared size.
type LoadCommand struct {
	Addr uintptr
	Cmd  types.LoadCmd
	Size uint32
}

// rawLoadCmd is the {cmd, cmdsize} prefix shared by every load command.
type rawLoadCmd struct {
	Cmd  types.LoadCmd
	Size uint32
}

// LoadCommands iterates the image's load commands starting at
// header+sizeof(header), stepping by each command's cmdsize, for ncmds
// iterations. It stops early if an iteration would step past the
// header's declared sizeofcmds or overflow the address space. The
// callback returns false to stop iteration early.
func (img Image) LoadCommands(yield func(LoadCommand) bool) {
	hdr := img.header()
	cursor := img.Header + fileHeaderSize64
	end := cursor + uintptr(hdr.SizeCommands)

	for i := uint32(0); i < hdr.NCommands; i++ {
		if cursor+unsafe.Sizeof(rawLoadCmd{}) > end {
			return
		}
		raw := (*rawLoadCmd)(unsafe.Pointer(cursor))
		if raw.Size < uint32(unsafe.Sizeof(rawLoadCmd{})) {
			// A zero or implausibly small cmdsize would spin forever;
			// treat it as a malformed image and stop scanning.
			return
		}
		if !yield(LoadCommand{Addr: cursor, Cmd: raw.Cmd, Size: raw.Size}) {
			return
		}
		next := cursor + uintptr(raw.Size)
		if next <= cursor || next > end {
			return
		}
		cursor = next
	}
}

// SegmentLoadCmd is the arch-appropriate LC_SEGMENT_64 variant; this
// module targets 64-bit only (see header's doc comment).
const SegmentLoadCmd = types.LC_SEGMENT_64

// Segment reinterprets a load command address as a 64-bit segment
// command. Caller must have already checked Cmd == SegmentLoadCmd.
func Segment(lc LoadCommand) *types.Segment64 {
	return (*types.Segment64)(unsafe.Pointer(lc.Addr))
}

// Symtab reinterprets a load command address as LC_SYMTAB's command
// struct. Caller must have already checked Cmd == types.LC_SYMTAB.
func Symtab(lc LoadCommand) *types.SymtabCmd {
	return (*types.SymtabCmd)(unsafe.Pointer(lc.Addr))
}

// Dysymtab reinterprets a load command address as LC_DYSYMTAB's command
// struct. Caller must have already checked Cmd == types.LC_DYSYMTAB.
func Dysymtab(lc LoadCommand) *types.DysymtabCmd {
	return (*types.DysymtabCmd)(unsafe.Pointer(lc.Addr))
}

var segment64Size = unsafe.Sizeof(types.Segment64{})
var section64Size = unsafe.Sizeof(types.Section64{})

// Sections iterates the Nsect sections that immediately follow a 64-bit
// segment command header.
func Sections(seg *types.Segment64, yield func(*types.Section64) bool) {
	base := uintptr(unsafe.Pointer(seg)) + segment64Size
	for i := uint32(0); i < seg.Nsect; i++ {
		sect := (*types.Section64)(unsafe.Pointer(base + uintptr(i)*section64Size))
		if !yield(sect) {
			return
		}
	}
}

// SegmentNameEquals compares a fixed 16-byte, NUL-padded segment-name
// field byte-wise against a reference string, equal up to the
// reference's length.
func SegmentNameEquals(name [16]byte, want string) bool {
	if len(want) > len(name) {
		return false
	}
	for i := 0; i < len(want); i++ {
		if name[i] != want[i] {
			return false
		}
	}
	return true
}

// SectionNameBytes returns a section header's own name field (as opposed
// to its parent segment's), for diagnostics.
func SectionNameBytes(b [16]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
