// Package walker implements the central algorithm of this module. Given
// one loaded image, it locates the image's SYMTAB/DYSYMTAB load
// commands, finds every S_LAZY_SYMBOL_POINTERS / S_NON_LAZY_SYMBOL_POINTERS
// section in its __DATA and __DATA_CONST segments, resolves each
// indirect slot's symbol name, and rewrites slots matching a registered
// binding.
package walker

import (
	"unsafe"

	"github.com/appsworld/go-rebind/internal/machoview"
	"github.com/appsworld/go-rebind/internal/vmprotect"
	"github.com/appsworld/go-rebind/types"
)

// Binding is the walker's view of one registry entry: a bare external
// name (no leading underscore), the replacement function address, and
// an optional slot to receive the displaced original pointer. It is the
// same shape as pkg/rebind.Rebinding; the two packages are kept separate
// so the walker has no public-API surface of its own.
type Binding struct {
	Name        string
	Replacement uintptr
	Original    *uintptr
}

var wordSize = unsafe.Sizeof(uintptr(0))

// Walk drives one image through load-command scan, table resolution, and
// section scan. bindings is consulted left to right for each slot (first
// registered match wins); it must not be mutated concurrently with a
// Walk in progress, which the registry's own write-once-per-Register
// contract guarantees.
func Walk(img machoview.Image, bindings []Binding) {
	if !img.Is64() || len(bindings) == 0 {
		return
	}

	// Phase 1: load-command scan for SYMTAB/DYSYMTAB.
	var symtabCmd, dysymtabCmd machoview.LoadCommand
	var haveSymtab, haveDysymtab bool

	img.LoadCommands(func(lc machoview.LoadCommand) bool {
		switch lc.Cmd {
		case types.LC_SYMTAB:
			symtabCmd, haveSymtab = lc, true
		case types.LC_DYSYMTAB:
			dysymtabCmd, haveDysymtab = lc, true
		}
		return true
	})

	if !haveSymtab || !haveDysymtab {
		return
	}

	symtab := machoview.Symtab(symtabCmd)
	dysymtab := machoview.Dysymtab(dysymtabCmd)

	if dysymtab.Nindirectsyms == 0 {
		return
	}

	// Phase 2: table base resolution. symoff/stroff/indirectsymoff are
	// file offsets; the header's own address is the image's load
	// address because dyld maps the file contiguously starting there.
	symbolTable := img.Header + uintptr(symtab.Symoff)
	stringTableAddr := img.Header + uintptr(symtab.Stroff)
	indirectTable := img.Header + uintptr(dysymtab.Indirectsymoff)

	// Phase 3: section scan.
	img.LoadCommands(func(lc machoview.LoadCommand) bool {
		if lc.Cmd != machoview.SegmentLoadCmd {
			return true
		}
		seg := machoview.Segment(lc)
		if !machoview.SegmentNameEquals(seg.Name, "__DATA") &&
			!machoview.SegmentNameEquals(seg.Name, "__DATA_CONST") {
			return true
		}

		machoview.Sections(seg, func(sect *types.Section64) bool {
			walkSection(sect, img.Slide, symbolTable, stringTableAddr, indirectTable, symtab, dysymtab, bindings)
			return true
		})
		return true
	})
}

func walkSection(
	sect *types.Section64,
	slide uintptr,
	symbolTable, stringTableAddr, indirectTable uintptr,
	symtab *types.SymtabCmd,
	dysymtab *types.DysymtabCmd,
	bindings []Binding,
) {
	if !sect.Flags.IsIndirectSymbolPointers() {
		return
	}

	slotBase := uintptr(sect.Addr) + slide
	nslots := sect.Size / uint64(wordSize)

	for k := uint64(0); k < nslots; k++ {
		globalIndex := uint64(sect.Reserve1) + k
		if globalIndex >= uint64(dysymtab.Nindirectsyms) {
			return
		}

		symbolIndex := *(*uint32)(unsafe.Pointer(indirectTable + uintptr(globalIndex)*4))
		if types.IsIndirectSymbolSpecial(symbolIndex) {
			continue
		}
		if symbolIndex >= symtab.Nsyms {
			continue
		}

		nlist := (*types.Nlist64)(unsafe.Pointer(symbolTable + uintptr(symbolIndex)*unsafe.Sizeof(types.Nlist64{})))
		if uint64(symtab.Stroff)+uint64(nlist.Name) >= uint64(symtab.Stroff)+uint64(symtab.Strsize) {
			continue
		}

		name := cString(stringTableAddr + uintptr(nlist.Name))
		if len(name) <= 1 {
			continue
		}
		bare := name[1:] // Mach-O mangles external symbols with a leading '_'

		slotAddr := slotBase + uintptr(k)*wordSize

		for i := range bindings {
			b := &bindings[i]
			if b.Name != bare {
				continue
			}
			rewriteSlot(slotAddr, sect, slotBase, b)
			break // first registered match wins this slot
		}
	}
}

func rewriteSlot(slotAddr uintptr, sect *types.Section64, slotBase uintptr, b *Binding) {
	current := *(*uintptr)(unsafe.Pointer(slotAddr))
	if current == b.Replacement {
		// Already rewritten by an earlier walk of this same image.
		// Nothing to capture, nothing to write.
		return
	}

	err := vmprotect.Writable(slotBase, uintptr(sect.Size), func() {
		*(*uintptr)(unsafe.Pointer(slotAddr)) = b.Replacement
	})
	if err != nil {
		// Protection failure: leave the slot unchanged and move on.
		return
	}
	if b.Original != nil {
		*b.Original = current
	}
}

func cString(addr uintptr) string {
	n := 0
	for {
		c := *(*byte)(unsafe.Pointer(addr + uintptr(n)))
		if c == 0 {
			break
		}
		n++
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = *(*byte)(unsafe.Pointer(addr + uintptr(i)))
	}
	return string(buf)
}
