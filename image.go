package interpose

import (
	"unsafe"

	"github.com/apex/log"
)

// 64-bit Mach-O structures, declared here rather than taken from a parsing
// library. A loaded image is walked in place through its header pointer and
// load slide; there is no file and no io.ReaderAt to hand a parser.

const (
	magic64 = 0xfeedfacf

	lcSegment64 = 0x19
	lcSymtab    = 0x02
	lcDysymtab  = 0x0b

	sectionTypeMask        = 0x000000ff
	sNonLazySymbolPointers = 0x06
	sLazySymbolPointers    = 0x07

	indirectSymbolLocal = 0x80000000
	indirectSymbolAbs   = 0x40000000

	segData      = "__DATA"
	segDataConst = "__DATA_CONST"
	segLinkedit  = "__LINKEDIT"
)

type machHeader64 struct {
	Magic      uint32
	CPU        uint32
	CPUSub     uint32
	FileType   uint32
	NCmds      uint32
	SizeOfCmds uint32
	Flags      uint32
	Reserved   uint32
}

type loadCommand struct {
	Cmd     uint32
	CmdSize uint32
}

type segmentCommand64 struct {
	Cmd      uint32
	CmdSize  uint32
	SegName  [16]byte
	VMAddr   uint64
	VMSize   uint64
	FileOff  uint64
	FileSize uint64
	MaxProt  int32
	InitProt int32
	NSects   uint32
	Flags    uint32
}

type section64 struct {
	SectName  [16]byte
	SegName   [16]byte
	Addr      uint64
	Size      uint64
	Offset    uint32
	Align     uint32
	RelOff    uint32
	NReloc    uint32
	Flags     uint32
	Reserved1 uint32
	Reserved2 uint32
	Reserved3 uint32
}

type symtabCommand struct {
	Cmd     uint32
	CmdSize uint32
	SymOff  uint32
	NSyms   uint32
	StrOff  uint32
	StrSize uint32
}

type dysymtabCommand struct {
	Cmd            uint32
	CmdSize        uint32
	ILocalSym      uint32
	NLocalSym      uint32
	IExtDefSym     uint32
	NExtDefSym     uint32
	IUndefSym      uint32
	NUndefSym      uint32
	TOCOff         uint32
	NTOC           uint32
	ModTabOff      uint32
	NModTab        uint32
	ExtRefSymOff   uint32
	NExtRefSyms    uint32
	IndirectSymOff uint32
	NIndirectSyms  uint32
	ExtRelOff      uint32
	NExtRel        uint32
	LocRelOff      uint32
	NLocRel        uint32
}

type nlist64 struct {
	Strx  uint32
	Type  uint8
	Sect  uint8
	Desc  uint16
	Value uint64
}

// linkeditInfo is the transient per-image view needed to put a name to a
// pointer slot: the symbol table, string table, and indirect symbol index
// array, all located through __LINKEDIT.
type linkeditInfo struct {
	symtab    *nlist64
	nsyms     uint32
	strtab    uintptr
	strsize   uint32
	indirect  *uint32
	nindirect uint32
}

func fixedString(b [16]byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b[:])
}

// rebindImage patches every lazy and non-lazy symbol pointer section of one
// loaded image. A malformed or unrecognized layout skips the whole image;
// an unexpected binary must never take the process down.
func rebindImage(header unsafe.Pointer, slide uintptr, rebindings []Rebinding) {
	if header == nil || len(rebindings) == 0 {
		return
	}
	h := (*machHeader64)(header)
	if h.Magic != magic64 {
		log.Debugf("interpose: skipping image with unsupported magic %#x", h.Magic)
		return
	}

	var (
		linkedit *segmentCommand64
		symCmd   *symtabCommand
		dysymCmd *dysymtabCommand
	)

	cmdBase := uintptr(header) + unsafe.Sizeof(machHeader64{})
	cur := cmdBase
	for i := uint32(0); i < h.NCmds; i++ {
		lc := (*loadCommand)(unsafe.Pointer(cur))
		if lc.CmdSize < uint32(unsafe.Sizeof(loadCommand{})) {
			log.Debug("interpose: skipping image with malformed load command")
			return
		}
		switch lc.Cmd {
		case lcSegment64:
			seg := (*segmentCommand64)(unsafe.Pointer(cur))
			if fixedString(seg.SegName) == segLinkedit {
				linkedit = seg
			}
		case lcSymtab:
			symCmd = (*symtabCommand)(unsafe.Pointer(cur))
		case lcDysymtab:
			dysymCmd = (*dysymtabCommand)(unsafe.Pointer(cur))
		}
		cur += uintptr(lc.CmdSize)
	}
	if linkedit == nil || symCmd == nil || dysymCmd == nil || dysymCmd.NIndirectSyms == 0 {
		return
	}

	linkeditBase := slide + uintptr(linkedit.VMAddr) - uintptr(linkedit.FileOff)
	li := linkeditInfo{
		symtab:    (*nlist64)(unsafe.Pointer(linkeditBase + uintptr(symCmd.SymOff))),
		nsyms:     symCmd.NSyms,
		strtab:    linkeditBase + uintptr(symCmd.StrOff),
		strsize:   symCmd.StrSize,
		indirect:  (*uint32)(unsafe.Pointer(linkeditBase + uintptr(dysymCmd.IndirectSymOff))),
		nindirect: dysymCmd.NIndirectSyms,
	}

	cur = cmdBase
	for i := uint32(0); i < h.NCmds; i++ {
		lc := (*loadCommand)(unsafe.Pointer(cur))
		if lc.Cmd == lcSegment64 {
			seg := (*segmentCommand64)(unsafe.Pointer(cur))
			name := fixedString(seg.SegName)
			if name == segData || name == segDataConst {
				sectBase := cur + unsafe.Sizeof(segmentCommand64{})
				for j := uint32(0); j < seg.NSects; j++ {
					sect := (*section64)(unsafe.Pointer(sectBase + uintptr(j)*unsafe.Sizeof(section64{})))
					typ := sect.Flags & sectionTypeMask
					if typ == sLazySymbolPointers || typ == sNonLazySymbolPointers {
						rebindSection(sect, slide, &li, rebindings)
					}
				}
			}
		}
		cur += uintptr(lc.CmdSize)
	}
}

// rebindSection patches one symbol pointer section. The section is made
// writable once, up front; these sections often live in __DATA_CONST, which
// the loader maps read-only.
func rebindSection(sect *section64, slide uintptr, li *linkeditInfo, rebindings []Rebinding) {
	count := uintptr(sect.Size) / unsafe.Sizeof(uintptr(0))
	if count == 0 {
		return
	}
	base := slide + uintptr(sect.Addr)
	slots := unsafe.Slice((*uintptr)(unsafe.Pointer(base)), count)

	if err := protectWritable(base, uintptr(sect.Size)); err != nil {
		log.WithError(err).Debugf("interpose: cannot make section %s writable", fixedString(sect.SectName))
		return
	}

	symtab := unsafe.Slice(li.symtab, li.nsyms)
	indirect := unsafe.Slice(li.indirect, li.nindirect)

	for i := uintptr(0); i < count; i++ {
		idx := uint64(sect.Reserved1) + uint64(i)
		if idx >= uint64(li.nindirect) {
			// Truncated indirect symbol table. Nothing past this point
			// can be named safely.
			return
		}
		symIndex := indirect[idx]
		if symIndex == indirectSymbolAbs || symIndex == indirectSymbolLocal ||
			symIndex == indirectSymbolAbs|indirectSymbolLocal {
			// Local or absolute entry; not an external import.
			continue
		}
		if symIndex >= li.nsyms {
			continue
		}

		name, ok := strtabString(li.strtab, symtab[symIndex].Strx, li.strsize)
		if !ok {
			continue
		}
		r := resolveRebinding(rebindings, trimLinkerPrefix(name))
		if r == nil {
			continue
		}
		if r.Replaced != nil && *r.Replaced == 0 {
			*r.Replaced = slots[i]
		}
		slots[i] = r.Replacement
	}
}

// strtabString reads the NUL-terminated entry at offset strx, never looking
// past the string table's declared size. A truncated table yields no name
// rather than a fault.
func strtabString(strtab uintptr, strx, strsize uint32) (string, bool) {
	if strx == 0 || strx >= strsize {
		return "", false
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(strtab+uintptr(strx))), strsize-strx)
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), true
		}
	}
	return "", false
}
