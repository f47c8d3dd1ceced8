package interpose

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

// imageSpec describes a synthetic 64-bit Mach-O image with one symbol
// pointer section. Zero values mean "well-formed defaults"; the override
// fields exist to build the malformed variants the scanner must survive.
type imageSpec struct {
	segName   string   // data segment name, default __DATA
	sectType  uint32   // default non-lazy symbol pointers
	symbols   []string // string table entries; index i is symbol i
	slots     []uint32 // one indirect entry per pointer slot
	reserved1 uint32   // first indirect index claimed by the section

	nIndirect    uint32            // declared indirect count, 0 = actual
	strSize      uint32            // declared string table size, 0 = actual
	strxOverride map[int]uint32    // bogus strx per symbol index
	omitSymtab   bool
	omitDysymtab bool
	badMagic     bool
}

type builtImage struct {
	buf    []byte
	header unsafe.Pointer
	slide  uintptr
	slots  []uintptr // live view of the pointer slots
	orig   []uintptr // the values the slots started with
}

func name16(s string) (b [16]byte) {
	copy(b[:], s)
	return b
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// buildTestImage lays out the image in a byte buffer. Every address inside
// it is an offset from the buffer start, so using the buffer's base address
// as the load slide makes the image walkable in place, the same way a
// dyld-mapped one is.
func buildTestImage(t *testing.T, spec imageSpec) *builtImage {
	t.Helper()

	if spec.segName == "" {
		spec.segName = segData
	}
	if spec.sectType == 0 {
		spec.sectType = sNonLazySymbolPointers
	}

	segCmdSize := int(unsafe.Sizeof(segmentCommand64{}))
	sectSize := int(unsafe.Sizeof(section64{}))

	ncmds := uint32(2)
	cmdsSize := (segCmdSize + sectSize) + segCmdSize
	if !spec.omitSymtab {
		ncmds++
		cmdsSize += int(unsafe.Sizeof(symtabCommand{}))
	}
	if !spec.omitDysymtab {
		ncmds++
		cmdsSize += int(unsafe.Sizeof(dysymtabCommand{}))
	}

	// String table: a leading NUL, then each name NUL-terminated.
	strxs := make([]uint32, len(spec.symbols))
	strtab := []byte{0}
	for i, name := range spec.symbols {
		strxs[i] = uint32(len(strtab))
		strtab = append(strtab, name...)
		strtab = append(strtab, 0)
	}
	strSize := spec.strSize
	if strSize == 0 {
		strSize = uint32(len(strtab))
	}

	nIndirect := spec.nIndirect
	if nIndirect == 0 {
		nIndirect = spec.reserved1 + uint32(len(spec.slots))
	}

	slotsOff := align8(int(unsafe.Sizeof(machHeader64{})) + cmdsSize)
	slotsSize := len(spec.slots) * 8
	indirectOff := slotsOff + slotsSize
	indirectLen := int(spec.reserved1) + len(spec.slots)
	symtabOff := align8(indirectOff + 4*indirectLen)
	symtabSize := len(spec.symbols) * int(unsafe.Sizeof(nlist64{}))
	strtabOff := symtabOff + symtabSize
	total := strtabOff + len(strtab)

	buf := make([]byte, total)

	magic := uint32(magic64)
	if spec.badMagic {
		magic = 0xfeedface
	}
	hdr := machHeader64{Magic: magic, NCmds: ncmds, SizeOfCmds: uint32(cmdsSize)}

	off := 0
	put := func(v any) {
		n, err := binary.Encode(buf[off:], binary.LittleEndian, v)
		if err != nil {
			t.Fatalf("encoding %T: %v", v, err)
		}
		off += n
	}

	put(hdr)
	put(segmentCommand64{
		Cmd:      lcSegment64,
		CmdSize:  uint32(segCmdSize + sectSize),
		SegName:  name16(spec.segName),
		VMAddr:   uint64(slotsOff),
		VMSize:   uint64(slotsSize),
		FileOff:  uint64(slotsOff),
		FileSize: uint64(slotsSize),
		NSects:   1,
	})
	put(section64{
		SectName:  name16("__got"),
		SegName:   name16(spec.segName),
		Addr:      uint64(slotsOff),
		Size:      uint64(slotsSize),
		Flags:     spec.sectType,
		Reserved1: spec.reserved1,
	})
	// __LINKEDIT with vmaddr == fileoff == 0 makes the linkedit base the
	// buffer start, so the table offsets below are plain buffer offsets.
	put(segmentCommand64{
		Cmd:     lcSegment64,
		CmdSize: uint32(segCmdSize),
		SegName: name16(segLinkedit),
	})
	if !spec.omitSymtab {
		put(symtabCommand{
			Cmd:     lcSymtab,
			CmdSize: uint32(unsafe.Sizeof(symtabCommand{})),
			SymOff:  uint32(symtabOff),
			NSyms:   uint32(len(spec.symbols)),
			StrOff:  uint32(strtabOff),
			StrSize: strSize,
		})
	}
	if !spec.omitDysymtab {
		put(dysymtabCommand{
			Cmd:            lcDysymtab,
			CmdSize:        uint32(unsafe.Sizeof(dysymtabCommand{})),
			IndirectSymOff: uint32(indirectOff),
			NIndirectSyms:  nIndirect,
		})
	}

	off = indirectOff
	for i := 0; i < int(spec.reserved1); i++ {
		put(uint32(indirectSymbolLocal))
	}
	for _, s := range spec.slots {
		put(s)
	}

	off = symtabOff
	for i := range spec.symbols {
		strx := strxs[i]
		if v, ok := spec.strxOverride[i]; ok {
			strx = v
		}
		put(nlist64{Strx: strx, Type: 0x01})
	}

	copy(buf[strtabOff:], strtab)

	img := &builtImage{
		buf:    buf,
		header: unsafe.Pointer(&buf[0]),
		slide:  uintptr(unsafe.Pointer(&buf[0])),
		slots:  unsafe.Slice((*uintptr)(unsafe.Pointer(&buf[slotsOff])), len(spec.slots)),
	}
	for i := range img.slots {
		img.slots[i] = 0xa000 + uintptr(i)*0x10
		img.orig = append(img.orig, img.slots[i])
	}
	return img
}
