package interpose

import (
	"fmt"

	"github.com/blacktop/go-macho"
)

// A Site is one indirect-call pointer slot in a Mach-O file that a rebind
// pass for the named symbols would patch.
type Site struct {
	Segment string // e.g. "__DATA_CONST"
	Section string // e.g. "__got"
	Address uint64 // unslid address of the slot
	Symbol  string // undecorated symbol name
	Lazy    bool   // lazy vs non-lazy pointer section
}

// PreviewFile reports every patch site in the Mach-O file at path for the
// given undecorated symbol names, without touching the running process.
// The selection mirrors the live rebinder exactly: lazy and non-lazy
// symbol pointer sections of __DATA and __DATA_CONST, sentinel and
// out-of-range indirect entries skipped, exact name match after the linker
// prefix is trimmed.
func PreviewFile(path string, names []string) ([]Site, error) {
	m, err := macho.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer m.Close()

	if m.Symtab == nil || m.Dysymtab == nil {
		return nil, fmt.Errorf("%s: no symbol table metadata", path)
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[trimLinkerPrefix(n)] = true
	}

	const ptrSize = 8

	var sites []Site
	for _, sec := range m.Sections {
		if sec.Seg != segData && sec.Seg != segDataConst {
			continue
		}
		typ := uint32(sec.Flags) & sectionTypeMask
		if typ != sLazySymbolPointers && typ != sNonLazySymbolPointers {
			continue
		}

		count := sec.Size / ptrSize
		for i := uint64(0); i < count; i++ {
			idx := uint64(sec.Reserved1) + i
			if idx >= uint64(len(m.Dysymtab.IndirectSyms)) {
				break
			}
			symIndex := m.Dysymtab.IndirectSyms[idx]
			if symIndex == indirectSymbolAbs || symIndex == indirectSymbolLocal ||
				symIndex == indirectSymbolAbs|indirectSymbolLocal {
				continue
			}
			if uint64(symIndex) >= uint64(len(m.Symtab.Syms)) {
				continue
			}

			name := trimLinkerPrefix(m.Symtab.Syms[symIndex].Name)
			if !want[name] {
				continue
			}
			sites = append(sites, Site{
				Segment: sec.Seg,
				Section: sec.Name,
				Address: sec.Addr + i*ptrSize,
				Symbol:  name,
				Lazy:    typ == sLazySymbolPointers,
			})
		}
	}
	return sites, nil
}
