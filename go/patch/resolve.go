package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Isaac0-dev/NCPatcher/go/elf"
	"github.com/Isaac0-dev/NCPatcher/go/ncp"
	"github.com/Isaac0-dev/NCPatcher/go/relocation"
)

// AutogenRegion is a destination's synthesized-bridge buffer: a linker-
// assigned base address (read back from the ncp_autogendata[_ovN] symbol)
// plus a write cursor the patch applier advances as it places bridges.
type AutogenRegion struct {
	Dest   int
	Base   uint32
	region *relocation.Region[*bridgeSlot]
}

type bridgeSlot struct {
	offset uint64
	size   uint64
}

func (b *bridgeSlot) Offset() uint64     { return b.offset }
func (b *bridgeSlot) SetOffset(o uint64) { b.offset = o }
func (b *bridgeSlot) Size() uint64       { return b.size }
func (b *bridgeSlot) Alignment() uint64  { return 4 }

// NewAutogenRegion wraps base in a relocation.Region so bridge placement
// reuses the teacher's alignment-aware gap search instead of hand-rolled
// cursor arithmetic.
func NewAutogenRegion(dest int, base uint32, reservedSize uint32) *AutogenRegion {
	return &AutogenRegion{
		Dest:   dest,
		Base:   base,
		region: relocation.NewRegion[*bridgeSlot](uint64(base), uint64(reservedSize), false),
	}
}

// Allocate reserves n bytes in the autogen region, returning the RAM
// address the caller should write its bridge at.
func (a *AutogenRegion) Allocate(n uint32) (uint32, error) {
	slot := &bridgeSlot{size: uint64(n)}
	ok, _ := a.region.Place(slot, nil, false)
	if !ok {
		return 0, ncp.LayoutErrorf("autogen region for destination %d is full (could not place %d more bytes)", a.Dest, n)
	}
	return uint32(slot.Offset()), nil
}

// NewcodeBlock is a destination's linked (.text.bin, .bss) extraction: the
// bytes to graft into the destination binary, the bss size to reserve, and
// the alignments the original source's bss-growth math needs.
type NewcodeBlock struct {
	Dest     int
	BinData  []byte
	BinAlign uint32
	BSSSize  uint32
	BSSAlign uint32
}

// ResolvePostLink re-scans the linked ELF, matching symbols and sections
// back against the patch records the directive parser produced, mirroring
// gatherInfoFromElf. autogenSizes is the per-destination reservation the
// layout planner already computed (AutogenReservation), used to size each
// destination's AutogenRegion.
func ResolvePostLink(e *elf.Elf, patches []*PatchRecord, autogenSizes map[int]uint32) (map[int]*AutogenRegion, map[int]*NewcodeBlock, error) {
	autogenBases := map[int]uint32{}

	for _, sym := range e.Symbols {
		if dest, ok := parseAutogenSymbol(sym.Name); ok {
			autogenBases[dest] = uint32(sym.Value)
			continue
		}
		for _, p := range patches {
			// For ncp_set patches the symbol value recorded here is only a
			// placeholder: its offset from the .ncp_set section's address
			// indexes the data table that supplies the real src_addr once
			// sections are scanned below.
			if symbolMatchesPatch(sym, p) {
				p.SrcAddr = uint32(sym.Value)
				p.SectionIdx = int(sym.SectionIndex)
				if strings.HasPrefix(p.Symbol, ".") {
					p.Symbol = strings.TrimPrefix(p.Symbol, ".")
				}
			}
		}
	}

	ncpSetTables := map[int][]byte{}
	ncpSetBases := map[int]uint32{}
	newcode := map[int]*NewcodeBlock{}

	for _, sec := range e.Sections {
		for _, p := range patches {
			if p.Kind == KindOver && p.Symbol == sec.Name {
				p.SrcAddr = uint32(sec.Address)
				p.OverData = sec.Data
			}
		}

		if dest, ok := parseNcpSetSectionName(sec.Name); ok {
			ncpSetTables[dest] = sec.Data
			ncpSetBases[dest] = uint32(sec.Address)
			continue
		}

		if dest, kind, ok := parseNewcodeSectionName(sec.Name); ok {
			nc := newcode[dest]
			if nc == nil {
				nc = &NewcodeBlock{Dest: dest}
				newcode[dest] = nc
			}
			if kind == "bss" {
				nc.BSSSize = sec.Size
				nc.BSSAlign = sec.AddrAlign
			} else {
				nc.BinData = sec.Data
				nc.BinAlign = sec.AddrAlign
			}
		}
	}

	for _, p := range patches {
		if !p.IsNcpSet {
			continue
		}
		table, ok := ncpSetTables[p.DestDest]
		if !ok {
			return nil, nil, ncp.LayoutErrorf("no .ncp_set section found for destination %d", p.DestDest)
		}
		base := ncpSetBases[p.DestDest]
		off := p.SrcAddr - base
		if int(off)+4 > len(table) {
			return nil, nil, ncp.LayoutErrorf("ncp_set table for destination %d too small for entry at offset %d", p.DestDest, off)
		}
		p.SrcAddr = getLE32(table[off : off+4])
	}

	autogen := map[int]*AutogenRegion{}
	for dest, base := range autogenBases {
		autogen[dest] = NewAutogenRegion(dest, base, autogenSizes[dest])
	}

	if err := checkOverlaps(patches); err != nil {
		return nil, nil, err
	}

	return autogen, newcode, nil
}

func symbolMatchesPatch(sym *elf.Symbol, p *PatchRecord) bool {
	if p.SectionIdx >= 0 {
		return strings.TrimPrefix(p.Symbol, ".") == sym.Name
	}
	return p.Symbol == sym.Name
}

func parseAutogenSymbol(name string) (int, bool) {
	if name == "ncp_autogendata" {
		return -1, true
	}
	if strings.HasPrefix(name, "ncp_autogendata_ov") {
		n, err := strconv.Atoi(strings.TrimPrefix(name, "ncp_autogendata_ov"))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func parseNcpSetSectionName(name string) (int, bool) {
	if name == ".ncp_set" {
		return -1, true
	}
	if strings.HasPrefix(name, ".ncp_set_ov") {
		n, err := strconv.Atoi(strings.TrimPrefix(name, ".ncp_set_ov"))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// parseNewcodeSectionName recognizes ".arm.<kind>" and ".ov<N>.<kind>"
// linked output sections: a "bss" suffix is the bss block, and any other
// suffix (such as the ".text" blocks CreateLinkerScript emits) is bin data.
func parseNewcodeSectionName(name string) (dest int, kind string, ok bool) {
	var rest string
	if strings.HasPrefix(name, ".arm.") {
		dest = -1
		rest = strings.TrimPrefix(name, ".arm.")
	} else if strings.HasPrefix(name, ".ov") {
		body := strings.TrimPrefix(name, ".ov")
		idx := strings.Index(body, ".")
		if idx < 0 {
			return 0, "", false
		}
		n, err := strconv.Atoi(body[:idx])
		if err != nil {
			return 0, "", false
		}
		dest = n
		rest = body[idx+1:]
	} else {
		return 0, "", false
	}
	if rest == "bss" {
		return dest, "bss", true
	}
	return dest, "bin", true
}

// checkOverlaps verifies invariant 2: within a destination, no two patch
// records' [dest_addr, dest_addr+size) ranges overlap. It uses a
// relocation.Region per destination as the placement engine (forcing each
// patch at its known address), falling back to a direct pairwise scan to
// name the offending symbols once a placement fails.
func checkOverlaps(patches []*PatchRecord) error {
	byDest := map[int][]*PatchRecord{}
	for _, p := range patches {
		if p.Kind == KindRtRepl {
			continue
		}
		byDest[p.DestDest] = append(byDest[p.DestDest], p)
	}

	var problems []string
	for dest, recs := range byDest {
		region := relocation.NewRegion[*overlapSlot](0, 1<<32, false)
		for _, p := range recs {
			addr := uint64(p.DestAddr &^ 1)
			slot := &overlapSlot{size: uint64(p.Size())}
			ok, _ := region.Place(slot, []uint64{addr}, false)
			if !ok {
				for _, other := range recs {
					if other == p {
						continue
					}
					if rangesOverlap(other.DestAddr&^1, other.Size(), p.DestAddr&^1, p.Size()) {
						problems = append(problems, fmt.Sprintf("destination %d: %q overlaps %q", dest, p.Symbol, other.Symbol))
					}
				}
			}
		}
	}

	if len(problems) > 0 {
		return ncp.LayoutErrorf("overlapping patch destinations:\n%s", strings.Join(problems, "\n"))
	}
	return nil
}

type overlapSlot struct {
	offset uint64
	size   uint64
}

func (o *overlapSlot) Offset() uint64     { return o.offset }
func (o *overlapSlot) SetOffset(v uint64) { o.offset = v }
func (o *overlapSlot) Size() uint64       { return o.size }
func (o *overlapSlot) Alignment() uint64  { return 1 }

func rangesOverlap(aAddr uint32, aSize uint32, bAddr uint32, bSize uint32) bool {
	aEnd := aAddr + aSize
	bEnd := bAddr + bSize
	return aAddr < bEnd && bAddr < aEnd
}
