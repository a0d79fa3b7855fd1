package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Isaac0-dev/NCPatcher/go/build"
	"github.com/Isaac0-dev/NCPatcher/go/elf"
)

func TestParseObjectSectionJump(t *testing.T) {
	sec := &elf.SectionHeader{Name: ".ncp_jump_02000000"}
	e := &elf.Elf{Sections: []*elf.SectionHeader{sec}}

	result := ParseObject(e, 0)
	assert.Len(t, result.Patches, 1)
	p := result.Patches[0]
	assert.Equal(t, KindJump, p.Kind)
	assert.Equal(t, uint32(0x02000000), p.DestAddr)
	assert.Equal(t, -1, p.DestDest)
	assert.False(t, p.IsNcpSet)
	assert.False(t, p.DestThumb)
}

func TestParseObjectOverlaySuffix(t *testing.T) {
	sec := &elf.SectionHeader{Name: ".ncp_hook_0200ABCD_ov3"}
	e := &elf.Elf{Sections: []*elf.SectionHeader{sec}}

	result := ParseObject(e, 0)
	assert.Len(t, result.Patches, 1)
	assert.Equal(t, 3, result.Patches[0].DestDest)
}

func TestParseObjectThumbPrefixSetsDestThumbAndAddrBit(t *testing.T) {
	sec := &elf.SectionHeader{Name: ".ncp_tjump_02000100"}
	e := &elf.Elf{Sections: []*elf.SectionHeader{sec}}

	result := ParseObject(e, 0)
	assert.Len(t, result.Patches, 1)
	p := result.Patches[0]
	assert.True(t, p.DestThumb)
	assert.Equal(t, uint32(0x02000101), p.DestAddr)
}

func TestParseObjectSetVariant(t *testing.T) {
	sec := &elf.SectionHeader{Name: ".ncp_setcall_02000200"}
	e := &elf.Elf{Sections: []*elf.SectionHeader{sec}}

	result := ParseObject(e, 0)
	assert.Len(t, result.Patches, 1)
	assert.True(t, result.Patches[0].IsNcpSet)
	assert.Equal(t, KindCall, result.Patches[0].Kind)
}

func TestParseObjectNcpSetDataSectionIsNotAPatch(t *testing.T) {
	sec := &elf.SectionHeader{Name: ".ncp_set_ov3"}
	e := &elf.Elf{Sections: []*elf.SectionHeader{sec}}

	result := ParseObject(e, 0)
	assert.Empty(t, result.Patches)
	assert.True(t, result.NcpSetDests[3])
}

func TestParseObjectOverAsLabelWarnsAndSkips(t *testing.T) {
	sym := &elf.Symbol{Name: "ncp_over_02000000"}
	e := &elf.Elf{Symbols: []*elf.Symbol{sym}}

	result := ParseObject(e, 0)
	assert.Empty(t, result.Patches)
}

func TestParseObjectLabelDirectiveIsExternRetained(t *testing.T) {
	sym := &elf.Symbol{Name: "ncp_jump_02000000"}
	e := &elf.Elf{Symbols: []*elf.Symbol{sym}}

	result := ParseObject(e, 0)
	assert.Len(t, result.Patches, 1)
	assert.Equal(t, -1, result.Patches[0].SectionIdx)
	assert.Contains(t, result.ExternSymbols, "ncp_jump_02000000")
}

func TestParseObjectNcpDestLabelIsIgnored(t *testing.T) {
	sym := &elf.Symbol{Name: "ncp_dest"}
	e := &elf.Elf{Symbols: []*elf.Symbol{sym}}

	result := ParseObject(e, 0)
	assert.Empty(t, result.Patches)
}

func TestParseObjectRtReplSection(t *testing.T) {
	sec := &elf.SectionHeader{Name: ".ncp_rtrepl_myTable"}
	e := &elf.Elf{Sections: []*elf.SectionHeader{sec}}

	result := ParseObject(e, 0)
	assert.Empty(t, result.Patches)
	assert.Len(t, result.RtRepls, 1)
	assert.Equal(t, "myTable", result.RtRepls[0].Name)
}

func TestParseObjectUnknownKindIsDroppedWithWarning(t *testing.T) {
	sec := &elf.SectionHeader{Name: ".ncp_bogus_02000000"}
	e := &elf.Elf{Sections: []*elf.SectionHeader{sec}}

	result := ParseObject(e, 0)
	assert.Empty(t, result.Patches)
}

func TestResolveSourceRegionsUsesEnclosingRegionNotDirectiveSuffix(t *testing.T) {
	// A patch declared "_ov3" writes to overlay 3 (DestDest), but its
	// replacement code was compiled from a source file that lives under
	// the main ARM region's source directory (Region 0 == -1 here), so
	// SrcAddr should be resolved against the main binary, not overlay 3.
	jobs := []build.SourceFileJob{
		{ObjectPath: "main.o", Region: -1},
		{ObjectPath: "ov3.o", Region: 3},
	}
	patches := []*PatchRecord{
		{Kind: KindJump, DestDest: 3, SrcDest: 3, JobIndex: 0},
		{Kind: KindCall, DestDest: 3, SrcDest: 3, JobIndex: 1},
		{Kind: KindOver, DestDest: 3, SrcDest: 3, JobIndex: 0},
	}

	ResolveSourceRegions(patches, jobs)

	assert.Equal(t, -1, patches[0].SrcDest, "jump's src lives in the region that compiled it, not its own _ov3 suffix")
	assert.Equal(t, 3, patches[1].SrcDest, "call compiled from the overlay 3 region keeps src_dest 3")
	assert.Equal(t, 3, patches[2].SrcDest, "over patches are exempt: src and dest are the same bytes")
}

func TestParseObjectLabelDirectiveDerivesSrcThumbFromSymbolValue(t *testing.T) {
	// The directive itself is "jump" (no 't' prefix), but the label's own
	// compiled address has the low bit set - the actual function is THUMB,
	// and SrcThumb must follow that, not the directive spelling.
	sym := &elf.Symbol{Name: "ncp_jump_02000000", Value: 0x02020001}
	e := &elf.Elf{Symbols: []*elf.Symbol{sym}}

	result := ParseObject(e, 0)
	assert.Len(t, result.Patches, 1)
	assert.True(t, result.Patches[0].SrcThumb)
}

func TestParseObjectLabelDirectiveTPrefixDoesNotOverrideArmSymbol(t *testing.T) {
	// Directive says 'tjump' but the label's compiled address is actually
	// ARM (even low bit) - SrcThumb follows the real symbol, not the prefix.
	sym := &elf.Symbol{Name: "ncp_tjump_02000000", Value: 0x02020000}
	e := &elf.Elf{Symbols: []*elf.Symbol{sym}}

	result := ParseObject(e, 0)
	assert.Len(t, result.Patches, 1)
	assert.False(t, result.Patches[0].SrcThumb)
}

func TestResolveRtReplRegionsUsesEnclosingRegion(t *testing.T) {
	jobs := []build.SourceFileJob{
		{ObjectPath: "main.o", Region: -1},
		{ObjectPath: "ov3.o", Region: 3},
	}
	ranges := []RtReplRange{
		{Name: "myTable", Dest: -1, JobIndex: 1},
	}

	ResolveRtReplRegions(ranges, jobs)

	assert.Equal(t, 3, ranges[0].Dest)
}

func TestSourceThumbDiscoveryCopiesLowBit(t *testing.T) {
	sec := &elf.SectionHeader{Name: ".ncp_jump_02000000"}
	e := &elf.Elf{Sections: []*elf.SectionHeader{sec}}
	fn := &elf.Symbol{Name: "myPatchFn", Type: elf.STT_FUNC, Section: sec, Value: 0x02020001}
	e.Symbols = []*elf.Symbol{fn}

	result := ParseObject(e, 0)
	assert.Len(t, result.Patches, 1)
	assert.True(t, result.Patches[0].SrcThumb)
}
