package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Isaac0-dev/NCPatcher/go/build"
)

func TestNewcodeBaseAddressMainArmUsesArenaLo(t *testing.T) {
	addr := NewcodeBaseAddress(DestRegion{Dest: -1}, OverlayLayoutInfo{}, 0x02100000)
	assert.Equal(t, uint32(0x02100000), addr)
}

func TestNewcodeBaseAddressOverlayAppendGrowsPastBss(t *testing.T) {
	region := DestRegion{Dest: 3, Mode: RegionAppend}
	ov := OverlayLayoutInfo{RAMAddress: 0x02300000, RAMSize: 0x1000, BSSSize: 0x100}
	addr := NewcodeBaseAddress(region, ov, 0)
	assert.Equal(t, uint32(0x02301100), addr)
}

func TestNewcodeBaseAddressOverlayReplaceUsesFixedAddress(t *testing.T) {
	region := DestRegion{Dest: 2, Mode: RegionReplace, Address: 0x02200000}
	addr := NewcodeBaseAddress(region, OverlayLayoutInfo{RAMAddress: 0x02200500}, 0)
	assert.Equal(t, uint32(0x02200000), addr)
}

func TestNewcodeBaseAddressOverlayReplaceSentinelUsesCurrentRamAddress(t *testing.T) {
	region := DestRegion{Dest: 2, Mode: RegionReplace, Address: newcodeRegionSentinel}
	addr := NewcodeBaseAddress(region, OverlayLayoutInfo{RAMAddress: 0x02200500}, 0)
	assert.Equal(t, uint32(0x02200500), addr)
}

func TestAutogenReservationSumsHookAndArmToThumbJump(t *testing.T) {
	patches := []*PatchRecord{
		{Kind: KindHook, DestDest: -1},
		{Kind: KindJump, DestDest: -1, SrcThumb: true, DestThumb: false},
		{Kind: KindJump, DestDest: -1, SrcThumb: false, DestThumb: false}, // ARM->ARM, no bridge
		{Kind: KindCall, DestDest: -1, SrcThumb: true},                   // not a Jump, no bridge
		{Kind: KindHook, DestDest: 3},
	}
	sizes := AutogenReservation(patches)
	assert.Equal(t, uint32(28), sizes[-1])
	assert.Equal(t, uint32(20), sizes[3])
}

func TestJobsByDestinationGroupsByJobRegionNotCaller(t *testing.T) {
	jobs := []build.SourceFileJob{
		{ObjectPath: "main.o", Region: -1},
		{ObjectPath: "ov2.o", Region: 2},
		{ObjectPath: "ov2_other.o", Region: 2},
	}
	byDest := JobsByDestination(jobs, func(j build.SourceFileJob) int { return j.Region })
	assert.Equal(t, []string{"main.o"}, byDest[-1])
	assert.Equal(t, []string{"ov2.o", "ov2_other.o"}, byDest[2])
}

func TestCreateLinkerScriptMainArmSectionsAreUnfilteredEvenWithJobsByDest(t *testing.T) {
	// Every object, including ones whose jobs belong to an overlay region,
	// must still be visible to the main ARM SECTIONS block: the main
	// binary is never object-filtered, only overlays are.
	script := CreateLinkerScript(LinkerScriptInput{
		SymbolsFile: "symbols.x",
		Objects:     []string{"main.o", "ov2.o"},
		OutputELF:   "arm9.elf",
		Regions: []DestRegion{
			{Dest: -1, Length: 0x1000},
			{Dest: 2, Mode: RegionAppend, Length: 0x1000},
		},
		NewcodeBase: map[int]uint32{-1: 0x02100000, 2: 0x02300000},
		JobsByDest: map[int][]string{
			-1: {"main.o"},
			2:  {"ov2.o"},
		},
	})

	assert.Contains(t, script, "\t\t*((.text))\n\t\t*((.rodata))\n\t\t*((.init_array))\n\t\t*((.data))\n", "main ARM text section must collect from every object unfiltered")
	assert.Contains(t, script, "\t\tov2.o((.text))\n\t\tov2.o((.rodata))\n\t\tov2.o((.init_array))\n\t\tov2.o((.data))\n", "overlay 2 stays scoped to its own objects")
}

func TestCreateLinkerScriptEmitsSectionPatchAssignment(t *testing.T) {
	// A section-declared (non-label, non-over) patch needs its own
	// "<dotless> = .; KEEP(*(<dotted>))" line inside its destination's .text
	// block, or the compiled body has no output-section rule and falls into
	// the trailing /DISCARD/.
	script := CreateLinkerScript(LinkerScriptInput{
		SymbolsFile: "symbols.x",
		Objects:     []string{"a.o"},
		OutputELF:   "arm9.elf",
		Regions:     []DestRegion{{Dest: -1, Length: 0x1000}},
		NewcodeBase: map[int]uint32{-1: 0x02100000},
		SectionPatches: []*PatchRecord{
			{Symbol: ".ncp_jump_02000000", SectionIdx: 0, SrcDest: -1, Kind: KindJump},
		},
	})

	assert.Contains(t, script, "\t\tncp_jump_02000000 = .;\n\t\tKEEP(*(.ncp_jump_02000000))\n")
}

func TestCreateLinkerScriptEmitsRtReplAssignment(t *testing.T) {
	script := CreateLinkerScript(LinkerScriptInput{
		SymbolsFile: "symbols.x",
		Objects:     []string{"a.o"},
		OutputELF:   "arm9.elf",
		Regions:     []DestRegion{{Dest: -1, Length: 0x1000}},
		NewcodeBase: map[int]uint32{-1: 0x02100000},
		RtRepls:     []RtReplRange{{Name: "myTable", Dest: -1}},
	})

	assert.Contains(t, script, "\t\tmyTable_start = .;\n\t\t*(.ncp_rtrepl_myTable)\n\t\tmyTable_end = .;\n")
}

func TestCreateLinkerScriptContainsExpectedStructure(t *testing.T) {
	script := CreateLinkerScript(LinkerScriptInput{
		SymbolsFile: "symbols.x",
		Objects:     []string{"a.o", "b.o"},
		OutputELF:   "arm9.elf",
		Regions:     []DestRegion{{Dest: -1, Length: 0x1000}},
		NewcodeBase: map[int]uint32{-1: 0x02100000},
		AutogenSize: map[int]uint32{-1: 8},
		ExternSymbols: []string{"ncp_jump_02000000"},
	})

	assert.Contains(t, script, "INCLUDE \"symbols.x\"")
	assert.Contains(t, script, "INPUT(")
	assert.Contains(t, script, "OUTPUT(\"arm9.elf\")")
	assert.Contains(t, script, "arm : ORIGIN = 0x02100000")
	assert.Contains(t, script, ".arm.text")
	assert.Contains(t, script, ".arm.bss")
	assert.Contains(t, script, "ncp_autogendata = .;")
	assert.Contains(t, script, "/DISCARD/")
	assert.Contains(t, script, "EXTERN(")
	assert.Contains(t, script, "ncp_jump_02000000")
}
