package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Isaac0-dev/NCPatcher/go/elf"
)

func TestResolvePostLinkFillsSrcAddrForSectionPatch(t *testing.T) {
	sec := &elf.SectionHeader{Name: ".ncp_jump_02000000"}
	sym := &elf.Symbol{Name: "ncp_jump_02000000", Value: 0x02400010, SectionIndex: 0}
	e := &elf.Elf{Sections: []*elf.SectionHeader{sec}, Symbols: []*elf.Symbol{sym}}

	patch := &PatchRecord{Symbol: ".ncp_jump_02000000", SectionIdx: 0, Kind: KindJump, DestDest: -1, DestAddr: 0x02000000}

	_, _, err := ResolvePostLink(e, []*PatchRecord{patch}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x02400010), patch.SrcAddr)
	assert.Equal(t, "ncp_jump_02000000", patch.Symbol)
}

func TestResolvePostLinkFillsSrcAddrForLabelPatch(t *testing.T) {
	sym := &elf.Symbol{Name: "ncp_call_02000000", Value: 0x02400020, SectionIndex: 0}
	e := &elf.Elf{Symbols: []*elf.Symbol{sym}}

	patch := &PatchRecord{Symbol: "ncp_call_02000000", SectionIdx: -1, Kind: KindCall, DestDest: -1, DestAddr: 0x02000000}

	_, _, err := ResolvePostLink(e, []*PatchRecord{patch}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x02400020), patch.SrcAddr)
}

func TestResolvePostLinkResolvesOverFromSectionAddress(t *testing.T) {
	sec := &elf.SectionHeader{Name: "myOverlayData", Address: 0x02000500}
	e := &elf.Elf{Sections: []*elf.SectionHeader{sec}}

	patch := &PatchRecord{Symbol: "myOverlayData", Kind: KindOver, DestDest: -1, DestAddr: 0x02000500, SectionSize: 16}

	_, _, err := ResolvePostLink(e, []*PatchRecord{patch}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x02000500), patch.SrcAddr)
}

func TestResolvePostLinkResolvesNcpSetTableLookup(t *testing.T) {
	setSec := &elf.SectionHeader{
		Name:    ".ncp_set_ov3",
		Address: 0x02300000,
		Data:    []byte{0x10, 0x00, 0x40, 0x02, 0x20, 0x00, 0x40, 0x02}, // [0x02400010, 0x02400020]
	}
	sym := &elf.Symbol{Name: "ncp_setjump_02000000_ov3", Value: 0x02300004, SectionIndex: 1}
	e := &elf.Elf{Sections: []*elf.SectionHeader{setSec}, Symbols: []*elf.Symbol{sym}}

	patch := &PatchRecord{
		Symbol: ".ncp_setjump_02000000_ov3", SectionIdx: 1, Kind: KindJump,
		IsNcpSet: true, DestDest: 3, DestAddr: 0x02000000,
	}

	_, _, err := ResolvePostLink(e, []*PatchRecord{patch}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x02400020), patch.SrcAddr)
}

func TestResolvePostLinkCapturesNewcodeBlocksPerDestination(t *testing.T) {
	armText := &elf.SectionHeader{Name: ".arm.bin", Data: []byte{1, 2, 3, 4}, AddrAlign: 4}
	armBss := &elf.SectionHeader{Name: ".arm.bss", Size: 64, AddrAlign: 4}
	ov2Text := &elf.SectionHeader{Name: ".ov2.bin", Data: []byte{5, 6}, AddrAlign: 4}
	e := &elf.Elf{Sections: []*elf.SectionHeader{armText, armBss, ov2Text}}

	_, newcode, err := ResolvePostLink(e, nil, nil)
	require.NoError(t, err)

	require.Contains(t, newcode, -1)
	assert.Equal(t, []byte{1, 2, 3, 4}, newcode[-1].BinData)
	assert.Equal(t, uint32(64), newcode[-1].BSSSize)

	require.Contains(t, newcode, 2)
	assert.Equal(t, []byte{5, 6}, newcode[2].BinData)
}

func TestResolvePostLinkAllowsNonOverlappingPatches(t *testing.T) {
	patches := []*PatchRecord{
		{Symbol: "a", Kind: KindJump, DestDest: -1, DestAddr: 0x02000000},
		{Symbol: "b", Kind: KindJump, DestDest: -1, DestAddr: 0x02000004},
	}
	e := &elf.Elf{}
	_, _, err := ResolvePostLink(e, patches, nil)
	assert.NoError(t, err)
}

func TestResolvePostLinkRejectsOverlappingPatches(t *testing.T) {
	patches := []*PatchRecord{
		{Symbol: "a", Kind: KindOver, DestDest: -1, DestAddr: 0x02000000, SectionSize: 8},
		{Symbol: "b", Kind: KindJump, DestDest: -1, DestAddr: 0x02000004},
	}
	e := &elf.Elf{}
	_, _, err := ResolvePostLink(e, patches, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestResolvePostLinkAllowsSameAddressAcrossDifferentDestinations(t *testing.T) {
	patches := []*PatchRecord{
		{Symbol: "a", Kind: KindJump, DestDest: -1, DestAddr: 0x02000000},
		{Symbol: "b", Kind: KindJump, DestDest: 2, DestAddr: 0x02000000},
	}
	e := &elf.Elf{}
	_, _, err := ResolvePostLink(e, patches, nil)
	assert.NoError(t, err)
}

func TestResolvePostLinkAutogenRegionAllocatesSequentially(t *testing.T) {
	sym := &elf.Symbol{Name: "ncp_autogendata", Value: 0x02100000}
	e := &elf.Elf{Symbols: []*elf.Symbol{sym}}

	autogen, _, err := ResolvePostLink(e, nil, map[int]uint32{-1: 28})
	require.NoError(t, err)
	require.Contains(t, autogen, -1)

	a1, err := autogen[-1].Allocate(20)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x02100000), a1)

	a2, err := autogen[-1].Allocate(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x02100014), a2)

	_, err = autogen[-1].Allocate(4)
	assert.Error(t, err)
}
