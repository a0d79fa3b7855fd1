package patch

import (
	"github.com/Isaac0-dev/NCPatcher/go/ncp"
	"github.com/Isaac0-dev/NCPatcher/go/ndsbin"
)

// pushBridgeOp/popBridgeOp are the fixed PUSH {r0-r3,r12,lr}/POP {r0-r3,r12,lr}
// opcodes bracketing a hook bridge's relocated original instruction, taken
// verbatim from the hook scenario's worked bytes.
const (
	pushBridgeOp uint32 = 0xE92D500F
	popBridgeOp  uint32 = 0xE8BD500F
)

// ApplyJump rewrites the branch at p.DestAddr to reach p.SrcAddr, choosing
// among the four ARM/THUMB combinations per p.DestThumb (existing code at
// the destination) and p.SrcThumb (the new patch body). An ARM destination
// jumping into THUMB code needs an 8-byte bridge in autogen, since a plain
// 24-bit ARM branch cannot carry a mode switch. A THUMB destination writes
// its 6-byte PUSH{LR}/bridge/POP{PC} sequence directly at dest_addr instead,
// since THUMB code has no single-instruction 32-bit-range branch at all.
func ApplyJump(bin ndsbin.CodeBin, autogen *AutogenRegion, p *PatchRecord) error {
	dest := p.DestAddr &^ 1
	src := p.SrcAddr &^ 1

	switch {
	case !p.DestThumb && !p.SrcThumb:
		ndsbin.WriteWord[uint32](bin, dest, armBranch(armBranchOpBase, dest, src))

	case !p.DestThumb && p.SrcThumb:
		if autogen == nil {
			return ncp.LayoutErrorf("patch %q needs an autogen bridge but destination %d has no autogen region", p.Symbol, p.DestDest)
		}
		bridgeAddr, err := autogen.Allocate(8)
		if err != nil {
			return err
		}
		bridge := encodeThumbJumpBridge(src)
		ndsbin.WriteBytes(bin, bridgeAddr, bridge[:])
		ndsbin.WriteWord[uint32](bin, dest, armBranch(armBranchOpBase, dest, bridgeAddr))

	default: // p.DestThumb, either SrcThumb
		bridge := encodeThumbJumpBridgePushPop(dest, src)
		ndsbin.WriteBytes(bin, dest, bridge[:])
	}
	return nil
}

// ApplyCall rewrites the call instruction at p.DestAddr to a BL/BLX reaching
// p.SrcAddr. isArm7 rejects THUMB-interworking calls, since BLX<label> does
// not exist on armv4 (the ARM7 core).
func ApplyCall(bin ndsbin.CodeBin, isArm7 bool, p *PatchRecord) error {
	dest := p.DestAddr &^ 1
	src := p.SrcAddr &^ 1
	interworking := p.DestThumb != p.SrcThumb

	if interworking && isArm7 {
		return ncp.LayoutErrorf("patch %q is a THUMB-interworking call on ARM7, which has no BLX<label>", p.Symbol)
	}

	switch {
	case !p.DestThumb && !p.SrcThumb:
		ndsbin.WriteWord[uint32](bin, dest, armBranch(armBranchLinkBase, dest, src))
	case !p.DestThumb && p.SrcThumb:
		ndsbin.WriteWord[uint32](bin, dest, armBranch(armThumbInterworkBlxOpBase(src), dest, src))
	case p.DestThumb && !p.SrcThumb:
		ndsbin.WriteWord[uint32](bin, dest, thumbBranch(thumbBranchLXOp, dest, src))
	default:
		ndsbin.WriteWord[uint32](bin, dest, thumbBranch(thumbBranchOp, dest, src))
	}
	return nil
}

// ApplyHook splices a 20-byte bridge into autogen that preserves the
// original instruction at p.DestAddr, calls p.SrcAddr, and returns. THUMB
// on either end is fatal: the bridge is built entirely from ARM opcodes.
func ApplyHook(bin ndsbin.CodeBin, autogen *AutogenRegion, p *PatchRecord) error {
	if p.DestThumb || p.SrcThumb {
		return ncp.LayoutErrorf("patch %q is a hook with THUMB involvement, which is not supported", p.Symbol)
	}
	if autogen == nil {
		return ncp.LayoutErrorf("patch %q needs an autogen bridge but destination %d has no autogen region", p.Symbol, p.DestDest)
	}

	dest := p.DestAddr
	bridgeAddr, err := autogen.Allocate(20)
	if err != nil {
		return err
	}

	origOpcode := ndsbin.ReadWord[uint32](bin, dest)

	ndsbin.WriteWord[uint32](bin, bridgeAddr+0, pushBridgeOp)
	ndsbin.WriteWord[uint32](bin, bridgeAddr+4, armBranch(armBranchLinkBase, bridgeAddr+4, p.SrcAddr&^1))
	ndsbin.WriteWord[uint32](bin, bridgeAddr+8, popBridgeOp)
	ndsbin.WriteWord[uint32](bin, bridgeAddr+12, fixupArmBranch(origOpcode, dest, bridgeAddr+12))
	ndsbin.WriteWord[uint32](bin, bridgeAddr+16, armBranch(armBranchOpBase, bridgeAddr+16, dest+4))

	ndsbin.WriteWord[uint32](bin, dest, armBranch(armBranchOpBase, dest, bridgeAddr))
	return nil
}

// ApplyOver copies the linked section's replacement bytes verbatim into
// p.DestAddr.
func ApplyOver(bin ndsbin.CodeBin, p *PatchRecord) error {
	if len(p.OverData) != int(p.SectionSize) {
		return ncp.LayoutErrorf("patch %q has %d bytes of section data but declares size %d", p.Symbol, len(p.OverData), p.SectionSize)
	}
	ndsbin.WriteBytes(bin, p.DestAddr, p.OverData)
	return nil
}

// ApplyPatch dispatches a single patch record to its kind-specific applier.
// RtRepl patches carry no dest_addr and are never applied directly; they
// only ever reserved a linker symbol pair.
func ApplyPatch(bin ndsbin.CodeBin, autogen *AutogenRegion, isArm7 bool, p *PatchRecord) error {
	switch p.Kind {
	case KindJump:
		return ApplyJump(bin, autogen, p)
	case KindCall:
		return ApplyCall(bin, isArm7, p)
	case KindHook:
		return ApplyHook(bin, autogen, p)
	case KindOver:
		return ApplyOver(bin, p)
	case KindRtRepl:
		return nil
	default:
		return ncp.LayoutErrorf("patch %q has unknown kind %v", p.Symbol, p.Kind)
	}
}

// alignUp rounds n up to the next multiple of align (align must be a power
// of two); align==0 is treated as no alignment requirement.
func alignUp(n, align uint32) uint32 {
	if align == 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// InstallMainArmNewcode grows bin to hold block's linked code, per the
// "Main ARM" newcode installation rule, returning the updated arena-low
// address the game's heap allocator should see. arenaLoAddr is the RAM
// address configured for this target's arena_lo pointer, which
// ExtendForNewcode rewrites with the computed value.
func InstallMainArmNewcode(bin *ndsbin.ArmBin, block *NewcodeBlock, arenaLo uint32, arenaLoAddr uint32) uint32 {
	if len(block.BinData) == 0 && block.BSSSize == 0 {
		return arenaLo
	}
	binSize := uint32(len(block.BinData))
	newcodeAddr := bin.ExtendForNewcode(binSize, block.BSSSize, block.BSSAlign, arenaLoAddr)
	ndsbin.WriteBytes(bin, newcodeAddr, block.BinData)
	return newcodeAddr + alignUp(binSize, block.BSSAlign) + block.BSSSize
}

// InstallOverlayNewcode dispatches an overlay destination's newcode
// installation per its configured RegionMode.
func InstallOverlayNewcode(ov *ndsbin.OverlayBin, entry *ndsbin.OvtEntry, region DestRegion, newcodeAddr uint32, block *NewcodeBlock) error {
	switch region.Mode {
	case RegionAppend:
		limit := region.Length
		needed := entry.RAMSize + entry.BSSSize + uint32(len(block.BinData)) + block.BSSSize
		if limit != 0 && needed > limit {
			return ncp.LayoutErrorf("overlay %d newcode (0x%X bytes) exceeds its region length (0x%X)", entry.OverlayID, needed, limit)
		}
		ov.AppendNewcode(entry, block.BinData, block.BSSSize)
		return nil
	case RegionReplace:
		ov.ReplaceNewcode(entry, newcodeAddr, block.BinData, block.BSSSize)
		return nil
	case RegionCreate:
		return ncp.LayoutErrorf("overlay %d region create is not implemented", entry.OverlayID)
	default:
		return ncp.LayoutErrorf("overlay %d has unknown region mode %v", entry.OverlayID, region.Mode)
	}
}
