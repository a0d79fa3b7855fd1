package patch

// ARM/THUMB branch opcode encoding and decoding, ported line-for-line from
// original_source/patch/patchmaker.cpp's makeJumpOpCode/makeThumbJumpOpCode/
// fixupOpCode. All addresses are absolute ARM RAM addresses; THUMB bit-0
// tagging (the low bit set on a function pointer to mark it THUMB) is
// stripped by callers before these are invoked.

const (
	armBranchOpBase   uint32 = 0xEA000000 // B
	armBranchLinkBase uint32 = 0xEB000000 // BL
	thumbBranchOp     uint16 = 0xF800     // BL second halfword
	thumbBranchLXOp    uint16 = 0xE800     // BLX second halfword

	thumbPushLrOp uint16 = 0xB500 // PUSH {LR}
	thumbPopPcOp  uint16 = 0xBD00 // POP {PC}
)

// armBranch encodes an ARM B/BL-family opcode at address from targeting to,
// using opbase as the fixed high byte (cond+family+L bits).
func armBranch(opbase uint32, from, to uint32) uint32 {
	offset := int32(to) - int32(from)
	imm := (offset >> 2) - 2
	return opbase | (uint32(imm) & 0x00FFFFFF)
}

// armBranchTarget recovers the absolute target address an ARM B/BL opcode
// at address from encodes, the inverse of armBranch.
func armBranchTarget(opcode uint32, from uint32) uint32 {
	imm24 := opcode & 0x00FFFFFF
	// sign-extend the 24-bit immediate
	signed := int32(imm24<<8) >> 8
	return uint32(int32(from) + ((signed + 2) << 2))
}

// isArmBranchFamily reports whether opcode's bits 27:25 are 0b101, the B/BL
// instruction family.
func isArmBranchFamily(opcode uint32) bool {
	return (opcode>>25)&0b111 == 0b101
}

// fixupArmBranch re-targets a branch-family opcode originally located at
// origFrom so that, now placed at newFrom, it still reaches the same
// absolute destination. Non-branch opcodes are returned unchanged - this is
// what lets the hook bridge splice an arbitrary displaced instruction
// without needing to understand it.
func fixupArmBranch(opcode uint32, origFrom, newFrom uint32) uint32 {
	if !isArmBranchFamily(opcode) {
		return opcode
	}
	target := armBranchTarget(opcode, origFrom)
	// preserve the top byte (cond/family/L bits), re-encode the immediate
	// against the opcode's new location.
	opbase := opcode & 0xFF000000
	return armBranch(opbase, newFrom, target)
}

// thumbBranch encodes the two 16-bit halfwords of a THUMB BL/BLX opcode at
// address from targeting to, returned packed little-endian as a 32-bit word
// (low halfword first).
func thumbBranch(op1 uint16, from, to uint32) uint32 {
	offset := (int32(to) - int32(from)) >> 1
	offset -= 2
	h0 := uint16(0xF000) | uint16((offset&0x3FF800)>>11)
	h1 := op1 | uint16(offset&0x7FF)
	return uint32(h1)<<16 | uint32(h0)
}

// thumbBranchTarget recovers the absolute target address a packed THUMB
// BL/BLX opcode pair at address from encodes, the inverse of thumbBranch.
func thumbBranchTarget(packed uint32, from uint32) uint32 {
	h0 := uint16(packed & 0xFFFF)
	h1 := uint16(packed >> 16)
	off11 := int32(h0&0x7FF)<<11 | int32(h1&0x7FF)
	// sign-extend 22 bits
	signed := (off11 << 10) >> 10
	return uint32(int32(from) + ((signed + 2) << 1))
}

// armThumbInterworkBlxOpBase computes the opcode base for an ARM->THUMB
// BLX(1) whose H-bit encodes the half-word alignment of the call target.
func armThumbInterworkBlxOpBase(srcAddr uint32) uint32 {
	return 0xFA000000 | (((srcAddr % 4) >> 1) << 23)
}

// encodeThumbJumpBridge writes {LDR PC,[PC,#-4]; .word target} used for an
// ARM->THUMB jump bridge, with target's THUMB bit set.
func encodeThumbJumpBridge(target uint32) [8]byte {
	var b [8]byte
	// LDR PC, [PC, #-4]
	putLE32(b[0:4], 0xE51FF004)
	putLE32(b[4:8], target|1)
	return b
}

// thumbJumpBridgeMiddleHalfword computes the middle halfword of a THUMB
// destination's PUSH{LR}/<bridge>/POP{PC} jump sequence, ported from
// makeThumbJumpOpCode: the original packs a full two-halfword BL/BLX call
// into a u32 and then truncates it down into a single u16 slot, which keeps
// only the low halfword (the one carrying the top bits of the branch
// offset) and drops the one that would have told BL and BLX apart. A
// THUMB->ARM jump and a THUMB->THUMB jump to the same src_addr therefore
// produce the same middle halfword; this mirrors that rather than fixing
// it.
func thumbJumpBridgeMiddleHalfword(from, to uint32) uint16 {
	return uint16(thumbBranch(thumbBranchOp, from, to))
}

// encodeThumbJumpBridgePushPop builds the 6-byte PUSH {LR}; <bridge half>;
// POP {PC} sequence a THUMB destination's Jump patch writes directly at
// dest_addr.
func encodeThumbJumpBridgePushPop(destAddr, srcAddr uint32) [6]byte {
	var b [6]byte
	putLE16(b[0:2], thumbPushLrOp)
	putLE16(b[2:4], thumbJumpBridgeMiddleHalfword(destAddr, srcAddr))
	putLE16(b[4:6], thumbPopPcOp)
	return b
}

func putLE32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func putLE16(dst []byte, v uint16) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
}

func getLE32(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24
}
