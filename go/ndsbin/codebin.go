// Package ndsbin models the fixed-layout NDS binaries (arm9.bin/arm7.bin,
// header.bin, the overlay table, individual overlay images) that the patch
// maker loads, mutates and writes back, the way go/elf models the ELF
// container format one layer up.
package ndsbin

import (
	"encoding/binary"

	"github.com/Isaac0-dev/NCPatcher/go/ncp"
)

// Word is any fixed-width unsigned integer a CodeBin can read or write.
// Go interfaces cannot carry generic methods, so the read/write primitives
// live as free functions parameterized over CodeBin instead of methods on
// it.
type Word interface {
	~uint8 | ~uint16 | ~uint32
}

// CodeBin is the narrow, shared contract every loaded binary (ArmBin,
// OverlayBin) satisfies: a RAM-mapped byte buffer addressable by absolute
// address. It is intentionally not a base struct - the binaries differ too
// much in what else they track (autoload lists, overlay ids, compression)
// to share an embedding, so they only share this interface.
type CodeBin interface {
	RAMAddress() uint32
	Data() []byte
}

// offsetOf converts an absolute RAM address into a byte offset into bin's
// data, panicking (via the normal slice bounds panic) the way the spec
// requires out-of-range access to be fatal rather than silently clamped.
func offsetOf(bin CodeBin, address uint32) int {
	return int(address - bin.RAMAddress())
}

// ReadWord reads a little-endian T at the given RAM address.
func ReadWord[T Word](bin CodeBin, address uint32) T {
	off := offsetOf(bin, address)
	data := bin.Data()
	var zero T
	switch any(zero).(type) {
	case uint8:
		return T(data[off])
	case uint16:
		return T(binary.LittleEndian.Uint16(data[off : off+2]))
	case uint32:
		return T(binary.LittleEndian.Uint32(data[off : off+4]))
	default:
		panic("unsupported Word type")
	}
}

// WriteWord writes a little-endian T at the given RAM address.
func WriteWord[T Word](bin CodeBin, address uint32, value T) {
	off := offsetOf(bin, address)
	data := bin.Data()
	switch v := any(value).(type) {
	case uint8:
		data[off] = v
	case uint16:
		binary.LittleEndian.PutUint16(data[off:off+2], v)
	case uint32:
		binary.LittleEndian.PutUint32(data[off:off+4], v)
	default:
		panic("unsupported Word type")
	}
}

// WriteBytes copies src into bin's data starting at the given RAM address.
func WriteBytes(bin CodeBin, address uint32, src []byte) {
	off := offsetOf(bin, address)
	data := bin.Data()
	copy(data[off:off+len(src)], src)
}

// ReadBytes returns a copy of length n bytes at the given RAM address.
func ReadBytes(bin CodeBin, address uint32, n int) []byte {
	off := offsetOf(bin, address)
	data := bin.Data()
	out := make([]byte, n)
	copy(out, data[off:off+n])
	return out
}

// Contains reports whether [address, address+size) lies entirely within
// bin's mapped range.
func Contains(bin CodeBin, address uint32, size uint32) bool {
	base := bin.RAMAddress()
	end := base + uint32(len(bin.Data()))
	return address >= base && uint64(address)+uint64(size) <= uint64(end)
}

// MustContain returns a LayoutErrorf-wrapped error if address/size falls
// outside bin's mapped range, for call sites that want a recoverable error
// instead of the bounds panic ReadWord/WriteWord produce.
func MustContain(bin CodeBin, address uint32, size uint32, what string) error {
	if !Contains(bin, address, size) {
		return ncp.LayoutErrorf("%s at 0x%08X (size %d) is outside of the mapped range 0x%08X-0x%08X",
			what, address, size, bin.RAMAddress(), bin.RAMAddress()+uint32(len(bin.Data())))
	}
	return nil
}
