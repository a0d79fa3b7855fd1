package ndsbin

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/Isaac0-dev/NCPatcher/go/ncp"
)

// OvtEntry is one 32-byte record of the NDS overlay table (arm9ovt.bin /
// arm7ovt.bin), in the standard GBATEK layout. OverlayID is carried even
// though the spec's own field list only names the RAM/size/compression
// fields, since it is the real on-disk field every homebrew tool's overlay
// table reader relies on to line entries up with overlay<id>.bin filenames.
type OvtEntry struct {
	OverlayID    uint32
	RAMAddress   uint32
	RAMSize      uint32
	BSSSize      uint32
	SinitStart   uint32
	SinitEnd     uint32
	FileID       uint32
	CompressedSz uint32 // low 24 bits: compressed size, top byte: flags (bit 0 = compressed)
}

const ovtEntrySize = 32

// Compressed reports whether this overlay is stored BLZ-compressed on the
// ROM, decoded from the flag byte packed into the top 8 bits of
// CompressedSz per the standard layout.
func (e OvtEntry) Compressed() bool {
	return (e.CompressedSz>>24)&1 != 0
}

// compressedLength is the size of the compressed payload on disk, masking
// off the flag byte.
func (e OvtEntry) compressedLength() uint32 {
	return e.CompressedSz & 0x00FFFFFF
}

// LoadOverlayTable reads every fixed 32-byte OvtEntry from path.
func LoadOverlayTable(path string) ([]OvtEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ncp.Context(fmt.Sprintf("failed to load overlay table %q", path), err)
	}
	if len(raw)%ovtEntrySize != 0 {
		return nil, ncp.LayoutErrorf("overlay table %q has a size not a multiple of %d bytes", path, ovtEntrySize)
	}

	count := len(raw) / ovtEntrySize
	entries := make([]OvtEntry, count)
	for i := 0; i < count; i++ {
		b := raw[i*ovtEntrySize : (i+1)*ovtEntrySize]
		entries[i] = OvtEntry{
			OverlayID:    binary.LittleEndian.Uint32(b[0:4]),
			RAMAddress:   binary.LittleEndian.Uint32(b[4:8]),
			RAMSize:      binary.LittleEndian.Uint32(b[8:12]),
			BSSSize:      binary.LittleEndian.Uint32(b[12:16]),
			SinitStart:   binary.LittleEndian.Uint32(b[16:20]),
			SinitEnd:     binary.LittleEndian.Uint32(b[20:24]),
			FileID:       binary.LittleEndian.Uint32(b[24:28]),
			CompressedSz: binary.LittleEndian.Uint32(b[28:32]),
		}
	}
	return entries, nil
}

// SaveOverlayTable writes entries back out as fixed 32-byte records. RAMSize
// is rewritten to reflect any growth patches produced, and the compressed
// flag is always cleared on save since this tool never re-compresses an
// overlay it has touched.
func SaveOverlayTable(path string, entries []OvtEntry) error {
	raw := make([]byte, len(entries)*ovtEntrySize)
	for i, e := range entries {
		b := raw[i*ovtEntrySize : (i+1)*ovtEntrySize]
		binary.LittleEndian.PutUint32(b[0:4], e.OverlayID)
		binary.LittleEndian.PutUint32(b[4:8], e.RAMAddress)
		binary.LittleEndian.PutUint32(b[8:12], e.RAMSize)
		binary.LittleEndian.PutUint32(b[12:16], e.BSSSize)
		binary.LittleEndian.PutUint32(b[16:20], e.SinitStart)
		binary.LittleEndian.PutUint32(b[20:24], e.SinitEnd)
		binary.LittleEndian.PutUint32(b[24:28], e.FileID)
		binary.LittleEndian.PutUint32(b[28:32], e.CompressedSz&0x00FFFFFF)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return ncp.Context(fmt.Sprintf("failed to save overlay table %q", path), err)
	}
	return nil
}
