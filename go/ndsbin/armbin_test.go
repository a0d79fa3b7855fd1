package ndsbin

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRamAddress = 0x02000000

// buildTestArmBin assembles a minimal arm9.bin-shaped buffer: a module
// params hook word, a ModuleParams struct, and a one-entry autoload list,
// laid out the way the worked scenario in the component design describes.
//
//	file offset 0x10:        autoload list hook word -> moduleParamsAddress
//	file offset 0x40:        ModuleParams struct base
//	file offset 0x5C/0x60/0x64: AutoloadListStart/End/Start fields
//	file offset 0x80..0x100: existing autoload code/data (128 bytes)
//	file offset 0x100..0x10C: one AutoLoadEntry {0x02000080, 0x30, 0x10}
//	file offset 0x10C..0x200: trailing file content
func buildTestArmBin() []byte {
	const (
		hookOffset         = 0x10
		moduleParamsOffset = 0x40
		autoloadStartOff   = 0x80
		autoloadListOff    = 0x100
		totalSize          = 0x200
	)
	data := make([]byte, totalSize)
	for i := autoloadStartOff; i < autoloadListOff; i++ {
		data[i] = byte(i) // recognizable pattern for the shifted autoload block
	}
	for i := autoloadListOff + autoLoadEntrySize; i < totalSize; i++ {
		data[i] = byte(0xC0 + i%0x10) // recognizable pattern for the trailing tail
	}

	moduleParamsAddress := uint32(testRamAddress + moduleParamsOffset)
	binary.LittleEndian.PutUint32(data[hookOffset:], moduleParamsAddress)
	binary.LittleEndian.PutUint32(data[moduleParamsOffset+moduleParamsAutoloadListStartOff:], testRamAddress+autoloadListOff)
	binary.LittleEndian.PutUint32(data[moduleParamsOffset+moduleParamsAutoloadListEndOff:], testRamAddress+autoloadListOff+autoLoadEntrySize)
	binary.LittleEndian.PutUint32(data[moduleParamsOffset+moduleParamsAutoloadStartOff:], testRamAddress+autoloadStartOff)

	binary.LittleEndian.PutUint32(data[autoloadListOff+0:], testRamAddress+autoloadStartOff) // entry.Address
	binary.LittleEndian.PutUint32(data[autoloadListOff+4:], 0x30)                            // entry.Size
	binary.LittleEndian.PutUint32(data[autoloadListOff+8:], 0x10)                            // entry.BssSize

	return data
}

func writeTestArmBin(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arm9.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadArmBinParsesModuleParamsAndAutoloadList(t *testing.T) {
	path := writeTestArmBin(t, buildTestArmBin())

	b, err := LoadArmBin(path, testRamAddress, 0x10)
	require.NoError(t, err)

	require.Len(t, b.AutoLoadEntries, 1)
	entry := b.AutoLoadEntries[0]
	assert.Equal(t, uint32(testRamAddress+0x80), entry.Address)
	assert.Equal(t, uint32(0x30), entry.Size)
	assert.Equal(t, uint32(0x10), entry.BssSize)
	assert.Equal(t, uint32(testRamAddress+0x80), entry.DataOff)
}

func TestLoadArmBinRejectsAutoloadListEndBeforeStart(t *testing.T) {
	data := buildTestArmBin()
	binary.LittleEndian.PutUint32(data[0x40+moduleParamsAutoloadListEndOff:], testRamAddress+0xFC) // before list start (0x100)
	path := writeTestArmBin(t, data)

	_, err := LoadArmBin(path, testRamAddress, 0x10)
	assert.Error(t, err)
}

// TestExtendForNewcodeShiftsAutoloadRegionAndRelocatesList walks through the
// worked newcode-install scenario: growing the binary by binSize+12 bytes,
// opening the gap at the previous autoload-start offset by shifting
// everything from there onward forward, and relocating the autoload list
// bookkeeping to match.
func TestExtendForNewcodeShiftsAutoloadRegionAndRelocatesList(t *testing.T) {
	original := buildTestArmBin()
	path := writeTestArmBin(t, original)
	b, err := LoadArmBin(path, testRamAddress, 0x10)
	require.NoError(t, err)

	const (
		binSize     = 0x40
		bssSize     = 0x20
		bssAlign    = 4
		arenaLoAddr = testRamAddress + 0x04
	)

	newcodeAddr := b.ExtendForNewcode(binSize, bssSize, bssAlign, arenaLoAddr)

	// The gap opens exactly at the old autoload-start offset - nothing
	// before it moved, so the new code's address is that same RAM address.
	assert.Equal(t, uint32(testRamAddress+0x80), newcodeAddr)
	assert.Len(t, b.Data(), len(original)+binSize+autoLoadEntrySize)

	// The new entry is prepended; the old entry survives unchanged behind it.
	require.Len(t, b.AutoLoadEntries, 2)
	assert.Equal(t, AutoLoadEntry{Address: newcodeAddr, Size: binSize, BssSize: bssSize, DataOff: testRamAddress + 0x80}, b.AutoLoadEntries[0])
	assert.Equal(t, uint32(testRamAddress+0x80), b.AutoLoadEntries[1].Address)
	assert.Equal(t, uint32(0x30), b.AutoLoadEntries[1].Size)

	// The old autoload code/data block (0x80..0x100, 128 bytes) shifted
	// forward by binSize, landing at 0xC0..0x140 with its bytes untouched.
	shifted := b.Data()[0x80+binSize : 0x80+binSize+(0x100-0x80)]
	for i, v := range shifted {
		assert.Equal(t, byte(0x80+i), v, "shifted autoload byte %d", i)
	}

	// arena_lo is updated in place to the new post-bss heap ceiling.
	heapReloc := newcodeAddr + binSize + bssSize // binSize is already a multiple of bssAlign here
	assert.Equal(t, heapReloc, ReadWord[uint32](b, arenaLoAddr))

	savePath := filepath.Join(t.TempDir(), "arm9_out.bin")
	require.NoError(t, b.Save(savePath))
	saved, err := os.ReadFile(savePath)
	require.NoError(t, err)

	// Save() writes the relocated list starting at the new
	// autoload_list_start (old start + binSize), not old_start + growth -
	// the extra autoLoadEntrySize bytes of room is exactly the new entry's
	// own slot, not an additional shift of the list's write position.
	newListOff := 0x100 + binSize
	gotAddr := binary.LittleEndian.Uint32(saved[newListOff:])
	gotSize := binary.LittleEndian.Uint32(saved[newListOff+4:])
	gotBss := binary.LittleEndian.Uint32(saved[newListOff+8:])
	assert.Equal(t, newcodeAddr, gotAddr)
	assert.Equal(t, uint32(binSize), gotSize)
	assert.Equal(t, uint32(bssSize), gotBss)

	gotOldAddr := binary.LittleEndian.Uint32(saved[newListOff+autoLoadEntrySize:])
	gotOldSize := binary.LittleEndian.Uint32(saved[newListOff+autoLoadEntrySize+4:])
	assert.Equal(t, uint32(testRamAddress+0x80), gotOldAddr)
	assert.Equal(t, uint32(0x30), gotOldSize)

	gotListStart := binary.LittleEndian.Uint32(saved[0x40+moduleParamsAutoloadListStartOff:])
	gotListEnd := binary.LittleEndian.Uint32(saved[0x40+moduleParamsAutoloadListEndOff:])
	assert.Equal(t, uint32(testRamAddress+newListOff), gotListStart)
	assert.Equal(t, uint32(testRamAddress+newListOff+2*autoLoadEntrySize), gotListEnd)
}
