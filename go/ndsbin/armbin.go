package ndsbin

import (
	"fmt"
	"os"

	"github.com/Isaac0-dev/NCPatcher/go/ncp"
)

// ModuleParams is the small fixed struct every ARM9/ARM7 main binary embeds
// near its entry point, pointed to indirectly through the word at
// autoLoadListHookOffset. Only the three fields the layout planner actually
// needs are modeled; the real struct carries several more (compressed
// static footer info, SDK CRC, etc.) that this tool never touches.
type ModuleParams struct {
	AutoloadListStart uint32
	AutoloadListEnd   uint32
	AutoloadStart     uint32
}

const moduleParamsSize = 4 * 6 // 24 bytes; not referenced by the loader, which reads only the three fields below

// Field offsets of ModuleParams within the struct pointed to by the
// autoload-list hook word. Matches the layout original_source's armbin.cpp
// reads via three separate ReadWord<u32> calls at fixed offsets from the
// module params base.
const (
	moduleParamsAutoloadListStartOff = 0x1C
	moduleParamsAutoloadListEndOff   = 0x20
	moduleParamsAutoloadStartOff     = 0x24
)

// AutoLoadEntry describes one block installed by the NDS loader before
// _start runs: .data/.bss-style regions copied (and zero-extended) into RAM
// at boot. DataOff is never persisted: the NDS loader recomputes each
// entry's source offset at load time by walking the list in order and
// accumulating Size, so writing a stale DataOff back to the file would be
// silently ignored by real hardware. This resolves spec Open Question 3 -
// DataOff lives only in memory, exactly as loadArmBin/saveArmBin treat it.
type AutoLoadEntry struct {
	Address uint32
	Size    uint32
	BssSize uint32
	DataOff uint32
}

const autoLoadEntrySize = 12 // 3 x uint32, DataOff excluded from the persisted form

// ArmBin is a loaded arm9.bin or arm7.bin main binary: the module's entire
// RAM image from its load address up, plus the parsed autoload list that
// sits inside it.
type ArmBin struct {
	ramAddress uint32
	data       []byte

	autoLoadListHookOffset uint32
	moduleParamsAddress    uint32
	autoloadListStart      uint32
	autoloadListEnd        uint32
	autoloadStart          uint32

	AutoLoadEntries []AutoLoadEntry
}

func (b *ArmBin) RAMAddress() uint32 { return b.ramAddress }
func (b *ArmBin) Data() []byte       { return b.data }

// LoadArmBin reads path into memory and parses its module params and
// autoload entry list. ramAddress and autoLoadListHookOffset come from the
// ROM header (HeaderBin.Arm9/Arm7 RAM address and autoload-list hook
// offset), since neither is self-describing within the bin itself.
func LoadArmBin(path string, ramAddress uint32, autoLoadListHookOffset uint32) (*ArmBin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ncp.Context(fmt.Sprintf("failed to load arm binary %q", path), err)
	}

	b := &ArmBin{
		ramAddress:             ramAddress,
		data:                   data,
		autoLoadListHookOffset: autoLoadListHookOffset,
	}

	if err := MustContain(b, autoLoadListHookOffset+ramAddress, 4, "autoload list hook"); err != nil {
		return nil, err
	}
	b.moduleParamsAddress = ReadWord[uint32](b, ramAddress+autoLoadListHookOffset)

	if err := MustContain(b, b.moduleParamsAddress, moduleParamsAutoloadStartOff+4, "module params"); err != nil {
		return nil, err
	}
	b.autoloadListStart = ReadWord[uint32](b, b.moduleParamsAddress+moduleParamsAutoloadListStartOff)
	b.autoloadListEnd = ReadWord[uint32](b, b.moduleParamsAddress+moduleParamsAutoloadListEndOff)
	b.autoloadStart = ReadWord[uint32](b, b.moduleParamsAddress+moduleParamsAutoloadStartOff)

	if err := b.parseAutoLoadList(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *ArmBin) parseAutoLoadList() error {
	if b.autoloadListEnd < b.autoloadListStart {
		return ncp.LayoutErrorf("autoload list end (0x%08X) precedes its start (0x%08X)", b.autoloadListEnd, b.autoloadListStart)
	}
	count := (b.autoloadListEnd - b.autoloadListStart) / autoLoadEntrySize
	b.AutoLoadEntries = make([]AutoLoadEntry, 0, count)

	dataOff := b.autoloadStart
	addr := b.autoloadListStart
	for i := uint32(0); i < count; i++ {
		entry := AutoLoadEntry{
			Address: ReadWord[uint32](b, addr+0),
			Size:    ReadWord[uint32](b, addr+4),
			BssSize: ReadWord[uint32](b, addr+8),
			DataOff: dataOff,
		}
		b.AutoLoadEntries = append(b.AutoLoadEntries, entry)
		dataOff += entry.Size
		addr += autoLoadEntrySize
	}
	return nil
}

// Save writes the (possibly extended) binary back to path, rewriting the
// autoload list in place but never the cached DataOff field, matching
// saveArmBin's three-word-per-entry write.
func (b *ArmBin) Save(path string) error {
	addr := b.autoloadListStart
	for _, entry := range b.AutoLoadEntries {
		WriteWord[uint32](b, addr+0, entry.Address)
		WriteWord[uint32](b, addr+4, entry.Size)
		WriteWord[uint32](b, addr+8, entry.BssSize)
		addr += autoLoadEntrySize
	}
	WriteWord[uint32](b, b.moduleParamsAddress+moduleParamsAutoloadListStartOff, b.autoloadListStart)
	WriteWord[uint32](b, b.moduleParamsAddress+moduleParamsAutoloadListEndOff, b.autoloadListEnd)

	if err := os.WriteFile(path, b.data, 0o644); err != nil {
		return ncp.Context(fmt.Sprintf("failed to save arm binary %q", path), err)
	}
	return nil
}

// alignUp rounds n up to the next multiple of align (align must be a power
// of two); align==0 is treated as no alignment requirement.
func alignUp(n, align uint32) uint32 {
	if align == 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// ExtendForNewcode grows the binary by binSize+12 bytes to append one more
// autoload entry: binSize bytes of fresh code, plus one 12-byte autoload
// table slot. The new code's gap is opened at the current autoload-start
// offset (not at the end of the file), by shifting the existing autoload
// code/data block and the list table itself forward to make room; the
// freed offset becomes the new entry's address. It prepends the describing
// AutoLoadEntry and writes the post-bss heap-relocation address to
// arenaLoAddr so the game's allocator sees the new ceiling. Returns the RAM
// address the caller should write binSize bytes of new code at.
func (b *ArmBin) ExtendForNewcode(binSize, bssSize, bssAlign, arenaLoAddr uint32) uint32 {
	growth := binSize + autoLoadEntrySize
	oldLen := uint32(len(b.data))
	newData := make([]byte, oldLen+growth)

	codeGapOff := b.autoloadStart - b.ramAddress
	oldListOff := b.autoloadListStart - b.ramAddress

	copy(newData, b.data[:codeGapOff])
	copy(newData[codeGapOff+binSize:], b.data[codeGapOff:oldListOff])
	copy(newData[oldListOff+growth:], b.data[oldListOff:])
	b.data = newData

	newcodeAddress := b.autoloadStart
	entry := AutoLoadEntry{
		Address: newcodeAddress,
		Size:    binSize,
		BssSize: bssSize,
		DataOff: b.autoloadStart,
	}
	b.AutoLoadEntries = append([]AutoLoadEntry{entry}, b.AutoLoadEntries...)

	b.autoloadListStart += binSize
	b.autoloadListEnd += growth

	heapReloc := newcodeAddress + alignUp(binSize, bssAlign) + bssSize
	WriteWord[uint32](b, arenaLoAddr, heapReloc)

	return newcodeAddress
}
