package ndsbin

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/Isaac0-dev/NCPatcher/go/ncp"
)

// Standard GBATEK NDS ROM header field offsets.
const (
	headerArm9RomOffsetOff  = 0x20
	headerArm9EntryAddrOff  = 0x24
	headerArm9RamAddrOff    = 0x28
	headerArm9SizeOff       = 0x2C
	headerArm7RomOffsetOff  = 0x30
	headerArm7EntryAddrOff  = 0x34
	headerArm7RamAddrOff    = 0x38
	headerArm7SizeOff       = 0x3C
	headerArm9OvtOffsetOff  = 0x50
	headerArm9OvtSizeOff    = 0x54
	headerArm7OvtOffsetOff  = 0x58
	headerArm7OvtSizeOff    = 0x5C
)

// HeaderBin is the parsed NDS ROM header (header.bin), giving the layout
// planner the RAM addresses both main binaries load at and the ROM offsets
// of their overlay tables. AutoLoadListHookOffset fields are not part of
// the standard GBATEK layout - no retrieved source names a real field for
// "offset within arm9.bin/arm7.bin of the word pointing at ModuleParams",
// so these are NCPatcher-specific extension fields recorded here for the
// build pipeline to pass along, not a claim about undocumented Nintendo
// format bytes.
type HeaderBin struct {
	Arm9RomOffset  uint32
	Arm9EntryAddr  uint32
	Arm9RamAddr    uint32
	Arm9Size       uint32
	Arm7RomOffset  uint32
	Arm7EntryAddr  uint32
	Arm7RamAddr    uint32
	Arm7Size       uint32
	Arm9OvtOffset  uint32
	Arm9OvtSize    uint32
	Arm7OvtOffset  uint32
	Arm7OvtSize    uint32

	Arm9AutoLoadListHookOffset uint32
	Arm7AutoLoadListHookOffset uint32

	raw []byte
}

// LoadHeaderBin reads and parses header.bin. The autoload-list hook offsets
// are not present in the ROM header itself; they are supplied by the build
// configuration (see go/config.BuildTarget) since they depend on the SDK
// version the binary was compiled against, and stashed on the returned
// HeaderBin purely for convenience of a single argument to pass around.
func LoadHeaderBin(path string, arm9HookOffset, arm7HookOffset uint32) (*HeaderBin, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ncp.Context(fmt.Sprintf("failed to load header binary %q", path), err)
	}
	if len(raw) < 0x60 {
		return nil, ncp.LayoutErrorf("header binary %q is too small (%d bytes)", path, len(raw))
	}

	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(raw[off : off+4]) }

	return &HeaderBin{
		Arm9RomOffset: u32(headerArm9RomOffsetOff),
		Arm9EntryAddr: u32(headerArm9EntryAddrOff),
		Arm9RamAddr:   u32(headerArm9RamAddrOff),
		Arm9Size:      u32(headerArm9SizeOff),
		Arm7RomOffset: u32(headerArm7RomOffsetOff),
		Arm7EntryAddr: u32(headerArm7EntryAddrOff),
		Arm7RamAddr:   u32(headerArm7RamAddrOff),
		Arm7Size:      u32(headerArm7SizeOff),
		Arm9OvtOffset: u32(headerArm9OvtOffsetOff),
		Arm9OvtSize:   u32(headerArm9OvtSizeOff),
		Arm7OvtOffset: u32(headerArm7OvtOffsetOff),
		Arm7OvtSize:   u32(headerArm7OvtSizeOff),

		Arm9AutoLoadListHookOffset: arm9HookOffset,
		Arm7AutoLoadListHookOffset: arm7HookOffset,

		raw: raw,
	}, nil
}
