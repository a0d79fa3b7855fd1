package ndsbin

import (
	"fmt"
	"os"

	"github.com/Isaac0-dev/NCPatcher/go/ncp"
	"github.com/Isaac0-dev/NCPatcher/go/ndsbin/blz"
)

// OverlayBin is a single loaded overlay image (overlay9_<id>.bin /
// overlay7_<id>.bin), decompressed on load if its OVT entry says it was
// stored compressed. This tool never writes compressed overlays back out
// (see blz package doc and spec Non-goals), so Dirty overlays are always
// saved uncompressed even if they started out compressed.
type OverlayBin struct {
	id         int
	ramAddress uint32
	data       []byte
	backupData []byte
	dirty      bool
}

func (o *OverlayBin) RAMAddress() uint32 { return o.ramAddress }
func (o *OverlayBin) Data() []byte       { return o.data }
func (o *OverlayBin) ID() int            { return o.id }
func (o *OverlayBin) Dirty() bool        { return o.dirty }

// MarkDirty flags the overlay as having been patched, so the save step
// knows to write it back even though its backup copy still reflects the
// pre-patch bytes.
func (o *OverlayBin) MarkDirty() { o.dirty = true }

// LoadOverlayBin reads an overlay image, decompressing it if entry marks it
// compressed. The decompressed bytes become both the live data and an
// untouched pre-patch snapshot returned by BackupData.
func LoadOverlayBin(path string, entry OvtEntry) (*OverlayBin, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ncp.Context(fmt.Sprintf("failed to load overlay binary %q", path), err)
	}

	data := raw
	if entry.Compressed() {
		data, err = blz.Decode(raw)
		if err != nil {
			return nil, ncp.Context(fmt.Sprintf("failed to decompress overlay %d", entry.OverlayID), err)
		}
	}

	backup := make([]byte, len(data))
	copy(backup, data)

	return &OverlayBin{
		id:         int(entry.OverlayID),
		ramAddress: entry.RAMAddress,
		data:       data,
		backupData: backup,
	}, nil
}

// Save writes the live (uncompressed) data to path when the overlay is
// dirty. Matches saveOverlayBins's "only rewrite what changed" behavior,
// resolving spec Open Question 1 in favor of always saving from the live
// buffer rather than the backup: the backup is never an alternate save
// source.
func (o *OverlayBin) Save(path string) error {
	if !o.dirty {
		return nil
	}
	if err := os.WriteFile(path, o.data, 0o644); err != nil {
		return ncp.Context(fmt.Sprintf("failed to save overlay binary %q", path), err)
	}
	return nil
}

// BackupData returns the pre-patch snapshot taken at load time. Nothing
// else in this module calls it; patching and saving work on the live data.
func (o *OverlayBin) BackupData() []byte { return o.backupData }

// AppendNewcode grows the overlay past its current bss, materializing the
// old bss region as zero bytes on disk before appending binData, per the
// "Overlay, Append" newcode installation rule. entry is mutated in place:
// ram_size/bss_size updated, compression cleared. Returns the RAM address
// binData was placed at. Callers must check ramSize+bssSize+len(binData)+
// newBssSize against the destination region's length beforehand.
func (o *OverlayBin) AppendNewcode(entry *OvtEntry, binData []byte, newBssSize uint32) uint32 {
	oldRAMSize := entry.RAMSize
	oldBSSSize := entry.BSSSize
	newcodeAddr := o.ramAddress + oldRAMSize + oldBSSSize

	if len(binData) > 0 {
		newData := make([]byte, len(o.data)+int(oldBSSSize)+len(binData))
		copy(newData, o.data)
		copy(newData[len(o.data)+int(oldBSSSize):], binData)
		o.data = newData
		entry.RAMSize = oldRAMSize + oldBSSSize + uint32(len(binData))
		entry.BSSSize = newBssSize
	} else {
		entry.BSSSize = oldBSSSize + newBssSize
	}

	entry.CompressedSz = 0
	o.dirty = true
	return newcodeAddr
}

// ReplaceNewcode truncates the overlay to binData and relocates it to
// newcodeAddr, per the "Overlay, Replace" newcode installation rule.
func (o *OverlayBin) ReplaceNewcode(entry *OvtEntry, newcodeAddr uint32, binData []byte, newBssSize uint32) {
	o.data = append([]byte(nil), binData...)
	o.ramAddress = newcodeAddr
	entry.RAMAddress = newcodeAddr
	entry.RAMSize = uint32(len(binData))
	entry.BSSSize = newBssSize
	entry.SinitStart = 0
	entry.SinitEnd = 0
	entry.CompressedSz = 0
	o.dirty = true
}
