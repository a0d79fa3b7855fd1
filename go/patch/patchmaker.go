package patch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Isaac0-dev/NCPatcher/go/build"
	"github.com/Isaac0-dev/NCPatcher/go/config"
	"github.com/Isaac0-dev/NCPatcher/go/elf"
	"github.com/Isaac0-dev/NCPatcher/go/ncp"
	"github.com/Isaac0-dev/NCPatcher/go/ndsbin"
)

// TargetKey names a BuildTarget for RebuildConfig's per-target caches, since
// config.RebuildConfig keys by string rather than by (Arm, dest) pair.
func TargetKey(target config.BuildTarget, dest int) string {
	return fmt.Sprintf("arm%d_ov%d", target.Arm, dest)
}

// MakeTarget runs the whole patch-making pipeline for one ARM target:
// gather patch directives from every compiled object, compute layout, link,
// resolve symbols, splice patches into the destination binaries, and save.
// It mirrors PatchMaker::makeTarget's sequence.
func MakeTarget(cfg *config.BuildConfig, target config.BuildTarget, jobs []build.SourceFileJob, header *ndsbin.HeaderBin, rebuild *config.RebuildConfig) error {
	if len(jobs) == 0 {
		return ncp.ConfigError("no source files to link")
	}
	if err := os.MkdirAll(target.BuildDir, 0o755); err != nil {
		return ncp.Context(fmt.Sprintf("failed to create build directory %q", target.BuildDir), err)
	}
	if err := os.MkdirAll(target.BackupDir, 0o755); err != nil {
		return ncp.Context(fmt.Sprintf("failed to create backup directory %q", target.BackupDir), err)
	}

	isArm7 := target.Arm == config.Arm7
	armBinPath := cfg.Arm9Bin
	ramAddr := header.Arm9RamAddr
	hookOffset := header.Arm9AutoLoadListHookOffset
	ovtPath := cfg.Arm9OvtBin
	if isArm7 {
		armBinPath = cfg.Arm7Bin
		ramAddr = header.Arm7RamAddr
		hookOffset = header.Arm7AutoLoadListHookOffset
		ovtPath = cfg.Arm7OvtBin
	}

	armBin, err := ndsbin.LoadArmBin(armBinPath, ramAddr, hookOffset)
	if err != nil {
		return err
	}
	ovt, err := ndsbin.LoadOverlayTable(ovtPath)
	if err != nil {
		return err
	}

	overlays := map[int]*ndsbin.OverlayBin{}
	for i := range ovt {
		entry := &ovt[i]
		path := filepath.Join(cfg.OverlayDir, fmt.Sprintf("overlay%d_%04d.bin", target.Arm, entry.OverlayID))
		ov, err := ndsbin.LoadOverlayBin(path, *entry)
		if err != nil {
			return err
		}
		overlays[int(entry.OverlayID)] = ov
	}

	var allPatches []*PatchRecord
	var allRtRepls []RtReplRange
	ncpSetDests := map[int]bool{}
	var externSymbols []string

	for i, job := range jobs {
		f, err := os.Open(job.ObjectPath)
		if err != nil {
			return ncp.Context(fmt.Sprintf("failed to open object %q", job.ObjectPath), err)
		}
		parseErr, e := elf.ReadELF(f)
		f.Close()
		if parseErr != nil {
			return ncp.Context(fmt.Sprintf("failed to parse object %q", job.ObjectPath), parseErr)
		}

		res := ParseObject(e, i)
		allPatches = append(allPatches, res.Patches...)
		allRtRepls = append(allRtRepls, res.RtRepls...)
		externSymbols = append(externSymbols, res.ExternSymbols...)
		for d := range res.NcpSetDests {
			ncpSetDests[d] = true
		}
	}

	kinds := make([]string, len(allPatches))
	symbols := make([]string, len(allPatches))
	destAddrs := make([]uint32, len(allPatches))
	for i, p := range allPatches {
		kinds[i] = p.Kind.String()
		symbols[i] = p.Symbol
		destAddrs[i] = p.DestAddr
	}
	ncp.DumpPatches(kinds, symbols, destAddrs)
	ncp.DumpExternSymbols(externSymbols)

	ResolveSourceRegions(allPatches, jobs)
	ResolveRtReplRegions(allRtRepls, jobs)
	jobsByDest := JobsByDestination(jobs, func(j build.SourceFileJob) int { return j.Region })

	autogenSizes := AutogenReservation(allPatches)

	destSet := map[int]bool{-1: true}
	for _, p := range allPatches {
		destSet[p.DestDest] = true
	}
	for _, r := range target.Regions {
		destSet[r.Dest] = true
	}

	configRegions := regionsByDest(target.Regions)

	var regions []DestRegion
	newcodeBase := map[int]uint32{}
	for dest := range destSet {
		var region DestRegion
		var ovInfo OverlayLayoutInfo
		arenaLo := uint32(0)
		if dest == -1 {
			region = DestRegion{Dest: -1}
			arenaLo = ndsbin.ReadWord[uint32](armBin, target.ArenaLo)
		} else {
			ov, ok := overlays[dest]
			if !ok {
				return ncp.LayoutErrorf("patch references overlay %d which does not exist in the overlay table", dest)
			}
			mode := RegionAppend
			addr := uint32(newcodeRegionSentinel)
			length := uint32(0x10000000)
			if cr, ok := configRegions[dest]; ok {
				mode = toPatchRegionMode(cr.Mode)
				if cr.Address != 0 {
					addr = cr.Address
				}
				if cr.Length != 0 {
					length = cr.Length
				}
			}
			region = DestRegion{Dest: dest, Mode: mode, Address: addr, Length: length}
			ovInfo = OverlayLayoutInfo{RAMAddress: ov.RAMAddress(), RAMSize: uint32(len(ov.Data()))}
			if idx := overlayIndex(ovt, dest); idx >= 0 {
				ovInfo.BSSSize = ovt[idx].BSSSize
			}
		}
		regions = append(regions, region)
		newcodeBase[dest] = NewcodeBaseAddress(region, ovInfo, arenaLo)
	}

	var overPatches []*PatchRecord
	var sectionPatches []*PatchRecord
	for _, p := range allPatches {
		if p.Kind == KindOver {
			overPatches = append(overPatches, p)
		} else if p.SectionIdx >= 0 {
			sectionPatches = append(sectionPatches, p)
		}
	}

	ldScript := filepath.Join(target.BuildDir, fmt.Sprintf("ldscript%d.x", target.Arm))
	scriptText := CreateLinkerScript(LinkerScriptInput{
		SymbolsFile:    target.SymbolsFile,
		Objects:        objectPaths(jobs),
		OutputELF:      filepath.Join(target.BuildDir, fmt.Sprintf("arm%d.elf", target.Arm)),
		Regions:        regions,
		NewcodeBase:    newcodeBase,
		AutogenSize:    autogenSizes,
		NcpSetDests:    ncpSetDests,
		OverPatches:    overPatches,
		ExternSymbols:  externSymbols,
		JobsByDest:     jobsByDest,
		SectionPatches: sectionPatches,
		RtRepls:        allRtRepls,
	})
	if err := os.WriteFile(ldScript, []byte(scriptText), 0o644); err != nil {
		return ncp.Context(fmt.Sprintf("failed to write linker script %q", ldScript), err)
	}

	outputELF := filepath.Join(target.BuildDir, fmt.Sprintf("arm%d.elf", target.Arm))
	if err := LinkELF(cfg.ToolchainGcc, ldScript, objectPaths(jobs), target.LdFlags, target.BuildDir); err != nil {
		return err
	}

	linked, err := os.Open(outputELF)
	if err != nil {
		return ncp.Context(fmt.Sprintf("failed to open linked elf %q", outputELF), err)
	}
	parseErr, linkedElf := elf.ReadELF(linked)
	linked.Close()
	if parseErr != nil {
		return ncp.Context(fmt.Sprintf("failed to parse linked elf %q", outputELF), parseErr)
	}

	autogen, newcode, err := ResolvePostLink(linkedElf, allPatches, autogenSizes)
	if err != nil {
		return err
	}

	for _, p := range allPatches {
		var bin ndsbin.CodeBin = armBin
		if p.DestDest != -1 {
			ov, ok := overlays[p.DestDest]
			if !ok {
				return ncp.LayoutErrorf("patch %q targets overlay %d which was not loaded", p.Symbol, p.DestDest)
			}
			bin = ov
			ov.MarkDirty()
		}
		if err := ApplyPatch(bin, autogen[p.DestDest], isArm7, p); err != nil {
			return err
		}
	}

	for dest, region := range destRegionByDest(regions) {
		block, ok := newcode[dest]
		if !ok {
			continue
		}
		if dest == -1 {
			finalAddr := InstallMainArmNewcode(armBin, block, newcodeBase[dest], target.ArenaLo)
			rebuild.NewcodeAddr[TargetKey(target, dest)] = finalAddr
			continue
		}
		ov := overlays[dest]
		entryIdx := overlayIndex(ovt, dest)
		if entryIdx < 0 {
			return ncp.LayoutErrorf("newcode destined for overlay %d which has no overlay table entry", dest)
		}
		if err := InstallOverlayNewcode(ov, &ovt[entryIdx], region, newcodeBase[dest], block); err != nil {
			return err
		}
		rebuild.NewcodeAddr[TargetKey(target, dest)] = newcodeBase[dest]
	}

	for id, ov := range overlays {
		path := filepath.Join(cfg.OverlayDir, fmt.Sprintf("overlay%d_%04d.bin", target.Arm, id))
		if err := ov.Save(path); err != nil {
			return err
		}
	}
	if err := ndsbin.SaveOverlayTable(ovtPath, ovt); err != nil {
		return err
	}
	if err := armBin.Save(armBinPath); err != nil {
		return err
	}

	return nil
}

func objectPaths(jobs []build.SourceFileJob) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ObjectPath
	}
	return out
}

func destRegionByDest(regions []DestRegion) map[int]DestRegion {
	out := make(map[int]DestRegion, len(regions))
	for _, r := range regions {
		out[r.Dest] = r
	}
	return out
}

func overlayIndex(ovt []ndsbin.OvtEntry, dest int) int {
	for i, e := range ovt {
		if int(e.OverlayID) == dest {
			return i
		}
	}
	return -1
}

// regionsByDest indexes a target's configured regions by destination for
// quick lookup while computing layout.
func regionsByDest(regions []config.Region) map[int]config.Region {
	out := make(map[int]config.Region, len(regions))
	for _, r := range regions {
		out[r.Dest] = r
	}
	return out
}

// toPatchRegionMode converts a project file's region mode string into the
// layout planner's RegionMode enum, defaulting unset/unknown values to
// RegionAppend - the original tool's default when no mode is configured.
func toPatchRegionMode(m config.RegionMode) RegionMode {
	switch m {
	case config.RegionReplace:
		return RegionReplace
	case config.RegionCreate:
		return RegionCreate
	default:
		return RegionAppend
	}
}
