// Command ncpatcher patches a Nintendo DS ROM's main ARM9/ARM7 binaries and
// overlays with new code compiled from user sources, driven by a project
// file naming the ROM pieces, the patch source directories, and the
// pre/post-build commands to run around the compile step.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Isaac0-dev/NCPatcher/go/build"
	"github.com/Isaac0-dev/NCPatcher/go/config"
	"github.com/Isaac0-dev/NCPatcher/go/ncp"
	"github.com/Isaac0-dev/NCPatcher/go/ndsbin"
	"github.com/Isaac0-dev/NCPatcher/go/patch"
)

func main() {
	configPath := flag.String("config", "ncpatcher.yaml", "path to the build config")
	verbose := flag.Bool("v", false, "enable verbose logging")
	flag.Parse()

	ncp.Verbose = *verbose

	if err := run(*configPath); err != nil {
		ncp.Error(err.Error())
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadBuildConfig(configPath)
	if err != nil {
		return err
	}

	workDir := filepath.Dir(configPath)
	if err := cfg.PreBuildCmds.Run(workDir); err != nil {
		return err
	}

	arm9Hook, arm7Hook := hookOffsets(cfg.Targets)
	header, err := ndsbin.LoadHeaderBin(cfg.HeaderBin, arm9Hook, arm7Hook)
	if err != nil {
		return err
	}

	rebuildPath := filepath.Join(workDir, ".ncpatcher_rebuild.yaml")
	rebuild, err := config.LoadRebuildConfig(rebuildPath)
	if err != nil {
		return err
	}

	// ARM7 first, then ARM9, matching the original tool's fixed processing
	// order so overlay patches that straddle both CPUs see ARM7's layout
	// decisions before ARM9 claims the same destinations.
	ordered := orderArm7First(cfg.Targets)

	for _, target := range ordered {
		jobs, err := collectSourceFileJobs(target)
		if err != nil {
			return err
		}
		if err := patch.MakeTarget(cfg, target, jobs, header, rebuild); err != nil {
			return fmt.Errorf("target arm%d: %w", target.Arm, err)
		}
	}

	if err := rebuild.Save(rebuildPath); err != nil {
		return err
	}

	return cfg.PostBuildCmds.Run(workDir)
}

func hookOffsets(targets []config.BuildTarget) (arm9, arm7 uint32) {
	for _, t := range targets {
		if t.Arm == config.Arm9 {
			arm9 = t.AutoLoadListHookOffset
		} else {
			arm7 = t.AutoLoadListHookOffset
		}
	}
	return
}

func orderArm7First(targets []config.BuildTarget) []config.BuildTarget {
	out := make([]config.BuildTarget, 0, len(targets))
	for _, t := range targets {
		if t.Arm == config.Arm7 {
			out = append(out, t)
		}
	}
	for _, t := range targets {
		if t.Arm == config.Arm9 {
			out = append(out, t)
		}
	}
	return out
}

// collectSourceFileJobs walks every region's configured source
// directories, producing one SourceFileJob per .c/.cpp/.s file found,
// tagged with the region (destination) its directory belongs to.
// Compilation itself is out of scope for this tool; objects are expected
// to already exist under the target's build directory (each job's
// ObjectPath) by the time MakeTarget runs, produced by the project's own
// build step (see cfg.PreBuildCmds).
func collectSourceFileJobs(target config.BuildTarget) ([]build.SourceFileJob, error) {
	var jobs []build.SourceFileJob
	exts := map[string]bool{".c": true, ".cpp": true, ".s": true}

	for _, region := range target.Regions {
		for _, dir := range region.SourceDirs {
			err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() {
					return nil
				}
				if !exts[filepath.Ext(path)] {
					return nil
				}
				rel, err := filepath.Rel(dir, path)
				if err != nil {
					return err
				}
				jobs = append(jobs, build.NewSourceFileJob(path, rel, target.BuildDir, region.Dest))
				return nil
			})
			if err != nil {
				return nil, ncp.Context(fmt.Sprintf("failed to scan source directory %q", dir), err)
			}
		}
	}
	return jobs, nil
}
