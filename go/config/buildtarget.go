// Package config decodes the YAML project files that drive a patch run:
// which binaries to patch, where their sources live, and what to run before
// and after. These are the external collaborators the spec names
// (BuildTarget, BuildConfig, RebuildConfig) given a concrete shape so the
// core patch maker has something real to call in tests and from
// cmd/ncpatcher.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Isaac0-dev/NCPatcher/go/ncp"
)

// Arm identifies which CPU's binary a target patches.
type Arm int

const (
	Arm9 Arm = 9
	Arm7 Arm = 7
)

// RegionMode is how a destination's new-code region is placed, decoded
// straight from the project file's region.mode string.
type RegionMode string

const (
	RegionAppend  RegionMode = "append"
	RegionReplace RegionMode = "replace"
	RegionCreate  RegionMode = "create"
)

// Region is one destination's source directories and new-code placement:
// the main ARM binary (Dest -1) or one overlay (Dest = overlay id). A
// BuildTarget patches as many regions as the project file lists, each
// compiled into its own MEMORY/SECTIONS block by the linker script.
type Region struct {
	Dest       int        `yaml:"dest"`
	Mode       RegionMode `yaml:"mode"`
	Address    uint32     `yaml:"address,omitempty"`
	Length     uint32     `yaml:"length,omitempty"`
	SourceDirs []string   `yaml:"sourceDirs"`
}

// BuildTarget is one arm9/arm7 patch job: which regions it patches and
// where their sources live, the build/backup directories, and the
// SDK-dependent offsets this tool can't derive on its own - the autoload
// list hook, the extra linker flags to carry through to the link step, and
// the arena_lo pointer address to keep in sync with newly installed main
// ARM code.
type BuildTarget struct {
	Arm                    Arm      `yaml:"arm"`
	Regions                []Region `yaml:"regions"`
	IncludeDirs            []string `yaml:"includeDirs"`
	BuildDir               string   `yaml:"buildDir"`
	BackupDir              string   `yaml:"backupDir"`
	SymbolsFile            string   `yaml:"symbolsFile"`
	LdFlags                []string `yaml:"ldFlags,omitempty"`
	AutoLoadListHookOffset uint32   `yaml:"autoLoadListHookOffset"`
	ArenaLo                uint32   `yaml:"arenaLo"`
}

// BuildConfig is the top-level project file (ncpatcher.yaml): the ROM
// paths, both patch targets, and the command lists run around the build.
type BuildConfig struct {
	Arm9Bin        string        `yaml:"arm9Bin"`
	Arm7Bin        string        `yaml:"arm7Bin"`
	Arm9OvtBin     string        `yaml:"arm9OvtBin"`
	Arm7OvtBin     string        `yaml:"arm7OvtBin"`
	OverlayDir     string        `yaml:"overlayDir"`
	HeaderBin      string        `yaml:"headerBin"`
	Targets        []BuildTarget `yaml:"targets"`
	PreBuildCmds   CommandList   `yaml:"preBuildCommands"`
	PostBuildCmds  CommandList   `yaml:"postBuildCommands"`
	ToolchainGcc   string        `yaml:"toolchainGcc"`
}

// RebuildConfig records what a previous run produced. MakeTarget fills
// NewcodeAddr with the new-code address installed per target destination;
// SourceFileHashes is loaded and saved but nothing fills or consults it, and
// no field decides whether a target is relinked: every run relinks.
type RebuildConfig struct {
	SourceFileHashes map[string]string `yaml:"sourceFileHashes"`
	NewcodeAddr      map[string]uint32 `yaml:"newcodeAddr"`
}

// LoadBuildConfig reads and decodes a project file.
func LoadBuildConfig(path string) (*BuildConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ncp.Context(fmt.Sprintf("failed to read build config %q", path), err)
	}
	var cfg BuildConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, ncp.ConfigError("malformed build config %q: %v", path, err)
	}
	if len(cfg.Targets) == 0 {
		return nil, ncp.ConfigError("build config %q declares no targets", path)
	}
	return &cfg, nil
}

// LoadRebuildConfig reads a previous run's state, returning a zero-value
// RebuildConfig (not an error) when path does not yet exist - the first run
// against a ROM has nothing to compare against.
func LoadRebuildConfig(path string) (*RebuildConfig, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &RebuildConfig{
			SourceFileHashes: map[string]string{},
			NewcodeAddr:      map[string]uint32{},
		}, nil
	}
	if err != nil {
		return nil, ncp.Context(fmt.Sprintf("failed to read rebuild config %q", path), err)
	}
	var rc RebuildConfig
	if err := yaml.Unmarshal(raw, &rc); err != nil {
		return nil, ncp.ConfigError("malformed rebuild config %q: %v", path, err)
	}
	if rc.SourceFileHashes == nil {
		rc.SourceFileHashes = map[string]string{}
	}
	if rc.NewcodeAddr == nil {
		rc.NewcodeAddr = map[string]uint32{}
	}
	return &rc, nil
}

// Save writes the rebuild config back out so the next run can reuse it.
func (rc *RebuildConfig) Save(path string) error {
	raw, err := yaml.Marshal(rc)
	if err != nil {
		return ncp.Context("failed to encode rebuild config", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return ncp.Context(fmt.Sprintf("failed to save rebuild config %q", path), err)
	}
	return nil
}
