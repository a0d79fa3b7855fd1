package config

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/Isaac0-dev/NCPatcher/go/ncp"
)

// CommandList is a sequence of shell commands run before or after a build,
// the way original_source/main.cpp's runCommandList executes
// preBuildCommands/postBuildCommands: numbered, aborting at the first
// failure.
type CommandList []string

// Run executes every command in order, logging "[n] cmd" the way the
// original tool does, and stops at the first non-zero exit.
func (cl CommandList) Run(workDir string) error {
	for i, cmd := range cl {
		ncp.Info(fmt.Sprintf("[%d] %s", i+1, cmd))
		c := exec.Command("sh", "-c", cmd)
		c.Dir = workDir
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return ncp.Context("command failed: "+cmd, err)
		}
	}
	return nil
}
