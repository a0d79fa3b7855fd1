package patch

import (
	"bytes"
	"os/exec"

	"github.com/Isaac0-dev/NCPatcher/go/ncp"
)

// LinkELF invokes the toolchain's C compiler in driver mode to run the
// linker against ldScript, mirroring linkElfFile: -Wl,--gc-sections plus
// the target's extra linker flags, non-zero exit treated as fatal with the
// captured output surfaced.
func LinkELF(gccPath string, ldScript string, objects []string, ldFlags []string, workDir string) error {
	args := append([]string{}, objects...)
	args = append(args, "-nostartfiles", "-nodefaultlibs",
		"-Wl,--gc-sections,-T"+ldScript)
	args = append(args, ldFlags...)

	cmd := exec.Command(gccPath, args...)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	ncp.Info("Linking...")
	if err := cmd.Run(); err != nil {
		return ncp.LinkErrorf("linker invocation failed: %v\n%s%s", err, stdout.String(), stderr.String())
	}
	return nil
}
