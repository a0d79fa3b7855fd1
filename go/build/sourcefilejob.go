// Package build models the handful of facts the patch maker needs about
// each source file it compiles - just enough to know which object made it
// into the link and where its compiled output lives - without owning the
// actual compilation step (an external collaborator, same as the spec
// names it).
package build

// SourceFileJob is one source file slated for compilation into the
// target's new-code object.
type SourceFileJob struct {
	SourcePath string
	ObjectPath string
	// Region is the destination (-1 main arm, else overlay id) of the
	// region this source file's directory was configured under. Patch
	// directives compiled from it inherit this as their enclosing region.
	Region int
	// Force marks a source file for recompilation regardless of whether
	// its modification time is older than its object file, mirroring the
	// original tool's -f/--force-rebuild behavior.
	Force bool
}

// NewSourceFileJob derives the object path for a source file beneath
// buildDir, keeping its relative path so two source trees with the same
// leaf filename don't collide.
func NewSourceFileJob(sourcePath, relPath, buildDir string, region int) SourceFileJob {
	return SourceFileJob{
		SourcePath: sourcePath,
		ObjectPath: buildDir + "/" + relPath + ".o",
		Region:     region,
	}
}
