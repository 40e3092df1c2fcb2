package runtime

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/agentforge/orchestrator/internal/engine/types"
)

// projectMarkers maps a file that identifies a project type to the name
// reported in EnvironmentSnapshot.ProjectType. Checked in order; the
// first match wins.
var projectMarkers = []struct {
	file string
	kind string
}{
	{"go.mod", "go"},
	{"package.json", "node"},
	{"Cargo.toml", "rust"},
	{"pyproject.toml", "python"},
	{"requirements.txt", "python"},
	{"pom.xml", "java"},
	{"Gemfile", "ruby"},
}

// keyFileCandidates are checked for presence and, when found, listed on
// the snapshot so the planner knows what's available without reading
// file contents.
var keyFileCandidates = []string{
	"README.md", "go.mod", "package.json", "Makefile", "Dockerfile",
	"Cargo.toml", "pyproject.toml", ".github/workflows",
}

// GatherEnvironment collects the read-only filesystem/VCS snapshot the
// Agent Runtime hands to the Cognitive Planner, per spec.md §4.6 step 1.
// It never fails on missing tooling (no git, unreadable directory):
// absence of VCS information degrades the snapshot rather than aborting
// the task.
func GatherEnvironment(workingDir string) (types.EnvironmentSnapshot, error) {
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return types.EnvironmentSnapshot{}, err
		}
		workingDir = wd
	}

	snap := types.EnvironmentSnapshot{WorkingDirectory: workingDir}

	for _, marker := range projectMarkers {
		if _, err := os.Stat(filepath.Join(workingDir, marker.file)); err == nil {
			snap.ProjectType = marker.kind
			break
		}
	}

	for _, candidate := range keyFileCandidates {
		if _, err := os.Stat(filepath.Join(workingDir, candidate)); err == nil {
			snap.KeyFiles = append(snap.KeyFiles, candidate)
		}
	}

	gatherVCS(workingDir, &snap)

	return snap, nil
}

func gatherVCS(workingDir string, snap *types.EnvironmentSnapshot) {
	if _, err := os.Stat(filepath.Join(workingDir, ".git")); err != nil {
		return
	}
	snap.HasVCS = true

	if branch, err := runGit(workingDir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		snap.VCSBranch = strings.TrimSpace(branch)
	}

	status, err := runGit(workingDir, "status", "--porcelain")
	if err != nil {
		return
	}
	status = strings.TrimSpace(status)
	if status == "" {
		snap.VCSStatus = "clean"
		return
	}
	snap.VCSStatus = "dirty"

	for _, line := range strings.Split(status, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		snap.RecentlyModified = append(snap.RecentlyModified, fields[len(fields)-1])
		if len(snap.RecentlyModified) >= 25 {
			break
		}
	}
}

func runGit(workingDir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workingDir
	out, err := cmd.Output()
	return string(out), err
}
