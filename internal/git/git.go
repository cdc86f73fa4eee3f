package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrBranchAlreadyExists is the classification for a failed `git branch`
// whose stderr indicates the branch name is already taken.
var ErrBranchAlreadyExists = errors.New("branch already exists")

// Commit is a single commit as far as gityank cares: its hash and subject line.
type Commit struct {
	Hash    string
	Subject string
}

// Runner executes git commands, optionally inside a specific directory.
// The zero value runs in the current working directory.
type Runner struct {
	Dir string
}

// Run executes the git binary with the provided arguments and returns stdout
// and stderr separately. The error, if any, carries the process exit status.
// Terminal prompts are disabled so a missing credential fails instead of
// hanging the run.
func (r *Runner) Run(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return stdout.String(), stderr.String(), nil
}

// ExitCode extracts the process exit status from an error returned by Run.
// It returns -1 when the command never ran (or err is nil).
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// CurrentBranch returns the short name of the currently checked out branch.
func (r *Runner) CurrentBranch(ctx context.Context) (string, error) {
	stdout, stderr, err := r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", commandError(err, stderr)
	}
	return strings.TrimSpace(stdout), nil
}

// IsClean reports whether the working tree has no staged, unstaged, or
// untracked changes.
func (r *Runner) IsClean(ctx context.Context) (bool, error) {
	stdout, stderr, err := r.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, commandError(err, stderr)
	}
	return strings.TrimSpace(stdout) == "", nil
}

// ResolveCommit resolves a ref to the full hash of a commit object.
func (r *Runner) ResolveCommit(ctx context.Context, ref string) (string, error) {
	stdout, stderr, err := r.Run(ctx, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("%q does not name a commit: %w", ref, commandError(err, stderr))
	}
	return strings.TrimSpace(stdout), nil
}

// RecentCommits lists up to limit commits reachable from ref, newest first.
func (r *Runner) RecentCommits(ctx context.Context, ref string, limit int) ([]Commit, error) {
	stdout, stderr, err := r.Run(ctx, "log", "--pretty=%H%x09%s", "-n", strconv.Itoa(limit), ref)
	if err != nil {
		return nil, commandError(err, stderr)
	}

	var commits []Commit
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line == "" {
			continue
		}
		hash, subject, _ := strings.Cut(line, "\t")
		commits = append(commits, Commit{Hash: hash, Subject: subject})
	}
	return commits, nil
}

// PatchID computes the stable patch identifier for a commit, used to tell
// whether an equivalent change already exists on another branch.
func (r *Runner) PatchID(ctx context.Context, hash string) (string, error) {
	show := exec.CommandContext(ctx, "git", "show", hash)
	show.Dir = r.Dir

	patch, err := show.Output()
	if err != nil {
		return "", fmt.Errorf("git show %s: %w", hash, err)
	}

	idCmd := exec.CommandContext(ctx, "git", "patch-id", "--stable")
	idCmd.Dir = r.Dir
	idCmd.Stdin = bytes.NewReader(patch)

	out, err := idCmd.Output()
	if err != nil {
		return "", fmt.Errorf("git patch-id: %w", err)
	}

	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// TopoOrder returns all commit hashes reachable from ref in topological
// order, newest first.
func (r *Runner) TopoOrder(ctx context.Context, ref string) ([]string, error) {
	stdout, stderr, err := r.Run(ctx, "rev-list", "--topo-order", ref)
	if err != nil {
		return nil, commandError(err, stderr)
	}
	return strings.Fields(strings.TrimSpace(stdout)), nil
}

// Version returns the Git version string, trimming whitespace for convenience.
func Version(ctx context.Context) (string, error) {
	r := &Runner{}
	stdout, stderr, err := r.Run(ctx, "--version")
	if err != nil {
		return "", commandError(err, stderr)
	}
	return strings.TrimSpace(stdout), nil
}

// ClassifyError parses the stderr text of a failed git invocation into a
// known sentinel error, or nil when the failure is not recognized. String
// matching against git's error text is fragile across versions and locales,
// so every such match lives here and nowhere else.
func ClassifyError(stderr string) error {
	lowered := strings.ToLower(stderr)
	if strings.Contains(lowered, "already exists") {
		return ErrBranchAlreadyExists
	}
	return nil
}

func commandError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, stderr)
}
