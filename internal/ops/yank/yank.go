// Package yank moves commits from the current branch onto another branch:
// create (or reuse) the destination, replay the commits there, optionally
// push, return to the source branch, and optionally strip the moved commits
// from it. Each git invocation completes before the next begins; the working
// tree and index tolerate no concurrency.
package yank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gityank/gityank/internal/git"
	"github.com/gityank/gityank/internal/logs"
)

// Request is the fully-resolved input for one yank run. It is built once
// (flags parsed, defaults resolved, commit refs expanded to hashes) and never
// mutated afterwards.
type Request struct {
	Commits     []string // resolved hashes, in the order supplied
	Branch      string   // destination branch name
	StartPoint  string   // ref the destination branch starts from
	Push        bool
	Safe        bool // keep the commits on the source branch
	SkipApplied bool // drop commits whose patch already exists on the destination
}

// StepStatus classifies the outcome of a single orchestration step.
type StepStatus int

const (
	StepOK StepStatus = iota
	StepRecovered // failed or benign-failed, run continues
	StepSkipped
	StepFailed // fatal, run aborts
)

func (s StepStatus) String() string {
	switch s {
	case StepOK:
		return "ok"
	case StepRecovered:
		return "recovered"
	case StepSkipped:
		return "skipped"
	case StepFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StepResult records one step of the sequence so tests and callers can
// inspect outcomes directly instead of scraping console output.
type StepResult struct {
	Name     string
	Command  string
	Status   StepStatus
	Detail   string
	ExitCode int
}

// Report is the full outcome of a yank run.
type Report struct {
	SourceBranch      string
	DestinationBranch string
	CreatedBranch     bool
	Pushed            bool
	Replayed          []string
	Removed           []string
	Steps             []StepResult
}

func (r *Report) record(out io.Writer, audit *logs.AuditLog, step StepResult) {
	r.Steps = append(r.Steps, step)
	if out != nil {
		fmt.Fprintln(out, step.Detail)
	}
	if audit != nil {
		audit.Record(logs.Entry{
			Summary: step.Name,
			Metadata: map[string]string{
				"command": step.Command,
				"status":  step.Status.String(),
				"detail":  step.Detail,
			},
		})
	}
}

// Plan returns the git commands a run of req would issue, for dry-run
// display. source is the branch currently checked out.
func Plan(req Request, source string) []string {
	commands := []string{
		fmt.Sprintf("git branch %s %s", req.Branch, req.StartPoint),
		"git checkout " + req.Branch,
	}
	for _, hash := range req.Commits {
		commands = append(commands, "git cherry-pick "+hash)
	}
	if req.Push {
		commands = append(commands, "git push")
	}
	commands = append(commands, "git checkout "+source)
	if !req.Safe {
		for _, hash := range req.Commits {
			commands = append(commands, fmt.Sprintf("git rebase --rebase-merges --onto %s^ %s %s", hash, hash, source))
		}
	}
	return commands
}

// Execute runs the yank sequence. Progress lines go to out and the audit
// log; the returned Report holds per-step results. A non-nil error means a
// fatal step aborted the run; reversible state (the active branch) has been
// restored where possible.
func Execute(ctx context.Context, runner *git.Runner, req Request, out io.Writer, audit *logs.AuditLog) (*Report, error) {
	if runner == nil {
		runner = &git.Runner{}
	}
	if len(req.Commits) == 0 {
		return nil, errors.New("no commits to yank")
	}
	if strings.TrimSpace(req.Branch) == "" {
		return nil, errors.New("destination branch name is empty")
	}

	report := &Report{DestinationBranch: req.Branch}

	// Capture the source branch first; every later step must be able to
	// return the user here. Failure is fatal: continuing with an empty
	// branch name would run the rest of the sequence against the wrong ref.
	stdout, stderr, err := runner.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		report.record(out, audit, StepResult{
			Name:     "capture-source",
			Command:  "git rev-parse --abbrev-ref HEAD",
			Status:   StepFailed,
			Detail:   "Could not determine the current branch",
			ExitCode: git.ExitCode(err),
		})
		return report, fmt.Errorf("capture source branch: %w", commandError(err, stderr))
	}
	source := strings.TrimSpace(stdout)
	report.SourceBranch = source
	report.record(out, audit, StepResult{
		Name:    "capture-source",
		Command: "git rev-parse --abbrev-ref HEAD",
		Status:  StepOK,
		Detail:  "Yanking from branch " + source,
	})

	// Ensure the destination branch exists. "already exists" is benign:
	// the commits move into the existing branch.
	branchCmd := fmt.Sprintf("git branch %s %s", req.Branch, req.StartPoint)
	_, stderr, err = runner.Run(ctx, "branch", req.Branch, req.StartPoint)
	switch {
	case err == nil:
		report.CreatedBranch = true
		report.record(out, audit, StepResult{
			Name:    "ensure-branch",
			Command: branchCmd,
			Status:  StepOK,
			Detail:  fmt.Sprintf("Created branch %s from %s", req.Branch, req.StartPoint),
		})
	case errors.Is(git.ClassifyError(stderr), git.ErrBranchAlreadyExists):
		report.record(out, audit, StepResult{
			Name:    "ensure-branch",
			Command: branchCmd,
			Status:  StepRecovered,
			Detail:  fmt.Sprintf("Branch %s already exists; moving commits into it", req.Branch),
		})
	default:
		report.record(out, audit, StepResult{
			Name:     "ensure-branch",
			Command:  branchCmd,
			Status:   StepFailed,
			Detail:   fmt.Sprintf("Could not create branch %s from %s", req.Branch, req.StartPoint),
			ExitCode: git.ExitCode(err),
		})
		return report, fmt.Errorf("create branch %s: %w", req.Branch, commandError(err, stderr))
	}

	replay := req.Commits
	if req.SkipApplied {
		replay = dropApplied(ctx, runner, req, report, out, audit)
	}

	if err := checkout(ctx, runner, req.Branch, report, out, audit); err != nil {
		return report, err
	}

	// Replay in the order supplied. A conflict aborts the run; the
	// in-progress cherry-pick is cancelled and the source branch restored.
	for _, hash := range replay {
		pickCmd := "git cherry-pick " + hash
		_, stderr, err = runner.Run(ctx, "cherry-pick", hash)
		if err != nil {
			report.record(out, audit, StepResult{
				Name:     "replay",
				Command:  pickCmd,
				Status:   StepFailed,
				Detail:   fmt.Sprintf("Could not replay %s onto %s", shortHash(hash), req.Branch),
				ExitCode: git.ExitCode(err),
			})
			rollbackReplay(ctx, runner, source, report, out, audit)
			return report, fmt.Errorf("cherry-pick %s: %w", shortHash(hash), commandError(err, stderr))
		}
		report.Replayed = append(report.Replayed, hash)
		report.record(out, audit, StepResult{
			Name:    "replay",
			Command: pickCmd,
			Status:  StepOK,
			Detail:  fmt.Sprintf("Replayed %s onto %s", shortHash(hash), req.Branch),
		})
	}

	// Push failures are recoverable: the local destination branch is
	// already correct, and the user must land back on the source branch.
	if req.Push {
		_, stderr, err = runner.Run(ctx, "push")
		if err != nil {
			report.record(out, audit, StepResult{
				Name:     "push",
				Command:  "git push",
				Status:   StepRecovered,
				Detail:   fmt.Sprintf("Push failed (exit %d): %s; continuing", git.ExitCode(err), strings.TrimSpace(stderr)),
				ExitCode: git.ExitCode(err),
			})
		} else {
			report.Pushed = true
			report.record(out, audit, StepResult{
				Name:    "push",
				Command: "git push",
				Status:  StepOK,
				Detail:  "Pushed " + req.Branch,
			})
		}
	}

	if err := checkout(ctx, runner, source, report, out, audit); err != nil {
		return report, err
	}

	if !req.Safe {
		removeFromSource(ctx, runner, req, source, report, out, audit)
	}

	report.record(out, audit, StepResult{
		Name:   "complete",
		Status: StepOK,
		Detail: fmt.Sprintf("Done. Commits yanked onto %s", req.Branch),
	})
	return report, nil
}

func checkout(ctx context.Context, runner *git.Runner, branch string, report *Report, out io.Writer, audit *logs.AuditLog) error {
	command := "git checkout " + branch
	_, stderr, err := runner.Run(ctx, "checkout", branch)
	if err != nil {
		report.record(out, audit, StepResult{
			Name:     "checkout",
			Command:  command,
			Status:   StepFailed,
			Detail:   "Could not switch to branch " + branch,
			ExitCode: git.ExitCode(err),
		})
		return fmt.Errorf("checkout %s: %w", branch, commandError(err, stderr))
	}
	report.record(out, audit, StepResult{
		Name:    "checkout",
		Command: command,
		Status:  StepOK,
		Detail:  "Switched to branch " + branch,
	})
	return nil
}

// rollbackReplay cancels an in-progress cherry-pick and returns to the
// source branch after a fatal replay failure.
func rollbackReplay(ctx context.Context, runner *git.Runner, source string, report *Report, out io.Writer, audit *logs.AuditLog) {
	_, _, _ = runner.Run(ctx, "cherry-pick", "--abort")

	detail := "Returned to branch " + source
	status := StepRecovered
	if _, _, err := runner.Run(ctx, "checkout", source); err != nil {
		detail = fmt.Sprintf("Could not return to branch %s; the repository is still on the destination branch", source)
		status = StepFailed
	}
	report.record(out, audit, StepResult{
		Name:    "rollback",
		Command: "git cherry-pick --abort && git checkout " + source,
		Status:  status,
		Detail:  detail,
	})
}

// removeFromSource strips the yanked commits from the source branch,
// newest first so rewriting descendants never resurrects an earlier target.
// Individual failures are reported and the remaining commits still processed.
func removeFromSource(ctx context.Context, runner *git.Runner, req Request, source string, report *Report, out io.Writer, audit *logs.AuditLog) {
	ordered, err := orderNewestFirst(ctx, runner, source, req.Commits)
	if err != nil {
		report.record(out, audit, StepResult{
			Name:    "remove",
			Command: "git rev-list --topo-order " + source,
			Status:  StepRecovered,
			Detail:  fmt.Sprintf("Could not order commits for removal (%v); using supplied order", err),
		})
		ordered = req.Commits
	}

	for _, hash := range ordered {
		command := fmt.Sprintf("git rebase --rebase-merges --onto %s^ %s %s", hash, hash, source)
		_, stderr, err := runner.Run(ctx, "rebase", "--rebase-merges", "--onto", hash+"^", hash, source)
		if err != nil {
			// Leave the branch usable before moving on.
			_, _, _ = runner.Run(ctx, "rebase", "--abort")
			report.record(out, audit, StepResult{
				Name:     "remove",
				Command:  command,
				Status:   StepRecovered,
				Detail:   fmt.Sprintf("Could not remove %s from %s (exit %d): %s", shortHash(hash), source, git.ExitCode(err), strings.TrimSpace(stderr)),
				ExitCode: git.ExitCode(err),
			})
			continue
		}
		report.Removed = append(report.Removed, hash)
		report.record(out, audit, StepResult{
			Name:    "remove",
			Command: command,
			Status:  StepOK,
			Detail:  fmt.Sprintf("Removed %s from %s", shortHash(hash), source),
		})
	}
}

func shortHash(hash string) string {
	if len(hash) <= 7 {
		return hash
	}
	return hash[:7]
}

func commandError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, stderr)
}
