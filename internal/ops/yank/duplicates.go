package yank

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gityank/gityank/internal/git"
	"github.com/gityank/gityank/internal/logs"
)

// dropApplied filters the replay set down to commits whose patch does not
// already exist on the destination branch, comparing stable patch-ids. The
// check is advisory: if it cannot run, every commit is replayed.
func dropApplied(ctx context.Context, runner *git.Runner, req Request, report *Report, out io.Writer, audit *logs.AuditLog) []string {
	applied, err := appliedPatchIDs(ctx, runner, req.Branch)
	if err != nil {
		report.record(out, audit, StepResult{
			Name:    "skip-applied",
			Command: "git log --pretty=%H " + req.Branch,
			Status:  StepRecovered,
			Detail:  fmt.Sprintf("Could not inspect %s for applied patches (%v); replaying all commits", req.Branch, err),
		})
		return req.Commits
	}

	kept := make([]string, 0, len(req.Commits))
	for _, hash := range req.Commits {
		pid, err := runner.PatchID(ctx, hash)
		if err == nil && pid != "" && applied[pid] {
			report.record(out, audit, StepResult{
				Name:    "skip-applied",
				Command: "git patch-id --stable",
				Status:  StepSkipped,
				Detail:  fmt.Sprintf("Commit %s is already applied on %s; skipping replay", shortHash(hash), req.Branch),
			})
			continue
		}
		kept = append(kept, hash)
	}
	return kept
}

func appliedPatchIDs(ctx context.Context, runner *git.Runner, branch string) (map[string]bool, error) {
	stdout, stderr, err := runner.Run(ctx, "log", "--pretty=%H", branch)
	if err != nil {
		return nil, commandError(err, stderr)
	}

	ids := make(map[string]bool)
	for _, hash := range strings.Fields(strings.TrimSpace(stdout)) {
		pid, err := runner.PatchID(ctx, hash)
		if err != nil || pid == "" {
			continue
		}
		ids[pid] = true
	}
	return ids, nil
}
