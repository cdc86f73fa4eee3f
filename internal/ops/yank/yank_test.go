package yank_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gityank/gityank/internal/git"
	"github.com/gityank/gityank/internal/logs"
	"github.com/gityank/gityank/internal/ops/yank"
	"github.com/gityank/gityank/tests/repohelper"
)

// workRepo builds a repository with an initial commit on main and two extra
// commits on a work branch, which is left checked out.
func workRepo(t *testing.T) (*repohelper.Repo, string, string) {
	t.Helper()

	repo := repohelper.Init(t)
	repo.MustRun(t, "checkout", "-b", "work")
	c1 := repo.CommitFile(t, "c1.txt", "one\n", "first yanked")
	c2 := repo.CommitFile(t, "c2.txt", "two\n", "second yanked")
	return repo, c1, c2
}

func TestExecuteMovesCommitsToNewBranch(t *testing.T) {
	repo, c1, c2 := workRepo(t)

	req := yank.Request{
		Commits:    []string{c1, c2},
		Branch:     "feature/x",
		StartPoint: "main",
	}

	var out bytes.Buffer
	audit := logs.NewAuditLog()
	report, err := yank.Execute(context.Background(), &git.Runner{Dir: repo.Path}, req, &out, audit)
	require.NoError(t, err)

	require.Equal(t, "work", report.SourceBranch)
	require.True(t, report.CreatedBranch)
	require.Equal(t, []string{c1, c2}, report.Replayed)
	require.ElementsMatch(t, []string{c1, c2}, report.Removed)
	require.False(t, report.Pushed)

	// Destination has the commits replayed in the supplied order after main.
	require.True(t, repo.BranchExists("feature/x"))
	require.Equal(t, []string{"second yanked", "first yanked", "initial"}, repo.Subjects(t, "feature/x"))

	// Source branch no longer carries the yanked commits and is active again.
	require.Equal(t, []string{"initial"}, repo.Subjects(t, "work"))
	require.NotContains(t, repo.Commits(t, "work"), c1)
	require.NotContains(t, repo.Commits(t, "work"), c2)
	require.Equal(t, "work", repo.CurrentBranch(t))

	require.Contains(t, out.String(), "Done. Commits yanked onto feature/x")

	_, ok := audit.Undo()
	require.True(t, ok)
}

func TestExecuteSafeModeLeavesSourceUntouched(t *testing.T) {
	repo, c1, c2 := workRepo(t)

	req := yank.Request{
		Commits:    []string{c1, c2},
		Branch:     "feature/safe",
		StartPoint: "main",
		Safe:       true,
	}

	report, err := yank.Execute(context.Background(), &git.Runner{Dir: repo.Path}, req, nil, nil)
	require.NoError(t, err)
	require.Empty(t, report.Removed)

	require.Contains(t, repo.Commits(t, "work"), c1)
	require.Contains(t, repo.Commits(t, "work"), c2)
	require.Equal(t, []string{"second yanked", "first yanked", "initial"}, repo.Subjects(t, "feature/safe"))
	require.Equal(t, "work", repo.CurrentBranch(t))
}

func TestExecuteReusesExistingBranch(t *testing.T) {
	repo, c1, c2 := workRepo(t)
	repo.MustRun(t, "branch", "existing", "main")

	req := yank.Request{
		Commits:    []string{c1, c2},
		Branch:     "existing",
		StartPoint: "main",
	}

	var out bytes.Buffer
	report, err := yank.Execute(context.Background(), &git.Runner{Dir: repo.Path}, req, &out, nil)
	require.NoError(t, err)
	require.False(t, report.CreatedBranch)

	var ensure *yank.StepResult
	for i := range report.Steps {
		if report.Steps[i].Name == "ensure-branch" {
			ensure = &report.Steps[i]
		}
	}
	require.NotNil(t, ensure)
	require.Equal(t, yank.StepRecovered, ensure.Status)
	require.Contains(t, out.String(), "already exists; moving commits into it")

	require.Equal(t, []string{"second yanked", "first yanked", "initial"}, repo.Subjects(t, "existing"))
}

func TestExecuteReplayOrderFollowsRequest(t *testing.T) {
	repo, c1, c2 := workRepo(t)

	req := yank.Request{
		Commits:    []string{c2, c1}, // deliberately reversed
		Branch:     "feature/reversed",
		StartPoint: "main",
	}

	report, err := yank.Execute(context.Background(), &git.Runner{Dir: repo.Path}, req, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{c2, c1}, report.Replayed)

	// Replayed newest-first on the log means c1 is on top here.
	require.Equal(t, []string{"first yanked", "second yanked", "initial"}, repo.Subjects(t, "feature/reversed"))

	// Removal still strips both regardless of the supplied order.
	require.Equal(t, []string{"initial"}, repo.Subjects(t, "work"))
}

func TestExecuteFatalOnInvalidBranchName(t *testing.T) {
	repo, c1, _ := workRepo(t)
	before := repo.Commits(t, "work")

	req := yank.Request{
		Commits:    []string{c1},
		Branch:     "bad..name",
		StartPoint: "main",
	}

	report, err := yank.Execute(context.Background(), &git.Runner{Dir: repo.Path}, req, nil, nil)
	require.Error(t, err)

	last := report.Steps[len(report.Steps)-1]
	require.Equal(t, "ensure-branch", last.Name)
	require.Equal(t, yank.StepFailed, last.Status)
	require.NotZero(t, last.ExitCode)

	// Nothing moved and the source branch is still active.
	require.Equal(t, before, repo.Commits(t, "work"))
	require.Equal(t, "work", repo.CurrentBranch(t))
}

func TestExecuteConflictRollsBackToSource(t *testing.T) {
	repo := repohelper.Init(t)
	repo.MustRun(t, "checkout", "-b", "work")
	repo.CommitFile(t, "README.md", "one\n", "first edit")
	c2 := repo.CommitFile(t, "README.md", "one\ntwo\n", "second edit")

	// c2's patch context requires the first edit, which main lacks.
	req := yank.Request{
		Commits:    []string{c2},
		Branch:     "feature/conflict",
		StartPoint: "main",
	}

	report, err := yank.Execute(context.Background(), &git.Runner{Dir: repo.Path}, req, nil, nil)
	require.Error(t, err)

	require.Equal(t, "work", repo.CurrentBranch(t))
	require.Contains(t, repo.Commits(t, "work"), c2)
	require.Equal(t, []string{"initial"}, repo.Subjects(t, "feature/conflict"))

	var sawRollback bool
	for _, step := range report.Steps {
		if step.Name == "rollback" {
			sawRollback = true
			require.Equal(t, yank.StepRecovered, step.Status)
		}
	}
	require.True(t, sawRollback)
}

func TestExecuteRemovalConflictIsRecovered(t *testing.T) {
	repo := repohelper.Init(t)
	repo.MustRun(t, "checkout", "-b", "work")
	c1 := repo.CommitFile(t, "shared.txt", "base\n", "add shared")
	repo.CommitFile(t, "shared.txt", "base\nmore\n", "extend shared")
	c3 := repo.CommitFile(t, "other.txt", "other\n", "independent change")

	// Stripping c1 rebases its dependent descendant onto a tree without
	// shared.txt, which conflicts; c3 has no dependents and removes cleanly.
	req := yank.Request{
		Commits:    []string{c1, c3},
		Branch:     "feature/partial",
		StartPoint: "main",
	}

	var out bytes.Buffer
	report, err := yank.Execute(context.Background(), &git.Runner{Dir: repo.Path}, req, &out, nil)
	require.NoError(t, err)
	require.Equal(t, []string{c3}, report.Removed)

	require.Equal(t, []string{"independent change", "add shared", "initial"}, repo.Subjects(t, "feature/partial"))
	require.Equal(t, []string{"extend shared", "add shared", "initial"}, repo.Subjects(t, "work"))
	require.Equal(t, "work", repo.CurrentBranch(t))

	var sawRecovered bool
	for _, step := range report.Steps {
		if step.Name == "remove" && step.Status == yank.StepRecovered {
			sawRecovered = true
			require.Contains(t, step.Detail, "Could not remove")
		}
	}
	require.True(t, sawRecovered)
	require.Contains(t, out.String(), "Done. Commits yanked onto feature/partial")
}

func TestExecuteSkipApplied(t *testing.T) {
	repo, c1, c2 := workRepo(t)

	// Apply c1's patch to the destination ahead of time.
	repo.MustRun(t, "branch", "dest", "main")
	repo.MustRun(t, "checkout", "dest")
	repo.MustRun(t, "cherry-pick", c1)
	repo.MustRun(t, "checkout", "work")

	req := yank.Request{
		Commits:     []string{c1, c2},
		Branch:      "dest",
		StartPoint:  "main",
		SkipApplied: true,
	}

	var out bytes.Buffer
	report, err := yank.Execute(context.Background(), &git.Runner{Dir: repo.Path}, req, &out, nil)
	require.NoError(t, err)
	require.Equal(t, []string{c2}, report.Replayed)
	require.Contains(t, out.String(), "already applied on dest; skipping replay")

	// Exactly one copy of the first patch on the destination.
	subjects := repo.Subjects(t, "dest")
	require.Equal(t, []string{"second yanked", "first yanked", "initial"}, subjects)

	// Both commits still leave the source branch.
	require.Equal(t, []string{"initial"}, repo.Subjects(t, "work"))
}

func TestExecutePushFailureIsRecoverable(t *testing.T) {
	repo, c1, _ := workRepo(t)

	// No remote is configured, so the push must fail without aborting.
	req := yank.Request{
		Commits:    []string{c1},
		Branch:     "feature/push",
		StartPoint: "main",
		Push:       true,
	}

	var out bytes.Buffer
	report, err := yank.Execute(context.Background(), &git.Runner{Dir: repo.Path}, req, &out, nil)
	require.NoError(t, err)
	require.False(t, report.Pushed)

	var push *yank.StepResult
	for i := range report.Steps {
		if report.Steps[i].Name == "push" {
			push = &report.Steps[i]
		}
	}
	require.NotNil(t, push)
	require.Equal(t, yank.StepRecovered, push.Status)
	require.Contains(t, out.String(), "Done. Commits yanked onto feature/push")
	require.Equal(t, "work", repo.CurrentBranch(t))
}

func TestExecuteRejectsEmptyRequest(t *testing.T) {
	_, err := yank.Execute(context.Background(), nil, yank.Request{Branch: "x"}, nil, nil)
	require.Error(t, err)

	_, err = yank.Execute(context.Background(), nil, yank.Request{Commits: []string{"abc"}}, nil, nil)
	require.Error(t, err)
}

func TestPlanListsCommands(t *testing.T) {
	req := yank.Request{
		Commits:    []string{"abc123", "def456"},
		Branch:     "feature/x",
		StartPoint: "main",
		Push:       true,
	}

	commands := yank.Plan(req, "work")
	require.Equal(t, []string{
		"git branch feature/x main",
		"git checkout feature/x",
		"git cherry-pick abc123",
		"git cherry-pick def456",
		"git push",
		"git checkout work",
		"git rebase --rebase-merges --onto abc123^ abc123 work",
		"git rebase --rebase-merges --onto def456^ def456 work",
	}, commands)
}

func TestPlanSafeModeSkipsRemoval(t *testing.T) {
	req := yank.Request{
		Commits:    []string{"abc123"},
		Branch:     "feature/x",
		StartPoint: "main",
		Safe:       true,
	}

	commands := yank.Plan(req, "work")
	require.Equal(t, []string{
		"git branch feature/x main",
		"git checkout feature/x",
		"git cherry-pick abc123",
		"git checkout work",
	}, commands)
}
