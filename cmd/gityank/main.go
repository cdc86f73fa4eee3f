package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gityank/gityank/internal/config"
	"github.com/gityank/gityank/internal/git"
	"github.com/gityank/gityank/internal/logs"
	"github.com/gityank/gityank/internal/namegen"
	"github.com/gityank/gityank/internal/ops/yank"
	"github.com/gityank/gityank/internal/tui"
)

const dirtyWorktreeMessage = "Uncommitted changes detected. Please commit or stash before yanking."

// pickerCommitLimit bounds how much history the interactive picker loads.
const pickerCommitLimit = 30

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	yankExecuteFn        = yank.Execute
	yankPlanFn           = yank.Plan
	pickCommitsFn        = tui.PickCommits
	generateNameFn       = namegen.Random
	logsWriteOperationFn = logs.WriteOperation
	logsPushUndoFn       = logs.PushUndo
	logsUndoFn           = logs.Undo
	logsRedoFn           = logs.Redo
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		flagBranch      string
		flagStartPoint  string
		flagPush        bool
		flagSafe        bool
		flagSkipApplied bool
		flagDryRun      bool
		flagTUI         bool
		flagDebug       bool
		flagVersion     bool
	)

	cmd := &cobra.Command{
		Use:   "gityank [commits...]",
		Short: "Move commits from the current branch onto another branch.",
		Long: `gityank moves the given commits from the current branch onto another
branch: it creates (or reuses) the destination, cherry-picks the commits
there, optionally pushes, returns to the current branch, and strips the
moved commits from it unless --safe is given.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "gityank %s\n", version)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(".")
			if err != nil {
				return err
			}

			runner := &git.Runner{}

			if len(args) == 0 && flagTUI {
				picked, err := pickCommitsFn(ctx, runner, pickerCommitLimit)
				if err != nil {
					return err
				}
				args = picked
			}
			if len(args) == 0 {
				return cmd.Help()
			}

			clean, err := runner.IsClean(ctx)
			if err != nil {
				return err
			}
			if !clean {
				return errors.New(dirtyWorktreeMessage)
			}

			// Resolve every ref to a full hash before touching any branch,
			// so a typo cannot abort the run halfway through.
			commits := make([]string, 0, len(args))
			for _, ref := range args {
				hash, err := runner.ResolveCommit(ctx, ref)
				if err != nil {
					return err
				}
				commits = append(commits, hash)
			}

			req := buildRequest(cmd, cfg, requestFlags{
				branch:      flagBranch,
				startPoint:  flagStartPoint,
				push:        flagPush,
				safe:        flagSafe,
				skipApplied: flagSkipApplied,
			}, commits)

			source, err := runner.CurrentBranch(ctx)
			if err != nil {
				return err
			}

			if flagDebug {
				if gitVersion, err := git.Version(ctx); err == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "using %s\n", gitVersion)
				}
				fmt.Fprintf(cmd.ErrOrStderr(),
					"yank request: source=%s branch=%s start-point=%s commits=%s push=%t safe=%t skip-applied=%t\n",
					source, req.Branch, req.StartPoint, strings.Join(req.Commits, ","),
					req.Push, req.Safe, req.SkipApplied)
			}

			if flagDryRun {
				printPlan(cmd, yankPlanFn(req, source))
				return nil
			}

			beforeHead, err := head(ctx, runner, source)
			if err != nil {
				return err
			}

			audit := logs.NewAuditLog()
			report, err := yankExecuteFn(ctx, runner, req, cmd.OutOrStdout(), audit)
			if err != nil {
				return err
			}

			afterHead, err := head(ctx, runner, report.SourceBranch)
			if err != nil {
				return err
			}

			op := logs.Operation{
				Source:      report.SourceBranch,
				Destination: req.Branch,
				Commits:     req.Commits,
				StartPoint:  req.StartPoint,
				Pushed:      report.Pushed,
				Safe:        req.Safe,
				Commands:    yankPlanFn(req, report.SourceBranch),
			}
			if err := logsWriteOperationFn(op); err != nil {
				return err
			}

			undo := logs.UndoEntry{
				Branch:     report.SourceBranch,
				BeforeHead: beforeHead,
				AfterHead:  afterHead,
			}
			return logsPushUndoFn(undo)
		},
	}

	cmd.Flags().StringVarP(&flagBranch, "branch", "b", "", "Destination branch name (generated when omitted)")
	cmd.Flags().StringVarP(&flagStartPoint, "start-point", "s", "master", "Ref the destination branch starts from")
	cmd.Flags().BoolVarP(&flagPush, "push", "p", false, "Push the destination branch after replaying")
	cmd.Flags().BoolVarP(&flagSafe, "safe", "S", false, "Keep the commits on the current branch")
	cmd.Flags().BoolVar(&flagSkipApplied, "skip-applied", false, "Skip commits whose patch already exists on the destination")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Print the git commands without running them")
	cmd.Flags().BoolVar(&flagTUI, "tui", false, "Pick commits interactively when none are given")
	cmd.Flags().BoolVar(&flagDebug, "debug", false, "Print the resolved request before running")
	cmd.Flags().BoolVarP(&flagVersion, "version", "v", false, "Print the gityank version and exit")

	cmd.AddCommand(newUndoCmd())
	cmd.AddCommand(newRedoCmd())

	cmd.SetContext(context.Background())
	cmd.SilenceUsage = true

	return cmd
}

type requestFlags struct {
	branch      string
	startPoint  string
	push        bool
	safe        bool
	skipApplied bool
}

// buildRequest merges flags over the loaded configuration. A flag left at
// its default defers to the config value; the branch name is generated when
// neither supplies one.
func buildRequest(cmd *cobra.Command, cfg *config.Config, flags requestFlags, commits []string) yank.Request {
	startPoint := cfg.StartPoint
	if cmd.Flags().Changed("start-point") {
		startPoint = flags.startPoint
	}
	push := cfg.Push
	if cmd.Flags().Changed("push") {
		push = flags.push
	}
	safe := cfg.Safe
	if cmd.Flags().Changed("safe") {
		safe = flags.safe
	}
	skipApplied := cfg.SkipApplied
	if cmd.Flags().Changed("skip-applied") {
		skipApplied = flags.skipApplied
	}

	branch := strings.TrimSpace(flags.branch)
	if branch == "" {
		branch = cfg.BranchPrefix + generateNameFn()
	}

	return yank.Request{
		Commits:     commits,
		Branch:      branch,
		StartPoint:  startPoint,
		Push:        push,
		Safe:        safe,
		SkipApplied: skipApplied,
	}
}

func newUndoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Undo the last gityank operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, ok, err := logsUndoFn()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No undo information available.")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Undo entry: branch=%s before=%s after=%s\n", entry.Branch, entry.BeforeHead, entry.AfterHead)
			fmt.Fprintln(cmd.OutOrStdout(), "Please manually reset your repository as needed (e.g., git reset --hard).")
			return nil
		},
	}
	cmd.SilenceUsage = true
	return cmd
}

func newRedoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redo",
		Short: "Redo the last undone gityank operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, ok, err := logsRedoFn()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No redo information available.")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Redo entry: branch=%s before=%s after=%s\n", entry.Branch, entry.BeforeHead, entry.AfterHead)
			fmt.Fprintln(cmd.OutOrStdout(), "Please manually adjust your repository as needed (e.g., git reset --hard).")
			return nil
		},
	}
	cmd.SilenceUsage = true
	return cmd
}

func printPlan(cmd *cobra.Command, commands []string) {
	out := cmd.OutOrStdout()
	if len(commands) == 0 {
		fmt.Fprintln(out, "No commands to execute.")
		return
	}
	fmt.Fprintln(out, "Planned commands:")
	for _, c := range commands {
		fmt.Fprintf(out, "  %s\n", c)
	}
}

func head(ctx context.Context, runner *git.Runner, ref string) (string, error) {
	stdout, stderr, err := runner.Run(ctx, "rev-parse", ref)
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s failed: %v (%s)", ref, err, strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(stdout), nil
}
