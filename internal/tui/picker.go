// Package tui provides the interactive commit picker shown when gityank is
// invoked with --tui and no commit arguments.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"

	"github.com/gityank/gityank/internal/git"
)

// ErrCancelled is returned when the user leaves the picker without
// confirming a selection.
var ErrCancelled = errors.New("commit selection cancelled")

// Seams for tests.
var (
	recentCommitsFn = func(ctx context.Context, runner *git.Runner, limit int) ([]git.Commit, error) {
		return runner.RecentCommits(ctx, "HEAD", limit)
	}
	isTerminalFn = func() bool {
		return term.IsTerminal(int(os.Stdin.Fd()))
	}
	colorSupportFn = detectColorSupport
	runPickerFn    = func(ctx context.Context, p *Picker) error { return p.Run(ctx) }
)

// Picker is a checkbox list over the most recent commits on the current
// branch. Space toggles, Enter confirms, q or Escape cancels.
type Picker struct {
	app       *tview.Application
	List      *tview.List
	commits   []git.Commit
	selected  map[int]bool
	confirmed bool
	useColor  bool
}

// NewPicker builds the picker over commits, which are expected newest first
// as git log emits them.
func NewPicker(commits []git.Commit) *Picker {
	p := &Picker{
		app:      tview.NewApplication(),
		List:     tview.NewList().ShowSecondaryText(false),
		commits:  commits,
		selected: make(map[int]bool),
		useColor: colorSupportFn(),
	}

	p.List.SetBorder(true).SetTitle(" Select commits to yank (space: toggle, enter: confirm, q: cancel) ")
	for i := range commits {
		p.List.AddItem(p.itemText(i), "", 0, nil)
	}

	p.List.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyEnter:
			p.confirmed = true
			p.app.Stop()
			return nil
		case event.Key() == tcell.KeyEscape, event.Rune() == 'q':
			p.app.Stop()
			return nil
		case event.Rune() == ' ':
			p.Toggle(p.List.GetCurrentItem())
			return nil
		}
		return event
	})

	p.app.SetRoot(p.List, true)
	return p
}

// Toggle flips the selection state of the commit at index.
func (p *Picker) Toggle(index int) {
	if index < 0 || index >= len(p.commits) {
		return
	}
	p.selected[index] = !p.selected[index]
	p.List.SetItemText(index, p.itemText(index), "")
}

// Selection returns the chosen commit hashes oldest first, the order they
// should be replayed in.
func (p *Picker) Selection() []string {
	indexes := make([]int, 0, len(p.selected))
	for i, on := range p.selected {
		if on {
			indexes = append(indexes, i)
		}
	}
	// The list is newest first, so replay order is descending index.
	sort.Sort(sort.Reverse(sort.IntSlice(indexes)))

	hashes := make([]string, 0, len(indexes))
	for _, i := range indexes {
		hashes = append(hashes, p.commits[i].Hash)
	}
	return hashes
}

// Run launches the picker and watches for context cancellation.
func (p *Picker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.app.Run()
	}()

	select {
	case <-ctx.Done():
		p.app.Stop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// itemText renders one list row. Brackets would read as tview style tags,
// so the checkbox uses parentheses.
func (p *Picker) itemText(index int) string {
	mark := "( )"
	if p.selected[index] {
		mark = "(x)"
	}
	commit := p.commits[index]
	hash := commit.Hash
	if len(hash) > 7 {
		hash = hash[:7]
	}
	text := fmt.Sprintf("%s %s %s", mark, hash, tview.Escape(commit.Subject))
	if p.useColor && p.selected[index] {
		text = "[yellow]" + text + "[-]"
	}
	return text
}

// PickCommits shows the picker over the limit most recent commits and
// returns the confirmed selection oldest first.
func PickCommits(ctx context.Context, runner *git.Runner, limit int) ([]string, error) {
	if !isTerminalFn() {
		return nil, errors.New("interactive mode requires a terminal")
	}

	commits, err := recentCommitsFn(ctx, runner, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent commits: %w", err)
	}
	if len(commits) == 0 {
		return nil, errors.New("no commits to pick from")
	}

	picker := NewPicker(commits)
	if err := runPickerFn(ctx, picker); err != nil {
		return nil, err
	}
	if !picker.confirmed {
		return nil, ErrCancelled
	}

	selection := picker.Selection()
	if len(selection) == 0 {
		return nil, ErrCancelled
	}
	return selection, nil
}

func detectColorSupport() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	termEnv := strings.TrimSpace(os.Getenv("TERM"))
	if termEnv == "" || termEnv == "dumb" {
		return false
	}
	return true
}
