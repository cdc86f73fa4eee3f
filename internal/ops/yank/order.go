package yank

import (
	"context"
	"sort"

	"github.com/gityank/gityank/internal/git"
)

// orderNewestFirst sorts hashes so descendants come before ancestors on the
// given branch. Removal must run in this order: stripping an older commit
// first rewrites its descendants, and a later rebase keyed on a rewritten
// descendant would replay the very commits being removed. Hashes not found
// on the branch sort last, in their supplied order.
func orderNewestFirst(ctx context.Context, runner *git.Runner, branch string, hashes []string) ([]string, error) {
	order, err := runner.TopoOrder(ctx, branch)
	if err != nil {
		return nil, err
	}

	position := make(map[string]int, len(order))
	for i, hash := range order {
		position[hash] = i
	}

	sorted := append([]string(nil), hashes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, iKnown := position[sorted[i]]
		pj, jKnown := position[sorted[j]]
		if iKnown != jKnown {
			return iKnown
		}
		return pi < pj
	})
	return sorted, nil
}
