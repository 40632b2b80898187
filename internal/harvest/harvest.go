// Package harvest drives a complete run: release channels, then the builds of
// every release branch, persisting each document as it's produced.
package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github-sdk-build-catalogue/internal/branches"
	"github-sdk-build-catalogue/internal/builds"
	"github-sdk-build-catalogue/internal/model"
	"github-sdk-build-catalogue/internal/releases"
	"github-sdk-build-catalogue/internal/store"
)

type BranchSource interface {
	ListBranches(ctx context.Context, fn func([]model.Branch) error) error
}

type Harvester struct {
	Branches     BranchSource
	Classifier   *branches.Classifier
	Releases     *releases.Aggregator
	Synchronizer *builds.Synchronizer
	Store        *store.Store
}

type BranchSummary struct {
	Branch    string
	Builds    int
	Expired   int
	Unmatched int
	Fetched   int
}

type Summary struct {
	Releases map[model.Channel]int
	// release branches found upstream.
	NumBranches int
	// branches refreshed this run, in the order they were processed.
	BranchList []BranchSummary
	Elapsed    time.Duration
}

// NumFetched is the number of artifact lookups made across all branches.
func (s Summary) NumFetched() int {
	total := 0
	for _, b := range s.BranchList {
		total += b.Fetched
	}
	return total
}

// Run harvests releases then branch builds.
func (h *Harvester) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{}

	release_counts, err := h.HarvestReleases(ctx)
	if err != nil {
		return summary, err
	}
	summary.Releases = release_counts

	branch_summary, err := h.HarvestBuilds(ctx)
	summary.NumBranches = branch_summary.NumBranches
	summary.BranchList = branch_summary.BranchList
	summary.Elapsed = time.Since(start)
	return summary, err
}

// HarvestReleases writes the ga/rc/beta channel documents, returning the number of releases in each.
func (h *Harvester) HarvestReleases(ctx context.Context) (map[model.Channel]int, error) {
	slog.Info("getting releases")
	channels, err := h.Releases.Aggregate(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[model.Channel]int{}
	for _, channel := range model.ChannelList {
		release_list := channels[channel]
		slog.Info("releases", "channel", channel, "num", len(release_list))
		if err := h.Store.SaveChannel(channel, release_list); err != nil {
			return nil, err
		}
		counts[channel] = len(release_list)
	}
	return counts, nil
}

// ListBranches returns the name of every branch in the repository.
func (h *Harvester) ListBranches(ctx context.Context) ([]string, error) {
	name_list := []string{}
	err := h.Branches.ListBranches(ctx, func(page []model.Branch) error {
		for _, b := range page {
			name_list = append(name_list, b.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return name_list, nil
}

// HarvestBuilds refreshes the builds of every release branch and the branch counts document.
// legacy branches are only processed when there is no previous branch counts document,
// otherwise their last known counts are kept.
func (h *Harvester) HarvestBuilds(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{}

	slog.Info("getting branches")
	all_branches, err := h.ListBranches(ctx)
	if err != nil {
		return summary, err
	}

	counts, present, err := h.Store.LoadBranchCounts()
	if err != nil {
		return summary, err
	}
	// a first run must process everything
	worklist := h.Classifier.Worklist(all_branches, present)
	summary.NumBranches = len(h.Classifier.Filter(all_branches))
	slog.Info("found branches", "num", summary.NumBranches, "refreshing", len(worklist))

	for _, branch := range worklist {
		counts[branch] = 0
	}

	slog.Info("getting branch builds")
	for _, branch := range worklist {
		branch_summary, err := h.HarvestBranch(ctx, branch)
		if err != nil {
			return summary, err
		}
		counts[branch] = branch_summary.Builds
		summary.BranchList = append(summary.BranchList, branch_summary)
	}

	if err := h.Store.SaveBranchCounts(counts); err != nil {
		return summary, err
	}
	summary.Elapsed = time.Since(start)
	return summary, nil
}

// HarvestBranch syncs a single branch against its stored documents and writes the results.
func (h *Harvester) HarvestBranch(ctx context.Context, branch string) (BranchSummary, error) {
	existing := builds.Snapshot{}
	var err error
	if existing.Builds, err = h.Store.LoadBuilds(branch); err != nil {
		return BranchSummary{}, err
	}
	if existing.Expired, err = h.Store.LoadExpired(branch); err != nil {
		return BranchSummary{}, err
	}
	if existing.Unmatched, err = h.Store.LoadUnmatched(branch); err != nil {
		return BranchSummary{}, err
	}

	result, err := h.Synchronizer.Sync(ctx, branch, existing)
	if err != nil {
		return BranchSummary{}, err
	}

	slog.Info("found branch builds", "branch", branch, "builds", len(result.Builds), "expired", len(result.Expired), "unmatched", len(result.Unmatched))
	if err := h.Store.SaveBuilds(branch, result.Builds); err != nil {
		return BranchSummary{}, err
	}
	if err := h.Store.SaveExpired(branch, result.Expired); err != nil {
		return BranchSummary{}, err
	}
	if err := h.Store.SaveUnmatched(branch, result.Unmatched); err != nil {
		return BranchSummary{}, err
	}

	return BranchSummary{
		Branch:    branch,
		Builds:    len(result.Builds),
		Expired:   len(result.Expired),
		Unmatched: len(result.Unmatched),
		Fetched:   result.Fetched,
	}, nil
}
