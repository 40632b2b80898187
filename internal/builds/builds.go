// Package builds keeps a branch's list of downloadable CI builds in step with
// its workflow runs, looking up artifacts only for runs it hasn't seen before.
package builds

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github-sdk-build-catalogue/internal/model"
	"github-sdk-build-catalogue/internal/parse"
)

// ISO-8601 with milliseconds, always UTC: "2024-04-01T00:00:00.000Z"
const ExpiresFormat = "2006-01-02T15:04:05.000Z07:00"

type RunSource interface {
	ListRuns(ctx context.Context, branch string, fn func([]model.Run) error) error
}

type ArtifactSource interface {
	ListArtifacts(ctx context.Context, run_id int64) ([]model.Artifact, error)
}

// Snapshot is everything known about a branch's runs.
type Snapshot struct {
	Builds    []model.Build
	Expired   []model.ExpiredMarker
	Unmatched []model.UnmatchedMarker
}

type Result struct {
	Snapshot
	// number of runs whose artifacts had to be looked up.
	Fetched int
}

type Synchronizer struct {
	Runs      RunSource
	Artifacts ArtifactSource
	// matches SDK artifact names, see `parse.NewArtifactPattern`.
	Pattern *parse.Pattern
	// returns the public download link for a run's artifact.
	DownloadURL func(run_id int64, artifact_name string) string
	// paces artifact lookups. nil for no pacing.
	Limiter *rate.Limiter
	// defaults to `time.Now`.
	Now func() time.Time
}

// "https://nightly.link/{owner}/{repo}/actions/runs/{run-id}/{artifact}.zip"
func MirrorURL(template string) func(int64, string) string {
	return func(run_id int64, artifact_name string) string {
		return strings.NewReplacer(
			"{run-id}", fmt.Sprint(run_id),
			"{artifact}", url.PathEscape(artifact_name),
		).Replace(template)
	}
}

func (s *Synchronizer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Sync walks every successful build run of `branch` and returns the complete,
// refreshed snapshot for it.
// runs already present in `existing` are carried over as they are, only
// unknown runs have their artifacts looked up. a run recorded as expired or
// unmatched is never looked up again.
func (s *Synchronizer) Sync(ctx context.Context, branch string, existing Snapshot) (Result, error) {
	builds_idx := make(map[string]model.Build, len(existing.Builds))
	for _, b := range existing.Builds {
		builds_idx[b.URL] = b
	}
	expired_idx := make(map[int64]model.ExpiredMarker, len(existing.Expired))
	for _, e := range existing.Expired {
		expired_idx[e.ID] = e
	}
	unmatched_idx := make(map[int64]model.UnmatchedMarker, len(existing.Unmatched))
	for _, u := range existing.Unmatched {
		unmatched_idx[u.ID] = u
	}

	result := Result{Snapshot: Snapshot{
		Builds:    []model.Build{},
		Expired:   []model.ExpiredMarker{},
		Unmatched: []model.UnmatchedMarker{},
	}}
	// runs can shift between pages while paginating
	seen := map[int64]bool{}
	now := s.now()

	err := s.Runs.ListRuns(ctx, branch, func(run_list []model.Run) error {
		slog.Info("received branch builds", "branch", branch, "num", len(run_list))
		for _, run := range run_list {
			if !run.IsSuccessfulBuild() || seen[run.ID] {
				continue
			}
			seen[run.ID] = true

			if build, present := builds_idx[run.HTMLURL]; present {
				slog.Debug("found branch build, skipping", "branch", branch, "build", build.Name)
				result.Builds = append(result.Builds, build)
				continue
			}
			if marker, present := expired_idx[run.ID]; present {
				slog.Debug("found expired branch build, skipping", "branch", branch, "run-id", marker.ID)
				result.Expired = append(result.Expired, marker)
				continue
			}
			if marker, present := unmatched_idx[run.ID]; present {
				slog.Debug("found unmatched branch build, skipping", "branch", branch, "run-id", marker.ID)
				result.Unmatched = append(result.Unmatched, marker)
				continue
			}

			if s.Limiter != nil {
				if err := s.Limiter.Wait(ctx); err != nil {
					return err
				}
			}
			slog.Info("fetching artifacts", "branch", branch, "run-id", run.ID)
			artifact_list, err := s.Artifacts.ListArtifacts(ctx, run.ID)
			if err != nil {
				return err
			}
			result.Fetched++

			build, kind := s.Classify(run, artifact_list, now)
			marker := model.RunMarker{HTMLURL: run.HTMLURL, ID: run.ID}
			switch kind {
			case KindBuild:
				result.Builds = append(result.Builds, build)
			case KindExpired:
				result.Expired = append(result.Expired, marker)
			case KindUnmatched:
				slog.Warn("no SDK artifacts found for run", "branch", branch, "run-id", run.ID)
				result.Unmatched = append(result.Unmatched, marker)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to sync builds for branch '%s': %w", branch, err)
	}
	return result, nil
}

type Kind int

const (
	// none of the run's artifacts look like an SDK package.
	KindUnmatched Kind = iota
	// the run's SDK packages can still be downloaded.
	KindBuild
	// the run's SDK packages can no longer be downloaded.
	KindExpired
)

func (k Kind) String() string {
	switch k {
	case KindBuild:
		return "build"
	case KindExpired:
		return "expired"
	}
	return "unmatched"
}

// Classify decides what a successful run's `artifact_list` amounts to at time `now`.
// the build is only meaningful when the returned kind is `KindBuild`.
func (s *Synchronizer) Classify(run model.Run, artifact_list []model.Artifact, now time.Time) (model.Build, Kind) {
	var first *parse.Match
	assets := []model.Asset{}
	var expires *time.Time
	expired := false

	for _, artifact := range artifact_list {
		m, ok := s.Pattern.Parse(artifact.Name)
		if !ok {
			continue
		}
		if first == nil {
			first = &m
		}
		expired = expired || artifact.Expired
		// artifacts without an expiry don't constrain it
		if artifact.ExpiresAt != nil && (expires == nil || artifact.ExpiresAt.Before(*expires)) {
			expires = artifact.ExpiresAt
		}
		assets = append(assets, model.Asset{
			OS:   m.Platform,
			Size: artifact.SizeInBytes,
			URL:  s.DownloadURL(run.ID, artifact.Name),
		})
	}

	if first == nil {
		return model.Build{}, KindUnmatched
	}
	if expired || (expires != nil && !expires.After(now)) {
		return model.Build{}, KindExpired
	}

	build := model.Build{
		Name:    first.Name,
		Version: first.Version,
		Date:    run.UpdatedAt,
		URL:     run.HTMLURL,
		Assets:  assets,
	}
	if expires != nil {
		formatted := expires.UTC().Format(ExpiresFormat)
		build.Expires = &formatted
	}
	return build, KindBuild
}
