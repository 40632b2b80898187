// Package releases groups a repository's published SDK releases into GA, RC
// and Beta channels, newest version first.
package releases

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github-sdk-build-catalogue/internal/model"
	"github-sdk-build-catalogue/internal/parse"
)

type ReleaseSource interface {
	ListReleases(ctx context.Context, fn func([]model.GithubRelease) error) error
}

type Aggregator struct {
	Releases ReleaseSource
	// matches SDK release asset names, see `parse.NewReleasePattern`.
	Pattern *parse.Pattern
	// paces page fetches. nil for no pacing.
	Limiter *rate.Limiter
}

// Aggregate walks every release and returns them grouped by channel.
// releases are recomputed in full on every call.
func (a *Aggregator) Aggregate(ctx context.Context) (model.Channels, error) {
	channels := model.NewChannels()
	lower := cases.Lower(language.Und)
	if a.Limiter != nil {
		// the first page is requested now, spending the limiter's initial token
		a.Limiter.Allow()
	}

	err := a.Releases.ListReleases(ctx, func(release_list []model.GithubRelease) error {
		slog.Info("received releases", "num", len(release_list))
		for _, github_release := range release_list {
			release, label, ok := a.Convert(github_release)
			if !ok {
				slog.Debug("no SDK assets found in release, skipping", "release", github_release.Name, "url", github_release.HTMLURL)
				continue
			}
			channel := model.Channel(lower.String(label))
			if _, known := channels[channel]; !known {
				slog.Warn("unknown release channel, skipping", "channel", channel, "release", release.Name)
				continue
			}
			channels[channel] = append(channels[channel], release)
		}
		if a.Limiter != nil {
			return a.Limiter.Wait(ctx)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate releases: %w", err)
	}

	for _, release_list := range channels {
		SortReleases(release_list)
	}
	return channels, nil
}

// Convert derives a release from a published GitHub release.
// the first matching asset names the release, every matching asset is included.
// `ok` is false when no asset matches.
func (a *Aggregator) Convert(github_release model.GithubRelease) (release model.Release, label string, ok bool) {
	assets := []model.Asset{}
	var first *parse.Match
	for _, github_asset := range github_release.Assets {
		m, matched := a.Pattern.Parse(github_asset.Name)
		if !matched {
			continue
		}
		if first == nil {
			first = &m
		}
		assets = append(assets, model.Asset{
			OS:   m.Platform,
			Size: github_asset.Size,
			URL:  github_asset.BrowserDownloadURL,
		})
	}
	if first == nil {
		return model.Release{}, "", false
	}
	return model.Release{
		Name:    first.Name,
		Version: first.Version,
		Date:    github_release.PublishedAt,
		URL:     github_release.HTMLURL,
		Assets:  assets,
	}, first.Label, true
}

// SortReleases orders `release_list` in place by descending semantic version.
func SortReleases(release_list []model.Release) {
	slices.SortStableFunc(release_list, func(a, b model.Release) int {
		return CompareVersions(b.Version, a.Version)
	})
}

// CompareVersions compares semantic versions `a` and `b` by precedence.
// unparseable versions sort below valid ones, and amongst themselves by string.
func CompareVersions(a, b string) int {
	av, a_err := semver.StrictNewVersion(a)
	bv, b_err := semver.StrictNewVersion(b)
	switch {
	case a_err == nil && b_err == nil:
		return av.Compare(bv)
	case a_err == nil:
		return 1
	case b_err == nil:
		return -1
	}
	return strings.Compare(a, b)
}
