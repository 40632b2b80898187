package releases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github-sdk-build-catalogue/internal/model"
	"github-sdk-build-catalogue/internal/parse"
)

type fake_releases struct {
	pages  [][]model.GithubRelease
	err    error
	// when each page was handed over
	served []time.Time
}

func (f *fake_releases) ListReleases(ctx context.Context, fn func([]model.GithubRelease) error) error {
	if f.err != nil {
		return f.err
	}
	for _, page := range f.pages {
		f.served = append(f.served, time.Now())
		if err := fn(page); err != nil {
			return err
		}
	}
	return nil
}

func release(name string, platforms ...string) model.GithubRelease {
	r := model.GithubRelease{
		Name:        name,
		HTMLURL:     "https://github.com/tidev/titanium-sdk/releases/tag/" + name,
		PublishedAt: "2024-01-01T00:00:00Z",
	}
	for _, platform := range platforms {
		filename := "mobilesdk-" + name + "-" + platform + ".zip"
		r.Assets = append(r.Assets, model.ReleaseAsset{
			Name:               filename,
			Size:               1000,
			BrowserDownloadURL: "https://github.com/tidev/titanium-sdk/releases/download/" + name + "/" + filename,
		})
	}
	return r
}

func versions(release_list []model.Release) []string {
	out := []string{}
	for _, r := range release_list {
		out = append(out, r.Version)
	}
	return out
}

func aggregator(pages ...[]model.GithubRelease) *Aggregator {
	return &Aggregator{
		Releases: &fake_releases{pages: pages},
		Pattern:  parse.NewReleasePattern(),
		Limiter:  rate.NewLimiter(rate.Inf, 0),
	}
}

func TestAggregate_groups_and_sorts(t *testing.T) {
	a := aggregator(
		[]model.GithubRelease{release("9.3.1.GA", "osx"), release("10.0.0.RC", "osx"), release("10.0.0.GA", "osx", "linux")},
		[]model.GithubRelease{release("9.3.0.GA", "win32"), release("11.0.0.Beta2", "osx"), release("10.0.0.Beta", "osx")},
	)

	channels, err := a.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0", "9.3.1", "9.3.0"}, versions(channels[model.ChannelGA]))
	assert.Equal(t, []string{"10.0.0"}, versions(channels[model.ChannelRC]))
	assert.Equal(t, []string{"11.0.0", "10.0.0"}, versions(channels[model.ChannelBeta]))

	ga := channels[model.ChannelGA][0]
	assert.Equal(t, "10.0.0.GA", ga.Name)
	assert.Equal(t, "https://github.com/tidev/titanium-sdk/releases/tag/10.0.0.GA", ga.URL)
	assert.Equal(t, "2024-01-01T00:00:00Z", ga.Date)
	assert.Equal(t, []model.Asset{
		{OS: "osx", Size: 1000, URL: "https://github.com/tidev/titanium-sdk/releases/download/10.0.0.GA/mobilesdk-10.0.0.GA-osx.zip"},
		{OS: "linux", Size: 1000, URL: "https://github.com/tidev/titanium-sdk/releases/download/10.0.0.GA/mobilesdk-10.0.0.GA-linux.zip"},
	}, ga.Assets)
}

func TestAggregate_empty_channels_are_present(t *testing.T) {
	channels, err := aggregator().Aggregate(context.Background())
	require.NoError(t, err)
	for _, ch := range model.ChannelList {
		assert.NotNil(t, channels[ch], ch)
		assert.Empty(t, channels[ch], ch)
	}
}

func TestAggregate_error(t *testing.T) {
	a := aggregator()
	a.Releases = &fake_releases{err: errors.New("boom")}
	_, err := a.Aggregate(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func TestConvert_excludes_unmatched_assets(t *testing.T) {
	a := aggregator()
	github_release := release("9.3.1.GA", "osx")
	github_release.Assets = append([]model.ReleaseAsset{{Name: "CHANGELOG.md", Size: 1}}, github_release.Assets...)
	github_release.Assets = append(github_release.Assets, model.ReleaseAsset{Name: "checksums.txt", Size: 2})

	r, label, ok := a.Convert(github_release)
	require.True(t, ok)
	assert.Equal(t, "GA", label)
	assert.Equal(t, "9.3.1.GA", r.Name)
	assert.Len(t, r.Assets, 1)
	assert.Equal(t, "osx", r.Assets[0].OS)
}

func TestConvert_no_matching_assets(t *testing.T) {
	a := aggregator()
	_, _, ok := a.Convert(model.GithubRelease{Assets: []model.ReleaseAsset{{Name: "source.tar.gz"}}})
	assert.False(t, ok)

	_, _, ok = a.Convert(model.GithubRelease{})
	assert.False(t, ok)
}

func TestCompareVersions(t *testing.T) {
	assert.Positive(t, CompareVersions("10.0.0", "9.3.1"))
	assert.Positive(t, CompareVersions("9.10.0", "9.9.0"))
	assert.Negative(t, CompareVersions("9.3.0", "9.3.1"))
	assert.Zero(t, CompareVersions("9.3.1", "9.3.1"))
	assert.Positive(t, CompareVersions("1.0.0", "not-a-version"))
	assert.Negative(t, CompareVersions("", "0.0.1"))
}

func TestSortReleases(t *testing.T) {
	release_list := []model.Release{{Version: "9.3.1"}, {Version: "10.0.0"}, {Version: "9.3.0"}, {Version: "9.10.2"}}
	SortReleases(release_list)
	assert.Equal(t, []string{"10.0.0", "9.10.2", "9.3.1", "9.3.0"}, versions(release_list))
}

func TestAggregate_paces_every_page(t *testing.T) {
	interval := 50 * time.Millisecond
	source := &fake_releases{pages: [][]model.GithubRelease{
		{release("10.0.0.GA", "osx")},
		{release("9.3.1.GA", "osx")},
		{release("9.3.0.GA", "osx")},
	}}
	a := &Aggregator{
		Releases: source,
		Pattern:  parse.NewReleasePattern(),
		Limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}

	channels, err := a.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Len(t, channels[model.ChannelGA], 3)

	require.Len(t, source.served, 3)
	for i := 1; i < len(source.served); i++ {
		gap := source.served[i].Sub(source.served[i-1])
		assert.GreaterOrEqual(t, gap, interval-5*time.Millisecond, "gap before page %d", i+1)
	}
}
