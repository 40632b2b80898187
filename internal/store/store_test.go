package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-sdk-build-catalogue/internal/model"
	"github-sdk-build-catalogue/internal/schema"
)

func new_store(t *testing.T) *Store {
	t.Helper()
	validator, err := schema.NewValidator()
	require.NoError(t, err)
	s, err := New(filepath.Join(t.TempDir(), "output"), validator)
	require.NoError(t, err)
	return s
}

func TestMissingDocumentsAreEmpty(t *testing.T) {
	s := new_store(t)

	build_list, err := s.LoadBuilds("master")
	require.NoError(t, err)
	assert.Equal(t, []model.Build{}, build_list)

	expired, err := s.LoadExpired("master")
	require.NoError(t, err)
	assert.Equal(t, []model.ExpiredMarker{}, expired)

	unmatched, err := s.LoadUnmatched("master")
	require.NoError(t, err)
	assert.Equal(t, []model.UnmatchedMarker{}, unmatched)

	counts, present, err := s.LoadBranchCounts()
	require.NoError(t, err)
	assert.False(t, present)
	assert.Equal(t, model.BranchCounts{}, counts)
}

func TestBuildsRoundTrip(t *testing.T) {
	s := new_store(t)
	expires := "2024-04-01T00:00:00.000Z"
	build_list := []model.Build{
		{Name: "12.1.0.v1", Version: "12.1.0", Date: "2024-03-01T00:00:00Z", Expires: &expires, URL: "https://github.com/a?b&c",
			Assets: []model.Asset{{OS: "linux", Size: 10, URL: "https://nightly.link/a/b.zip"}}},
		{Name: "12.1.0.v0", Version: "12.1.0", Date: "2024-02-01T00:00:00Z", URL: "https://github.com/b",
			Assets: []model.Asset{{OS: "osx", Size: 11, URL: "https://nightly.link/c/d.zip"}}},
	}
	require.NoError(t, s.SaveBuilds("12_1_X", build_list))

	loaded, err := s.LoadBuilds("12_1_X")
	require.NoError(t, err)
	assert.Equal(t, build_list, loaded)

	data, err := os.ReadFile(filepath.Join(s.Dir, "12_1_X.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"name\": \"12.1.0.v1\",")
	assert.Contains(t, string(data), `"url": "https://github.com/a?b&c"`)
	assert.Contains(t, string(data), `"expires": null`)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestEmptyListsAreWrittenAsArrays(t *testing.T) {
	s := new_store(t)
	require.NoError(t, s.SaveExpired("master", nil))
	require.NoError(t, s.SaveChannel(model.ChannelRC, nil))

	for _, name := range []string{"master.expired.json", "rc.json"} {
		data, err := os.ReadFile(filepath.Join(s.Dir, name))
		require.NoError(t, err)
		assert.Equal(t, "[]\n", string(data), name)
	}
}

func TestBranchCounts(t *testing.T) {
	s := new_store(t)
	require.NoError(t, s.SaveBranchCounts(model.BranchCounts{"master": 3, "12_1_X": 0}))

	counts, present, err := s.LoadBranchCounts()
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, model.BranchCounts{"master": 3, "12_1_X": 0}, counts)
}

func TestInvalidDocumentsAreNotWritten(t *testing.T) {
	s := new_store(t)
	require.NoError(t, s.SaveChannel(model.ChannelGA, []model.Release{
		{Name: "9.3.1.GA", Version: "9.3.1", Assets: []model.Asset{{OS: "osx", URL: "u"}}},
	}))

	err := s.SaveChannel(model.ChannelGA, []model.Release{{Name: "broken", Version: "not-semver"}})
	assert.Error(t, err)

	// previous document untouched, no temporary files left behind
	release_list, err := s.LoadChannel(model.ChannelGA)
	require.NoError(t, err)
	assert.Equal(t, "9.3.1.GA", release_list[0].Name)

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBadBranchNames(t *testing.T) {
	s := new_store(t)
	for _, branch := range []string{"", ".", "..", "feature/foo", `a\b`} {
		assert.Error(t, s.SaveBuilds(branch, nil), branch)
		_, err := s.LoadExpired(branch)
		assert.Error(t, err, branch)
	}
}

func TestMalformedDocument(t *testing.T) {
	s := new_store(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "master.json"), []byte("{oops"), 0o644))
	_, err := s.LoadBuilds("master")
	assert.Error(t, err)
}

func TestValidateAll(t *testing.T) {
	s := new_store(t)
	require.NoError(t, s.SaveBranchCounts(model.BranchCounts{"master": 0}))
	require.NoError(t, s.SaveBuilds("master", nil))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "9_0_X.json"), []byte(`[{"name": "x"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "notes.txt"), []byte(`hi`), 0o644))

	name_list, err := s.Documents()
	require.NoError(t, err)
	assert.Equal(t, []string{"9_0_X.json", "branches.json", "master.json"}, name_list)

	validator, err := schema.NewValidator()
	require.NoError(t, err)
	failures, err := s.ValidateAll(validator)
	require.NoError(t, err)
	assert.Len(t, failures, 1)
	assert.Contains(t, failures, "9_0_X.json")
}
