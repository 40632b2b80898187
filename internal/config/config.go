// Package config holds the harvester's settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultRepo = "tidev/titanium-sdk"

// "{owner}" and "{repo}" are filled from the repository, "{run-id}" and "{artifact}" per artifact.
const DefaultMirrorURL = "https://nightly.link/{owner}/{repo}/actions/runs/{run-id}/{artifact}.zip"

// the following branches will likely never see another build, so no sense
// making a ton of API calls for data that will never change.
var DefaultLegacyBranches = []string{
	"0_8_X", "0_9_0",
	"1_4_1", "1_4_X", "1_5_X", "1_6_X", "1_7_X", "1_8_X",
	"2_0_X", "2_1_X",
	"3_0_X", "3_1_X", "3_2_X", "3_3_X", "3_4_1", "3_4_X", "3_5_X",
	"4_0_X", "4_1_X",
	"5_0_X", "5_1_1", "5_1_X", "5_2_X", "5_3_X", "5_4_X", "5_5_X",
	"6_0_X", "6_1_X", "6_2_1", "6_2_X", "6_3_X",
	"7_0_X", "7_1_X", "7_2_X", "7_3_X", "7_4_X", "7_5_X",
	"8_0_X", "8_1_X", "8_2_X", "8_3_X",
	"9_0_X", "9_1_X", "9_2_X", "9_3_X",
	"10_0_X", "10_1_X",
	"11_0_X", "11_1_X",
}

type Config struct {
	Token     string `yaml:"-"`
	OutputDir string `yaml:"output-dir"`
	// "owner/repo"
	Repo           string   `yaml:"repo"`
	LegacyBranches []string `yaml:"legacy-branches"`
	MirrorURL      string   `yaml:"mirror-url"`
	// minimum time between release page requests.
	ReleasePageInterval time.Duration `yaml:"release-page-interval"`
	// minimum time between artifact list requests.
	ArtifactInterval time.Duration `yaml:"artifact-interval"`
	// directory HTTP responses are cached in, empty to disable.
	HTTPCacheDir string `yaml:"-"`
}

func Default() Config {
	return Config{
		Repo:                DefaultRepo,
		LegacyBranches:      append([]string{}, DefaultLegacyBranches...),
		MirrorURL:           DefaultMirrorURL,
		ReleasePageInterval: 2 * time.Second,
		ArtifactInterval:    500 * time.Millisecond,
	}
}

// LoadFile overlays the settings present in the YAML file at `path` onto `c`.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	return nil
}

// "tidev/titanium-sdk" => "tidev", "titanium-sdk"
func (c Config) OwnerRepo() (string, string) {
	owner, repo, _ := strings.Cut(c.Repo, "/")
	return owner, repo
}

// the mirror link template with the repository filled in.
func (c Config) MirrorURLTemplate() string {
	owner, repo := c.OwnerRepo()
	return strings.NewReplacer("{owner}", owner, "{repo}", repo).Replace(c.MirrorURL)
}

func (c Config) Validate() error {
	errs := []error{}
	if c.Token == "" {
		errs = append(errs, errors.New("an API token is required (set TOKEN or GITHUB_TOKEN)"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("an output directory is required (use --output-dir or set OUTPUT_DIR)"))
	}
	owner, repo := c.OwnerRepo()
	if owner == "" || repo == "" || strings.Contains(repo, "/") {
		errs = append(errs, fmt.Errorf("repo must be in owner/repo format: %q", c.Repo))
	}
	if !strings.Contains(c.MirrorURL, "{run-id}") || !strings.Contains(c.MirrorURL, "{artifact}") {
		errs = append(errs, fmt.Errorf("mirror-url must contain '{run-id}' and '{artifact}': %q", c.MirrorURL))
	}
	if c.ReleasePageInterval < 0 || c.ArtifactInterval < 0 {
		errs = append(errs, errors.New("request intervals cannot be negative"))
	}
	return errors.Join(errs...)
}
