package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github-sdk-build-catalogue/internal/branches"
	"github-sdk-build-catalogue/internal/builds"
	"github-sdk-build-catalogue/internal/config"
	"github-sdk-build-catalogue/internal/github"
	"github-sdk-build-catalogue/internal/harvest"
	"github-sdk-build-catalogue/internal/httpcache"
	"github-sdk-build-catalogue/internal/model"
	"github-sdk-build-catalogue/internal/parse"
	"github-sdk-build-catalogue/internal/releases"
	"github-sdk-build-catalogue/internal/schema"
	"github-sdk-build-catalogue/internal/store"
)

const APP_NAME = "github-sdk-build-catalogue"

// command line flags, resolved into a `config.Config` by `resolve_config`.
type Flags struct {
	OutputDir           string
	Repo                string
	LogLevel            string
	ConfigFile          string
	EnvFile             string
	ReleasePageInterval time.Duration
	ArtifactInterval    time.Duration
	HTTPCache           bool
}

// builds the configuration from, in order of precedence:
// command line flags, environment variables, the config file and defaults.
// `changed` reports whether a flag was given on the command line.
func resolve_config(flags Flags, changed func(string) bool, getenv func(string) string) (config.Config, error) {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		if err := cfg.LoadFile(flags.ConfigFile); err != nil {
			return cfg, err
		}
	}

	cfg.Token = getenv("TOKEN")
	if cfg.Token == "" {
		cfg.Token = getenv("GITHUB_TOKEN")
	}
	if output_dir := getenv("OUTPUT_DIR"); output_dir != "" {
		cfg.OutputDir = output_dir
	}

	if changed("output-dir") {
		cfg.OutputDir = flags.OutputDir
	}
	if changed("repo") {
		cfg.Repo = flags.Repo
	}
	if changed("release-page-interval") {
		cfg.ReleasePageInterval = flags.ReleasePageInterval
	}
	if changed("artifact-interval") {
		cfg.ArtifactInterval = flags.ArtifactInterval
	}
	if flags.HTTPCache {
		cfg.HTTPCacheDir = filepath.Join(xdg.CacheHome, APP_NAME, "http")
	}
	cfg.LegacyBranches = unique(cfg.LegacyBranches)
	return cfg, nil
}

// a limiter allowing one request per `interval`, or unlimited when `interval` is zero.
func interval_limiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// wires a harvester together from the configuration.
func new_harvester(cfg config.Config) (*harvest.Harvester, error) {
	owner, repo := cfg.OwnerRepo()
	ensure(owner != "" && repo != "", "configuration was not validated")

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.HTTPCacheDir != "" {
		slog.Warn("HTTP responses are being cached, results may be stale", "cache-dir", cfg.HTTPCacheDir)
		caching_transport, err := httpcache.New(cfg.HTTPCacheDir, transport)
		if err != nil {
			return nil, err
		}
		transport = caching_transport
	}

	client, err := github.NewClient(github.Options{
		Owner:     owner,
		Repo:      repo,
		Token:     cfg.Token,
		Transport: transport,
	})
	if err != nil {
		return nil, err
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}
	output, err := store.New(cfg.OutputDir, validator)
	if err != nil {
		return nil, err
	}

	return &harvest.Harvester{
		Branches:   client,
		Classifier: branches.NewClassifier(cfg.LegacyBranches),
		Releases: &releases.Aggregator{
			Releases: client,
			Pattern:  parse.NewReleasePattern(),
			Limiter:  interval_limiter(cfg.ReleasePageInterval),
		},
		Synchronizer: &builds.Synchronizer{
			Runs:        client,
			Artifacts:   client,
			Pattern:     parse.NewArtifactPattern(),
			DownloadURL: builds.MirrorURL(cfg.MirrorURLTemplate()),
			Limiter:     interval_limiter(cfg.ArtifactInterval),
		},
		Store: output,
	}, nil
}

func print_summary(summary harvest.Summary) {
	for _, channel := range model.ChannelList {
		if n, present := summary.Releases[channel]; present {
			fmt.Printf("%d %s releases\n", n, channel)
		}
	}
	if summary.BranchList != nil || summary.NumBranches > 0 {
		fmt.Printf("found %d branches, %d needed refreshing\n", summary.NumBranches, len(summary.BranchList))
		for _, b := range summary.BranchList {
			fmt.Printf("found %d %s builds and %d expired branch builds (%d unmatched, %d fetched)\n",
				b.Builds, b.Branch, b.Expired, b.Unmatched, b.Fetched)
		}
	}
	fmt.Printf("completed successfully in %d seconds!\n", int(summary.Elapsed.Seconds()))
}

// flags shared by every command.
func add_flags(fs *pflag.FlagSet, flags *Flags) {
	fs.StringVar(&flags.OutputDir, "output-dir", "", "directory documents are read from and written to (env OUTPUT_DIR)")
	fs.StringVar(&flags.Repo, "repo", config.DefaultRepo, "repository in owner/repo format")
	fs.StringVar(&flags.LogLevel, "log-level", "info", "debug, info, warn or error")
	fs.StringVar(&flags.ConfigFile, "config", "", "YAML file overriding the repo, legacy branches and request intervals")
	fs.StringVar(&flags.EnvFile, "env-file", ".env", "file of environment variables loaded when present")
	fs.DurationVar(&flags.ReleasePageInterval, "release-page-interval", 2*time.Second, "minimum time between release page requests")
	fs.DurationVar(&flags.ArtifactInterval, "artifact-interval", 500*time.Millisecond, "minimum time between artifact list requests")
	fs.BoolVar(&flags.HTTPCache, "http-cache", false, "cache API responses on disk, for development only")
}

func new_root_command() *cobra.Command {
	flags := Flags{}
	var cfg config.Config

	// resolves configuration and installs the logger before any command runs.
	setup := func(cmd *cobra.Command, needs_api bool) error {
		level := slog.LevelInfo
		if err := level.UnmarshalText([]byte(flags.LogLevel)); err != nil {
			return fmt.Errorf("bad --log-level: %w", err)
		}
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level})))

		if path_exists(flags.EnvFile) {
			if err := godotenv.Load(flags.EnvFile); err != nil {
				return fmt.Errorf("failed to load env file: %w", err)
			}
			slog.Debug("loaded env file", "path", flags.EnvFile)
		}

		var err error
		cfg, err = resolve_config(flags, cmd.Flags().Changed, os.Getenv)
		if err != nil {
			return err
		}
		if needs_api {
			return cfg.Validate()
		}
		if cfg.OutputDir == "" {
			return fmt.Errorf("an output directory is required (use --output-dir or set OUTPUT_DIR)")
		}
		return nil
	}

	// runs `fn` against a freshly wired harvester and prints the summary.
	harvesting := func(fn func(context.Context, *harvest.Harvester) (harvest.Summary, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if err := setup(cmd, true); err != nil {
				return err
			}
			h, err := new_harvester(cfg)
			if err != nil {
				return err
			}
			start := time.Now()
			summary, err := fn(cmd.Context(), h)
			if err != nil {
				return err
			}
			summary.Elapsed = time.Since(start)
			print_summary(summary)
			return nil
		}
	}

	root := &cobra.Command{
		Use:   APP_NAME,
		Short: "Harvests SDK releases and CI builds from GitHub into JSON documents",
		Long: `Harvests a repository's SDK releases and per-branch CI builds into JSON documents:
ga.json, rc.json, beta.json, branches.json, <branch>.json, <branch>.expired.json
and <branch>.unmatched.json. Runs are incremental, builds already known are not looked up again.

The API token is read from TOKEN or GITHUB_TOKEN.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: harvesting(func(ctx context.Context, h *harvest.Harvester) (harvest.Summary, error) {
			return h.Run(ctx)
		}),
	}

	add_flags(root.PersistentFlags(), &flags)

	root.AddCommand(&cobra.Command{
		Use:   "harvest",
		Short: "Harvest release channels then branch builds, the default",
		Args:  cobra.NoArgs,
		RunE: harvesting(func(ctx context.Context, h *harvest.Harvester) (harvest.Summary, error) {
			return h.Run(ctx)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "releases",
		Short: "Harvest release channels only",
		Args:  cobra.NoArgs,
		RunE: harvesting(func(ctx context.Context, h *harvest.Harvester) (harvest.Summary, error) {
			counts, err := h.HarvestReleases(ctx)
			return harvest.Summary{Releases: counts}, err
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "builds",
		Short: "Harvest branch builds only",
		Args:  cobra.NoArgs,
		RunE: harvesting(func(ctx context.Context, h *harvest.Harvester) (harvest.Summary, error) {
			return h.HarvestBuilds(ctx)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate every document in the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setup(cmd, false); err != nil {
				return err
			}
			return validate_documents(cfg.OutputDir)
		},
	})

	return root
}

func validate_documents(output_dir string) error {
	validator, err := schema.NewValidator()
	if err != nil {
		return err
	}
	output, err := store.New(output_dir, nil)
	if err != nil {
		return err
	}
	name_list, err := output.Documents()
	if err != nil {
		return err
	}
	failures, err := output.ValidateAll(validator)
	if err != nil {
		return err
	}
	for _, name := range name_list {
		if err, failed := failures[name]; failed {
			slog.Error("invalid document", "document", name, "error", err)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d documents failed validation", len(failures), len(name_list))
	}
	fmt.Printf("%d documents valid\n", len(name_list))
	return nil
}

func main() {
	if err := new_root_command().ExecuteContext(context.Background()); err != nil {
		slog.Error("harvest failed", "error", err)
		die(true, "cannot continue")
	}
}
