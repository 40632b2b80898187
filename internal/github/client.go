// Package github is a small client for the parts of the GitHub REST API the
// harvester reads: branches, releases, workflow runs and run artifacts.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	ghAPI "github.com/cli/go-gh/v2/pkg/api"
)

var ErrNotFound = errors.New("not found")

const DefaultHost = "github.com"

type Options struct {
	Owner string
	Repo  string
	Token string
	// defaults to "github.com"
	Host string
	// when set, paths are resolved against this URL instead of the host's API root.
	BaseURL   string
	Transport http.RoundTripper
	// items per page, max 100.
	PerPage int
	// number of attempts made for each request before giving up.
	NumAttempts int
	// first wait after a failed attempt, doubled on each further failure up to `MaxBackoff`.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// used between attempts, replaceable in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Client struct {
	rest         *ghAPI.RESTClient
	owner        string
	repo         string
	base_url     string
	per_page     int
	num_attempts int
	backoff      time.Duration
	max_backoff  time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewClient(opts Options) (*Client, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, errors.New("owner and repo are required")
	}
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.PerPage <= 0 || opts.PerPage > 100 {
		opts.PerPage = 100
	}
	if opts.NumAttempts <= 0 {
		opts.NumAttempts = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 5 * time.Second
	}
	if opts.MaxBackoff < opts.Backoff {
		opts.MaxBackoff = 60 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	rest, err := ghAPI.NewRESTClient(ghAPI.ClientOptions{
		AuthToken: opts.Token,
		Host:      opts.Host,
		Transport: transport,
		Headers: map[string]string{
			"Accept":               "application/vnd.github+json",
			"X-GitHub-Api-Version": "2022-11-28",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	base_url := opts.BaseURL
	if base_url != "" && !strings.HasSuffix(base_url, "/") {
		base_url += "/"
	}

	return &Client{
		rest:         rest,
		owner:        opts.Owner,
		repo:         opts.Repo,
		base_url:     base_url,
		per_page:     opts.PerPage,
		num_attempts: opts.NumAttempts,
		backoff:      opts.Backoff,
		max_backoff:  opts.MaxBackoff,
		sleep:        opts.Sleep,
	}, nil
}

// "actions/runs" => "repos/tidev/titanium-sdk/actions/runs"
func (c *Client) repo_path(path string) string {
	return c.base_url + fmt.Sprintf("repos/%s/%s/%s", c.owner, c.repo, path)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// inspects an error response and determines if it was throttled.
func throttled(http_err *ghAPI.HTTPError) bool {
	if http_err.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if http_err.StatusCode != http.StatusForbidden {
		return false
	}
	// primary rate limit exhausted
	if http_err.Headers.Get("X-RateLimit-Remaining") == "0" {
		return true
	}
	// secondary rate limits leave the primary quota untouched
	return http_err.Headers.Get("Retry-After") != "" ||
		strings.Contains(strings.ToLower(http_err.Message), "rate limit")
}

// inspects an error response and determines how long to wait before the next attempt.
func (c *Client) wait_duration(attempt int, http_err *ghAPI.HTTPError) time.Duration {
	if http_err != nil {
		if secs, err := strconv.Atoi(http_err.Headers.Get("Retry-After")); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	d := c.backoff
	for i := 1; i < attempt && d < c.max_backoff; i++ {
		d *= 2
	}
	return min(d, c.max_backoff)
}

// fetches `path`, retrying throttled requests, server errors and transport
// errors with backoff. returns the response body and headers.
func (c *Client) get(ctx context.Context, path string) ([]byte, http.Header, error) {
	var last_err error
	for i := 1; i <= c.num_attempts; i++ {
		if i > 1 {
			slog.Debug("retrying request", "url", path, "attempt", i)
		}

		resp, err := c.rest.RequestWithContext(ctx, http.MethodGet, path, nil)
		if err == nil {
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read response body: %w", err)
			}
			return body, resp.Header, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		var http_err *ghAPI.HTTPError
		if errors.As(err, &http_err) {
			switch {
			case http_err.StatusCode == http.StatusNotFound:
				return nil, nil, fmt.Errorf("failed to fetch '%s': %w", path, ErrNotFound)
			case throttled(http_err):
				slog.Info("throttled", "url", path, "attempt", i)
			case http_err.StatusCode >= 500:
				slog.Info("unsuccessful response from github, waiting and trying again", "url", path, "response", http_err.StatusCode, "attempt", i)
			default:
				return nil, nil, fmt.Errorf("failed to fetch '%s': %w", path, err)
			}
		} else {
			http_err = nil
			slog.Info("error with transport, waiting and trying again", "url", path, "attempt", i, "error", err)
		}
		last_err = err

		if i == c.num_attempts {
			break
		}
		if err := c.sleep(ctx, c.wait_duration(i, http_err)); err != nil {
			return nil, nil, err
		}
	}

	slog.Error("failed to download url after a number of attempts", "url", path, "num-attempts", c.num_attempts)
	return nil, nil, fmt.Errorf("failed to fetch '%s' after %d attempts: %w", path, c.num_attempts, last_err)
}

var link_next_re = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// extracts the 'next' url from the `Link` header:
// Link: <https://api.github.com/repositories/1/releases?per_page=100&page=2>; rel="next", <...>; rel="last"
func next_page(header http.Header) string {
	for _, link := range header.Values("Link") {
		if m := link_next_re.FindStringSubmatch(link); m != nil {
			return m[1]
		}
	}
	return ""
}
