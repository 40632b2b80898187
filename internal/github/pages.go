package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github-sdk-build-catalogue/internal/model"
)

// walks every page of results starting at `path`, following the `Link`
// header, calling `fn` with each page's list of items.
// `envelope` is the field holding the items, or "" when the body is the list itself.
func (c *Client) paginate(ctx context.Context, path, envelope string, fn func(items []byte) error) error {
	page := 1
	for path != "" {
		body, header, err := c.get(ctx, path)
		if err != nil {
			return err
		}

		items := gjson.ParseBytes(body)
		if envelope != "" {
			total := items.Get("total_count")
			items = items.Get(envelope)
			if !items.Exists() {
				return fmt.Errorf("expected field '%s' not found in response to '%s', cannot paginate", envelope, path)
			}
			if total.Exists() {
				slog.Debug("page", "url", path, "page", page, "total", total.Int())
			}
		}
		if !items.IsArray() {
			return fmt.Errorf("expected a list of items in response to '%s'", path)
		}

		if err := fn([]byte(items.Raw)); err != nil {
			return err
		}
		path = next_page(header)
		page++
	}
	return nil
}

// decodes a page of items into `T` and hands them to `fn`.
func each_page[T any](fn func([]T) error) func([]byte) error {
	return func(raw []byte) error {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("failed to parse page of results as JSON: %w", err)
		}
		return fn(items)
	}
}

func (c *Client) list_path(path string, query url.Values) string {
	query.Set("per_page", strconv.Itoa(c.per_page))
	return c.repo_path(path) + "?" + query.Encode()
}

// ListBranches calls `fn` with each page of the repository's branches.
func (c *Client) ListBranches(ctx context.Context, fn func([]model.Branch) error) error {
	return c.paginate(ctx, c.list_path("branches", url.Values{}), "", each_page(fn))
}

// ListReleases calls `fn` with each page of the repository's releases, newest first.
func (c *Client) ListReleases(ctx context.Context, fn func([]model.GithubRelease) error) error {
	return c.paginate(ctx, c.list_path("releases", url.Values{}), "", each_page(fn))
}

// ListRuns calls `fn` with each page of successful workflow runs for `branch`.
func (c *Client) ListRuns(ctx context.Context, branch string, fn func([]model.Run) error) error {
	query := url.Values{}
	query.Set("branch", branch)
	query.Set("status", string(model.ConclusionSuccess))
	return c.paginate(ctx, c.list_path("actions/runs", query), "workflow_runs", each_page(fn))
}

// ListArtifacts returns every artifact uploaded by the workflow run `run_id`.
func (c *Client) ListArtifacts(ctx context.Context, run_id int64) ([]model.Artifact, error) {
	artifact_list := []model.Artifact{}
	path := c.list_path(fmt.Sprintf("actions/runs/%d/artifacts", run_id), url.Values{})
	err := c.paginate(ctx, path, "artifacts", each_page(func(page []model.Artifact) error {
		artifact_list = append(artifact_list, page...)
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts for run %d: %w", run_id, err)
	}
	return artifact_list, nil
}
