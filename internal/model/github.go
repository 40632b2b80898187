package model

import "time"

// records as returned by the hosting platform's REST API.
// only the fields consulted by the harvester are decoded.

type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
)

type RunConclusion string

const (
	ConclusionSuccess RunConclusion = "success"
	ConclusionFailure RunConclusion = "failure"
)

// the workflow whose runs produce SDK builds.
const BuildWorkflowName = "Build"

type Branch struct {
	Name string `json:"name"`
}

// a Release has many ReleaseAssets
type ReleaseAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// a repository release
type GithubRelease struct {
	Name        string         `json:"name"`
	HTMLURL     string         `json:"html_url"`
	PublishedAt string         `json:"published_at"`
	Assets      []ReleaseAsset `json:"assets"`
}

// a workflow run
type Run struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	Archived   bool          `json:"archived"`
	Status     RunStatus     `json:"status"`
	Conclusion RunConclusion `json:"conclusion"`
	HTMLURL    string        `json:"html_url"`
	UpdatedAt  string        `json:"updated_at"`
}

// IsSuccessfulBuild reports whether the run is a completed, successful,
// unarchived run of the build workflow.
func (r Run) IsSuccessfulBuild() bool {
	return !r.Archived &&
		r.Name == BuildWorkflowName &&
		r.Status == RunStatusCompleted &&
		r.Conclusion == ConclusionSuccess
}

// a file uploaded by a workflow run
type Artifact struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	SizeInBytes int64      `json:"size_in_bytes"`
	Expired     bool       `json:"expired"`
	ExpiresAt   *time.Time `json:"expires_at"`
}
