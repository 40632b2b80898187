// Package model holds the documents the harvester emits and the upstream
// records it reads them from.
package model

// one platform's package within a Build or Release.
type Asset struct {
	OS   string `json:"os"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Build is one successful CI run's downloadable SDK package for a branch.
type Build struct {
	Name    string  `json:"name"`    // "9.3.1.v20240101"
	Version string  `json:"version"` // "9.3.1"
	Date    string  `json:"date"`
	Expires *string `json:"expires"` // nil when no artifact declared an expiry
	URL     string  `json:"url"`
	Assets  []Asset `json:"assets"`
}

// RunMarker records a CI run that was inspected and needs no further
// artifact lookups.
type RunMarker struct {
	HTMLURL string `json:"html_url"`
	ID      int64  `json:"id"`
}

// the run's artifacts had already expired (or declared a past expiry) when it was first inspected.
type ExpiredMarker = RunMarker

// the run succeeded but none of its artifacts looked like an SDK package.
type UnmatchedMarker = RunMarker

// Release is a published GA, RC or Beta SDK.
type Release struct {
	Name    string  `json:"name"`
	Version string  `json:"version"`
	Date    string  `json:"date"`
	URL     string  `json:"url"`
	Assets  []Asset `json:"assets"`
}

type Channel string

const (
	ChannelGA   Channel = "ga"
	ChannelRC   Channel = "rc"
	ChannelBeta Channel = "beta"
)

// order channels are reported and written in.
var ChannelList = []Channel{ChannelGA, ChannelRC, ChannelBeta}

// releases grouped by channel.
type Channels map[Channel][]Release

func NewChannels() Channels {
	c := Channels{}
	for _, ch := range ChannelList {
		c[ch] = []Release{}
	}
	return c
}

// branch name => number of currently known builds.
type BranchCounts map[string]int
