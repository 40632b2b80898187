// Package parse extracts SDK names, versions and platforms from release
// asset and CI artifact filenames.
package parse

import (
	"fmt"
	"regexp"
)

// "mobilesdk-9.3.1.GA-osx.zip", "mobilesdk-10.0.0.RC2-win32.zip", "mobilesdk-9.0.0.Beta-linux.zip"
const ReleaseAssetPattern = `^mobilesdk-(?P<name>(?P<version>\d+\.\d+\.\d+)\.(?P<label>GA|RC|Beta)\d*)-(?P<platform>\w+)\.zip$`

// "mobilesdk-9.3.1.v20240101120000-linux"
const ArtifactPattern = `^mobilesdk-(?P<name>(?P<version>\d+\.\d+\.\d+)\.v\d+)-(?P<platform>\w+)$`

// what a filename tells us about the SDK inside it.
// `Label` is empty for patterns without a 'label' group.
type Match struct {
	Name     string
	Version  string
	Label    string
	Platform string
}

// Pattern is a compiled filename pattern with 'name', 'version' and
// 'platform' groups, and optionally a 'label' group.
type Pattern struct {
	re       *regexp.Regexp
	name     int
	version  int
	label    int
	platform int
}

func NewPattern(expr string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile filename pattern: %w", err)
	}
	p := &Pattern{
		re:       re,
		name:     re.SubexpIndex("name"),
		version:  re.SubexpIndex("version"),
		label:    re.SubexpIndex("label"),
		platform: re.SubexpIndex("platform"),
	}
	if p.name < 0 || p.version < 0 || p.platform < 0 {
		return nil, fmt.Errorf("filename pattern %q is missing a 'name', 'version' or 'platform' group", expr)
	}
	return p, nil
}

func MustPattern(expr string) *Pattern {
	p, err := NewPattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// pattern for published release assets.
func NewReleasePattern() *Pattern {
	return MustPattern(ReleaseAssetPattern)
}

// pattern for CI workflow run artifacts.
func NewArtifactPattern() *Pattern {
	return MustPattern(ArtifactPattern)
}

// Parse matches `filename` against the pattern.
// a filename that doesn't match is not an error, `ok` is simply false.
func (p *Pattern) Parse(filename string) (m Match, ok bool) {
	groups := p.re.FindStringSubmatch(filename)
	if groups == nil {
		return Match{}, false
	}
	m = Match{
		Name:     groups[p.name],
		Version:  groups[p.version],
		Platform: groups[p.platform],
	}
	if p.label > 0 {
		m.Label = groups[p.label]
	}
	return m, true
}

func (p *Pattern) String() string {
	return p.re.String()
}
