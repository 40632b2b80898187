package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleasePattern(t *testing.T) {
	p := NewReleasePattern()
	cases := map[string]Match{
		"mobilesdk-9.3.1.GA-osx.zip":      {Name: "9.3.1.GA", Version: "9.3.1", Label: "GA", Platform: "osx"},
		"mobilesdk-10.0.0.RC2-win32.zip":  {Name: "10.0.0.RC2", Version: "10.0.0", Label: "RC", Platform: "win32"},
		"mobilesdk-9.0.0.Beta-linux.zip":  {Name: "9.0.0.Beta", Version: "9.0.0", Label: "Beta", Platform: "linux"},
		"mobilesdk-9.0.0.Beta3-linux.zip": {Name: "9.0.0.Beta3", Version: "9.0.0", Label: "Beta", Platform: "linux"},
	}
	for given, expected := range cases {
		actual, ok := p.Parse(given)
		assert.True(t, ok, given)
		assert.Equal(t, expected, actual, given)
	}
}

func TestArtifactPattern(t *testing.T) {
	p := NewArtifactPattern()
	actual, ok := p.Parse("mobilesdk-9.3.1.v20-linux")
	require.True(t, ok)
	assert.Equal(t, Match{Name: "9.3.1.v20", Version: "9.3.1", Platform: "linux"}, actual)
	assert.Empty(t, actual.Label)
}

func TestParse_no_match(t *testing.T) {
	cases := map[string]*Pattern{
		"":                                NewReleasePattern(),
		"mobilesdk-9.3.1.GA-osx":          NewReleasePattern(), // no '.zip'
		"mobilesdk-9.3.1.ga-osx.zip":      NewReleasePattern(), // labels are case sensitive
		"mobilesdk-9.3.GA-osx.zip":        NewReleasePattern(),
		"mobilesdk-9.3.1.v20-linux.zip":   NewArtifactPattern(),
		"mobilesdk-9.3.1.GA-osx.zip":      NewArtifactPattern(),
		"ti.playservices-9.3.1.v20-osx":   NewArtifactPattern(),
		"mobilesdk-9.3.1.v20-linux-extra": NewArtifactPattern(),
	}
	for given, p := range cases {
		actual, ok := p.Parse(given)
		assert.False(t, ok, given)
		assert.Equal(t, Match{}, actual, given)
	}
}

func TestNewPattern_missing_groups(t *testing.T) {
	_, err := NewPattern(`^mobilesdk-(?P<name>.+)$`)
	assert.Error(t, err)

	_, err = NewPattern(`^(unclosed`)
	assert.Error(t, err)
}
