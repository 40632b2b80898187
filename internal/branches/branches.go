// Package branches selects the release-relevant branches of a repository
// and orders them newest first.
package branches

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// "master", "12_1_X", "9_3_2"
const FilterPattern = `^(master|\d+_\d+_(\d+|[Xx]))$`

// major, minor, patch-or-X of an upper-cased branch name.
const VersionPattern = `^(\d+)_(\d+)_(\d+|X)$`

// Classifier decides which branches are worth harvesting and in what order.
type Classifier struct {
	filter  *regexp.Regexp
	version *regexp.Regexp
	// branches that will never see another build.
	legacy map[string]bool
}

func NewClassifier(legacy []string) *Classifier {
	legacy_idx := make(map[string]bool, len(legacy))
	for _, name := range legacy {
		legacy_idx[name] = true
	}
	return &Classifier{
		filter:  regexp.MustCompile(FilterPattern),
		version: regexp.MustCompile(VersionPattern),
		legacy:  legacy_idx,
	}
}

func (c *Classifier) IsReleaseBranch(name string) bool {
	return c.filter.MatchString(name)
}

func (c *Classifier) IsLegacy(name string) bool {
	return c.legacy[name]
}

// Filter returns just the release-relevant branches in `names`, order preserved.
func (c *Classifier) Filter(names []string) []string {
	kept := []string{}
	for _, name := range names {
		if c.IsReleaseBranch(name) {
			kept = append(kept, name)
		}
	}
	return kept
}

// Sort orders `names` in place, newest first.
func (c *Classifier) Sort(names []string) {
	col := collate.New(language.English)
	slices.SortStableFunc(names, func(a, b string) int {
		return c.compare(col, a, b)
	})
}

// Compare returns a negative number when branch `a` sorts before branch `b`.
func (c *Classifier) Compare(a, b string) int {
	return c.compare(collate.New(language.English), a, b)
}

func (c *Classifier) compare(col *collate.Collator, a, b string) int {
	am := c.version.FindStringSubmatch(strings.ToUpper(a))
	bm := c.version.FindStringSubmatch(strings.ToUpper(b))

	// non-version branches ("master") first
	switch {
	case am == nil && bm != nil:
		return -1
	case am != nil && bm == nil:
		return 1
	case am == nil && bm == nil:
		// only "master" passes the filter, other names reach here when
		// sorting an unfiltered list.
		return col.CompareString(a, b)
	}

	// major, minor
	for i := 1; i <= 2; i++ {
		if n := atoi(bm[i]) - atoi(am[i]); n != 0 {
			return n
		}
	}

	// patch. 'X' tracks every patch and so is newer than any single one.
	ap, bp := am[3], bm[3]
	switch {
	case ap == "X" && bp == "X":
		return 0
	case ap == "X":
		return -1
	case bp == "X":
		return 1
	}
	return atoi(bp) - atoi(ap)
}

// Worklist returns the sorted release branches that need refreshing.
// legacy branches are excluded when `skip_legacy` is true.
func (c *Classifier) Worklist(names []string, skip_legacy bool) []string {
	worklist := []string{}
	for _, name := range c.Filter(names) {
		if skip_legacy && c.IsLegacy(name) {
			continue
		}
		worklist = append(worklist, name)
	}
	c.Sort(worklist)
	return worklist
}

// branch version components are all digits, guaranteed by the pattern.
func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}
