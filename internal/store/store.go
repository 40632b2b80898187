// Package store persists the harvester's documents as pretty-printed JSON
// files in a single output directory. each document is replaced atomically.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github-sdk-build-catalogue/internal/model"
	"github-sdk-build-catalogue/internal/schema"
)

const BranchesFile = "branches.json"

type Store struct {
	Dir       string
	validator *schema.Validator
}

// New returns a store writing to `dir`, creating it if necessary.
// documents are checked against `validator` before being written, when given.
func New(dir string, validator *schema.Validator) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Store{Dir: dir, validator: validator}, nil
}

func (s *Store) path(filename string) string {
	return filepath.Join(s.Dir, filename)
}

func check_branch(branch string) error {
	if branch == "" || strings.ContainsAny(branch, `/\`) || branch == "." || branch == ".." {
		return fmt.Errorf("branch name unusable as a filename: %q", branch)
	}
	return nil
}

// "12_1_X" => "12_1_X.json"
func BuildsFile(branch string) string {
	return branch + ".json"
}

// "12_1_X" => "12_1_X.expired.json"
func ExpiredFile(branch string) string {
	return branch + ".expired.json"
}

// "12_1_X" => "12_1_X.unmatched.json"
func UnmatchedFile(branch string) string {
	return branch + ".unmatched.json"
}

// model.ChannelGA => "ga.json"
func ChannelFile(channel model.Channel) string {
	return string(channel) + ".json"
}

// encodes `thing` as two-space indented JSON with a trailing newline.
func Encode(thing any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(thing); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// reads the document `filename` into `thing`.
// returns false without error when the document doesn't exist.
func (s *Store) read(filename string, thing any) (bool, error) {
	data, err := os.ReadFile(s.path(filename))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read '%s': %w", filename, err)
	}
	if err := json.Unmarshal(data, thing); err != nil {
		return false, fmt.Errorf("failed to parse '%s' as JSON: %w", filename, err)
	}
	return true, nil
}

// writes `thing` to the document `filename`, replacing it atomically.
func (s *Store) write(filename string, thing any) error {
	data, err := Encode(thing)
	if err != nil {
		return fmt.Errorf("failed to encode '%s': %w", filename, err)
	}
	if s.validator != nil {
		if err := s.validator.Validate(schema.KindOf(filename), data); err != nil {
			return fmt.Errorf("refusing to write '%s': %w", filename, err)
		}
	}

	fh, err := os.CreateTemp(s.Dir, "."+filename+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for '%s': %w", filename, err)
	}
	tmp := fh.Name()
	_, err = fh.Write(data)
	if err == nil {
		err = fh.Sync()
	}
	if close_err := fh.Close(); err == nil {
		err = close_err
	}
	if err == nil {
		err = os.Chmod(tmp, 0o644)
	}
	if err == nil {
		err = os.Rename(tmp, s.path(filename))
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write '%s': %w", filename, err)
	}
	slog.Debug("wrote document", "path", s.path(filename), "bytes", len(data))
	return nil
}

func (s *Store) LoadBuilds(branch string) ([]model.Build, error) {
	if err := check_branch(branch); err != nil {
		return nil, err
	}
	build_list := []model.Build{}
	if _, err := s.read(BuildsFile(branch), &build_list); err != nil {
		return nil, err
	}
	return build_list, nil
}

func (s *Store) SaveBuilds(branch string, build_list []model.Build) error {
	if err := check_branch(branch); err != nil {
		return err
	}
	return s.write(BuildsFile(branch), non_nil(build_list))
}

func (s *Store) LoadExpired(branch string) ([]model.ExpiredMarker, error) {
	return s.load_markers(branch, ExpiredFile(branch))
}

func (s *Store) SaveExpired(branch string, marker_list []model.ExpiredMarker) error {
	return s.save_markers(branch, ExpiredFile(branch), marker_list)
}

func (s *Store) LoadUnmatched(branch string) ([]model.UnmatchedMarker, error) {
	return s.load_markers(branch, UnmatchedFile(branch))
}

func (s *Store) SaveUnmatched(branch string, marker_list []model.UnmatchedMarker) error {
	return s.save_markers(branch, UnmatchedFile(branch), marker_list)
}

func (s *Store) load_markers(branch, filename string) ([]model.RunMarker, error) {
	if err := check_branch(branch); err != nil {
		return nil, err
	}
	marker_list := []model.RunMarker{}
	if _, err := s.read(filename, &marker_list); err != nil {
		return nil, err
	}
	return marker_list, nil
}

func (s *Store) save_markers(branch, filename string, marker_list []model.RunMarker) error {
	if err := check_branch(branch); err != nil {
		return err
	}
	return s.write(filename, non_nil(marker_list))
}

// LoadBranchCounts returns the branch counts document and whether it existed.
func (s *Store) LoadBranchCounts() (model.BranchCounts, bool, error) {
	counts := model.BranchCounts{}
	present, err := s.read(BranchesFile, &counts)
	if err != nil {
		return nil, false, err
	}
	if counts == nil {
		counts = model.BranchCounts{}
	}
	return counts, present, nil
}

func (s *Store) SaveBranchCounts(counts model.BranchCounts) error {
	if counts == nil {
		counts = model.BranchCounts{}
	}
	return s.write(BranchesFile, counts)
}

func (s *Store) LoadChannel(channel model.Channel) ([]model.Release, error) {
	release_list := []model.Release{}
	if _, err := s.read(ChannelFile(channel), &release_list); err != nil {
		return nil, err
	}
	return release_list, nil
}

func (s *Store) SaveChannel(channel model.Channel, release_list []model.Release) error {
	return s.write(ChannelFile(channel), non_nil(release_list))
}

// Documents returns the names of every document in the store, sorted.
func (s *Store) Documents() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list output dir: %w", err)
	}
	name_list := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		name_list = append(name_list, name)
	}
	slices.Sort(name_list)
	return name_list, nil
}

// ValidateAll checks every document in the store against its schema,
// returning a map of document name to validation error for those that fail.
func (s *Store) ValidateAll(validator *schema.Validator) (map[string]error, error) {
	name_list, err := s.Documents()
	if err != nil {
		return nil, err
	}
	failures := map[string]error{}
	for _, name := range name_list {
		data, err := os.ReadFile(s.path(name))
		if err != nil {
			failures[name] = err
			continue
		}
		if err := validator.Validate(schema.KindOf(name), data); err != nil {
			failures[name] = err
		}
	}
	return failures, nil
}

// empty lists are written as `[]`, never `null`.
func non_nil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
