// Package schema validates the documents the harvester writes.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schema_fs embed.FS

// resources are registered under this base so '$ref's between them resolve.
const schema_base = "https://github-sdk-build-catalogue/schemas/"

type Kind string

const (
	KindReleases Kind = "releases.json" // ga.json, rc.json, beta.json
	KindBuilds   Kind = "builds.json"   // <branch>.json
	KindMarkers  Kind = "markers.json"  // <branch>.expired.json, <branch>.unmatched.json
	KindBranches Kind = "branches.json" // branches.json
)

var KindList = []Kind{KindReleases, KindBuilds, KindMarkers, KindBranches}

type Validator struct {
	schemas map[Kind]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	entries, err := schema_fs.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded schemas: %w", err)
	}
	for _, entry := range entries {
		data, err := schema_fs.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded schema '%s': %w", entry.Name(), err)
		}
		if err := compiler.AddResource(schema_base+entry.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to add schema '%s': %w", entry.Name(), err)
		}
	}

	v := &Validator{schemas: map[Kind]*jsonschema.Schema{}}
	for _, kind := range KindList {
		s, err := compiler.Compile(schema_base + string(kind))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema '%s': %w", kind, err)
		}
		v.schemas[kind] = s
	}
	return v, nil
}

// Validate checks the JSON document `data` against the schema for `kind`.
func (v *Validator) Validate(kind Kind, data []byte) error {
	s, present := v.schemas[kind]
	if !present {
		return fmt.Errorf("unknown document kind: %s", kind)
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("failed to parse document as JSON: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("document failed %s validation: %w", kind, err)
	}
	return nil
}

// KindOf returns the kind of document stored in the file `filename`.
func KindOf(filename string) Kind {
	name := path.Base(filename)
	switch {
	case name == "branches.json":
		return KindBranches
	case name == "ga.json" || name == "rc.json" || name == "beta.json":
		return KindReleases
	case strings.HasSuffix(name, ".expired.json") || strings.HasSuffix(name, ".unmatched.json"):
		return KindMarkers
	}
	return KindBuilds
}
