// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package manifest implements the codepac-dep.json parser of spec §4.8:
// decoding the manifest shape, resolving variable-referenced sparse
// checkout specs, parsing the nested-install action grammar, and
// discovering + merging optional sibling configs.
package manifest

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/tderrors"
)

// FileName is the primary manifest's expected base name.
const FileName = "codepac-dep.json"

// Repo is one entry in a manifest's repos.common list.
type Repo struct {
	URL    string          `json:"url"`
	Commit string          `json:"commit"`
	Branch string          `json:"branch,omitempty"`
	Dir    string          `json:"dir"`
	Sparse json.RawMessage `json:"sparse,omitempty"`
}

// LibName is the logical library name a Repo contributes, which is its
// checkout directory.
func (r Repo) LibName() string { return r.Dir }

// Action is one entry in a manifest's actions.common list.
type Action struct {
	Command string `json:"command"`
	Dir     string `json:"dir"`
}

// Manifest is the decoded shape of a codepac-dep.json file.
type Manifest struct {
	Version string            `json:"version"`
	Vars    map[string]string `json:"vars,omitempty"`
	Repos   struct {
		Common []Repo `json:"common"`
	} `json:"repos"`
	Actions struct {
		Common []Action `json:"common,omitempty"`
	} `json:"actions,omitempty"`

	path string
}

// Path returns the filesystem path the manifest was read from.
func (m *Manifest) Path() string { return m.path }

// Parse decodes r as a manifest. path is used only to annotate errors.
func Parse(r io.Reader, path string) (*Manifest, error) {
	m := &Manifest{path: path}
	if err := json.NewDecoder(r).Decode(m); err != nil {
		return nil, tderrors.ManifestInvalid(path, errors.Wrap(err, "decoding manifest").Error())
	}
	if len(m.Repos.Common) == 0 {
		return nil, tderrors.ManifestInvalid(path, "manifest declares no repos")
	}
	return m, nil
}

// ResolveSparse resolves one Repo's sparse field against vars. sparse may be
// a JSON object (returned unchanged) or a JSON string holding a
// "${NAME}"-style variable reference, which must resolve in vars.
func ResolveSparse(path string, sparse json.RawMessage, vars map[string]string) (json.RawMessage, error) {
	if len(sparse) == 0 {
		return nil, nil
	}

	var asString string
	if err := json.Unmarshal(sparse, &asString); err != nil {
		// Not a JSON string: treat as a literal object and pass through.
		return sparse, nil
	}

	name, ok := varRefName(asString)
	if !ok {
		return sparse, nil
	}

	resolved, ok := vars[name]
	if !ok {
		return nil, tderrors.ManifestInvalid(path, "sparse variable reference \"${"+name+"}\" has no matching var")
	}
	return json.RawMessage(resolved), nil
}

// varRefName reports whether s is a "${NAME}" reference, returning NAME.
func varRefName(s string) (string, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return "", false
	}
	return s[2 : len(s)-1], true
}
