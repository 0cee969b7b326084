// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package integrity implements the Registry/Store consistency pass of spec
// §4.11: a single read-only check producing five defect categories, plus
// the repair actions each category supports.
package integrity

import (
	"github.com/tanmi-dock/tanmidock/internal/platform"
	"github.com/tanmi-dock/tanmidock/internal/registry"
)

// DanglingLink is a project dependency symlink whose target no longer
// exists.
type DanglingLink struct {
	ProjectFingerprint string
	ProjectPath        string
	Dependency         registry.DependencyRef
	LocalPath          string
}

// OrphanLibrary is a store slot with no matching StoreEntry in the
// Registry.
type OrphanLibrary struct {
	LibName  string
	Commit   string
	Platform platform.Platform
	Size     int64
}

// MissingLibrary is a declared dependency present neither locally (as a
// link or a real directory) nor in the Store.
type MissingLibrary struct {
	ProjectFingerprint string
	ProjectPath        string
	Dependency         registry.DependencyRef
}

// StaleReference is a StoreEntry.UsedBy entry that no longer reflects
// reality: either the project it names is gone, or that project no longer
// actually links to this (libName, commit, platform) slot via any
// dependency symlink.
type StaleReference struct {
	StoreKey           string
	LibName            string
	Commit             string
	Platform           platform.Platform
	ProjectFingerprint string
}

// Report is the full result of one Check pass.
type Report struct {
	InvalidProjects  []*registry.Project
	DanglingLinks    []DanglingLink
	OrphanLibraries  []OrphanLibrary
	MissingLibraries []MissingLibrary
	StaleReferences  []StaleReference
}

// Empty reports whether the pass found nothing to repair.
func (r *Report) Empty() bool {
	return len(r.InvalidProjects) == 0 &&
		len(r.DanglingLinks) == 0 &&
		len(r.OrphanLibraries) == 0 &&
		len(r.MissingLibraries) == 0 &&
		len(r.StaleReferences) == 0
}
