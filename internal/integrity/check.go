// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package integrity

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/linker"
	"github.com/tanmi-dock/tanmidock/internal/platform"
	"github.com/tanmi-dock/tanmidock/internal/registry"
	"github.com/tanmi-dock/tanmidock/internal/store"
)

// Checker runs the integrity pass of spec §4.11 against one Registry/Store
// pair.
type Checker struct {
	Registry *registry.Registry
	Store    *store.Store
}

// New returns a Checker for r and s.
func New(r *registry.Registry, s *store.Store) *Checker {
	return &Checker{Registry: r, Store: s}
}

// Check performs a single read-only pass and returns every defect found.
func (c *Checker) Check() (*Report, error) {
	report := &Report{}

	valid := c.checkProjects(report)
	c.checkDependencies(valid, report)

	if err := c.checkOrphanLibraries(report); err != nil {
		return nil, err
	}
	c.checkStaleReferences(valid, report)

	return report, nil
}

// checkProjects partitions the registry's projects into valid (path still
// exists) and invalid, recording the latter in report.
func (c *Checker) checkProjects(report *Report) map[string]*registry.Project {
	valid := make(map[string]*registry.Project)
	for _, p := range c.Registry.ListProjects() {
		fi, err := os.Stat(p.Path)
		if err != nil || !fi.IsDir() {
			report.InvalidProjects = append(report.InvalidProjects, p)
			continue
		}
		valid[p.Fingerprint] = p
	}
	return valid
}

// checkDependencies walks every dependency of every valid project, finding
// dangling links and declared-but-unmaterialized libraries.
func (c *Checker) checkDependencies(valid map[string]*registry.Project, report *Report) {
	for _, p := range valid {
		for _, dep := range p.Dependencies {
			local := dependencyLocalPath(p, dep)

			sym, err := linker.IsSymlink(local)
			if err == nil && sym {
				if ok, _ := linker.IsValidLink(local); !ok {
					report.DanglingLinks = append(report.DanglingLinks, DanglingLink{
						ProjectFingerprint: p.Fingerprint,
						ProjectPath:        p.Path,
						Dependency:         dep,
						LocalPath:          local,
					})
					continue
				}
			}

			existsLocally := sym
			if !existsLocally {
				if fi, err := os.Stat(local); err == nil && fi.IsDir() {
					existsLocally = true
				}
			}

			storeHas := c.Store.Exists(dep.LibName, dep.Commit, dep.Platform) ||
				c.Store.Exists(dep.LibName, dep.Commit, platform.General)

			if !existsLocally && !storeHas {
				report.MissingLibraries = append(report.MissingLibraries, MissingLibrary{
					ProjectFingerprint: p.Fingerprint,
					ProjectPath:        p.Path,
					Dependency:         dep,
				})
			}
		}
	}
}

// checkOrphanLibraries finds every store slot on disk with no matching
// Registry StoreEntry.
func (c *Checker) checkOrphanLibraries(report *Report) error {
	libs, err := c.Store.ListLibraries()
	if err != nil {
		return errors.Wrap(err, "listing store for orphan scan")
	}

	for _, lc := range libs {
		for _, p := range lc.Platforms {
			c.addOrphanIfUntracked(report, lc.LibName, lc.Commit, p)
		}
		if lc.General {
			c.addOrphanIfUntracked(report, lc.LibName, lc.Commit, platform.General)
		}
	}
	return nil
}

func (c *Checker) addOrphanIfUntracked(report *Report, libName, commit string, p platform.Platform) {
	key := registry.StoreKey(libName, commit, p)
	if _, ok := c.Registry.GetStore(key); ok {
		return
	}
	size, _ := c.Store.GetSize(libName, commit, p)
	report.OrphanLibraries = append(report.OrphanLibraries, OrphanLibrary{
		LibName: libName, Commit: commit, Platform: p, Size: size,
	})
}

// checkStaleReferences finds every StoreEntry.UsedBy entry that no longer
// reflects reality.
func (c *Checker) checkStaleReferences(valid map[string]*registry.Project, report *Report) {
	for _, entry := range c.Registry.ListStores() {
		for _, fp := range entry.UsedBy {
			proj, ok := valid[fp]
			if !ok {
				report.StaleReferences = append(report.StaleReferences, StaleReference{
					StoreKey: entry.Key(), LibName: entry.LibName, Commit: entry.Commit,
					Platform: entry.Platform, ProjectFingerprint: fp,
				})
				continue
			}
			if !c.projectLinksTo(proj, entry.LibName, entry.Commit, entry.Platform) {
				report.StaleReferences = append(report.StaleReferences, StaleReference{
					StoreKey: entry.Key(), LibName: entry.LibName, Commit: entry.Commit,
					Platform: entry.Platform, ProjectFingerprint: fp,
				})
			}
		}
	}
}

// projectLinksTo reports whether any of proj's dependency symlinks actually
// resolve into the store slot for (libName, commit, p), covering both the
// single-symlink and materialized-multi-platform-tree layouts.
func (c *Checker) projectLinksTo(proj *registry.Project, libName, commit string, p platform.Platform) bool {
	target := c.Store.GetPath(libName, commit, p)
	for _, dep := range proj.Dependencies {
		if dep.LibName != libName || dep.Commit != commit {
			continue
		}
		local := dependencyLocalPath(proj, dep)
		if ok, _ := linker.IsCorrectLink(local, target); ok {
			return true
		}
		if ok, _ := linker.IsCorrectLink(filepath.Join(local, string(p)), target); ok {
			return true
		}
	}
	return false
}

// dependencyLocalPath resolves where a project's dependency link is
// expected to live on disk, per DependencyRef.LinkedPath (spec §3.1),
// falling back to the conventional "3rdparty/<libName>" when unset.
func dependencyLocalPath(p *registry.Project, dep registry.DependencyRef) string {
	rel := dep.LinkedPath
	if rel == "" {
		rel = filepath.Join("3rdparty", dep.LibName)
	}
	return filepath.Join(p.Path, rel)
}
