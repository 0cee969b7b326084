// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package integrity

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/registry"
)

// OrphanDisposition is the user's choice for one OrphanLibrary (spec
// §4.11: "prune" deletes it, "register" adopts it back into the Registry).
type OrphanDisposition int

const (
	OrphanPrune OrphanDisposition = iota
	OrphanRegister
)

// RepairInvalidProject removes a project the user confirmed is gone for
// good.
func (c *Checker) RepairInvalidProject(p *registry.Project) {
	c.Registry.RemoveProject(p.Fingerprint)
}

// RepairDanglingLink removes the dead symlink and drops the matching
// DependencyRef from its project.
func (c *Checker) RepairDanglingLink(dl DanglingLink) error {
	if err := os.Remove(dl.LocalPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing dangling link %s", dl.LocalPath)
	}
	c.Registry.UpdateProject(dl.ProjectFingerprint, func(p *registry.Project) {
		p.Dependencies = removeDependency(p.Dependencies, dl.Dependency)
	})
	return nil
}

func removeDependency(deps []registry.DependencyRef, target registry.DependencyRef) []registry.DependencyRef {
	out := make([]registry.DependencyRef, 0, len(deps))
	for _, d := range deps {
		if d == target {
			continue
		}
		out = append(out, d)
	}
	return out
}

// RepairOrphanLibrary disposes of an orphan per the caller's choice: prune
// removes it from disk outright, register adopts it into the Registry as a
// Library (if not already present) plus one StoreEntry for the orphan's
// platform slot, sized from the filesystem.
func (c *Checker) RepairOrphanLibrary(o OrphanLibrary, disposition OrphanDisposition) error {
	if disposition == OrphanPrune {
		return errors.Wrap(c.Store.Remove(o.LibName, o.Commit, o.Platform), "pruning orphan library")
	}
	return c.registerOrphan(o)
}

func (c *Checker) registerOrphan(o OrphanLibrary) error {
	now := time.Now()

	if _, ok := c.Registry.GetLibrary(o.LibName, o.Commit); !ok {
		c.Registry.AddLibrary(&registry.Library{
			LibName: o.LibName, Commit: o.Commit,
			CreatedAt: now, LastAccess: now,
		})
	}

	key := registry.StoreKey(o.LibName, o.Commit, o.Platform)
	if _, ok := c.Registry.GetStore(key); ok {
		return nil
	}

	size, err := c.Store.GetSize(o.LibName, o.Commit, o.Platform)
	if err != nil {
		return errors.Wrapf(err, "measuring orphan library %s:%s:%s", o.LibName, o.Commit, o.Platform)
	}

	c.Registry.AddStore(&registry.StoreEntry{
		LibName: o.LibName, Commit: o.Commit, Platform: o.Platform,
		Size: size, CreatedAt: now, LastAccess: now,
	})
	return nil
}

// RepairStaleReference drops one stale usedBy entry from its StoreEntry.
func (c *Checker) RepairStaleReference(sr StaleReference) {
	c.Registry.RemoveStoreReference(sr.StoreKey, sr.ProjectFingerprint)
}

// RepairAll applies every repair this package can make unattended
// (invalid projects, dangling links, stale references) and disposes of
// orphan libraries per orphanChoice, which is consulted once per orphan.
// Missing libraries are never auto-repaired, per spec §4.11; the caller
// must re-run link.
func (c *Checker) RepairAll(report *Report, orphanChoice func(OrphanLibrary) OrphanDisposition) []error {
	var errs []error

	for _, p := range report.InvalidProjects {
		c.RepairInvalidProject(p)
	}
	for _, dl := range report.DanglingLinks {
		if err := c.RepairDanglingLink(dl); err != nil {
			errs = append(errs, err)
		}
	}
	for _, o := range report.OrphanLibraries {
		disposition := OrphanPrune
		if orphanChoice != nil {
			disposition = orphanChoice(o)
		}
		if err := c.RepairOrphanLibrary(o, disposition); err != nil {
			errs = append(errs, err)
		}
	}
	for _, sr := range report.StaleReferences {
		c.RepairStaleReference(sr)
	}

	return errs
}
