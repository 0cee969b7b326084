// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package integrity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tanmi-dock/tanmidock/internal/platform"
	"github.com/tanmi-dock/tanmidock/internal/registry"
	"github.com/tanmi-dock/tanmidock/internal/store"
)

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("MkdirAll %s: %v", path, err)
	}
}

func newFixture(t *testing.T) (*registry.Registry, *store.Store, string) {
	t.Helper()
	r := registry.New(t.TempDir())
	if err := r.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := store.New(t.TempDir())
	return r, s, t.TempDir()
}

func TestCheckFindsInvalidProject(t *testing.T) {
	r, s, _ := newFixture(t)
	r.AddProject(&registry.Project{Path: filepath.Join(t.TempDir(), "does-not-exist")})

	report, err := New(r, s).Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(report.InvalidProjects) != 1 {
		t.Fatalf("expected 1 invalid project, got %d", len(report.InvalidProjects))
	}
}

func TestCheckFindsDanglingLink(t *testing.T) {
	r, s, _ := newFixture(t)
	projectPath := t.TempDir()
	mustMkdirAll(t, filepath.Join(projectPath, "3rdparty"))

	target := filepath.Join(t.TempDir(), "nowhere")
	local := filepath.Join(projectPath, "3rdparty", "zlib")
	if err := os.Symlink(target, local); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	r.AddProject(&registry.Project{
		Path: projectPath,
		Dependencies: []registry.DependencyRef{
			{LibName: "zlib", Commit: "abc", Platform: platform.MacOS},
		},
	})

	report, err := New(r, s).Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(report.DanglingLinks) != 1 {
		t.Fatalf("expected 1 dangling link, got %d", len(report.DanglingLinks))
	}
}

func TestCheckFindsMissingLibrary(t *testing.T) {
	r, s, _ := newFixture(t)
	projectPath := t.TempDir()
	mustMkdirAll(t, filepath.Join(projectPath, "3rdparty"))

	r.AddProject(&registry.Project{
		Path: projectPath,
		Dependencies: []registry.DependencyRef{
			{LibName: "zlib", Commit: "abc", Platform: platform.MacOS},
		},
	})

	report, err := New(r, s).Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(report.MissingLibraries) != 1 {
		t.Fatalf("expected 1 missing library, got %d", len(report.MissingLibraries))
	}
}

func TestCheckFindsOrphanLibrary(t *testing.T) {
	r, s, _ := newFixture(t)
	mustMkdirAll(t, s.GetPath("zlib", "abc", platform.MacOS))

	report, err := New(r, s).Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(report.OrphanLibraries) != 1 || report.OrphanLibraries[0].LibName != "zlib" {
		t.Fatalf("unexpected orphans: %+v", report.OrphanLibraries)
	}
}

func TestCheckFindsStaleReferenceForGoneProject(t *testing.T) {
	r, s, _ := newFixture(t)
	mustMkdirAll(t, s.GetPath("zlib", "abc", platform.MacOS))
	r.AddStore(&registry.StoreEntry{LibName: "zlib", Commit: "abc", Platform: platform.MacOS, UsedBy: []string{"ghost-fingerprint"}})

	report, err := New(r, s).Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(report.StaleReferences) != 1 {
		t.Fatalf("expected 1 stale reference, got %d", len(report.StaleReferences))
	}
	if len(report.OrphanLibraries) != 0 {
		t.Fatalf("expected no orphan since a StoreEntry exists, got %+v", report.OrphanLibraries)
	}
}

func TestCheckFindsStaleReferenceForProjectNotActuallyLinked(t *testing.T) {
	r, s, _ := newFixture(t)
	mustMkdirAll(t, s.GetPath("zlib", "abc", platform.MacOS))

	projectPath := t.TempDir()
	mustMkdirAll(t, filepath.Join(projectPath, "3rdparty"))
	// zlib dir is a plain directory here, not a link into the store.
	mustMkdirAll(t, filepath.Join(projectPath, "3rdparty", "zlib"))

	proj := &registry.Project{
		Path: projectPath,
		Dependencies: []registry.DependencyRef{
			{LibName: "zlib", Commit: "abc", Platform: platform.MacOS},
		},
	}
	r.AddProject(proj)
	r.AddStore(&registry.StoreEntry{LibName: "zlib", Commit: "abc", Platform: platform.MacOS, UsedBy: []string{proj.Fingerprint}})

	report, err := New(r, s).Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(report.StaleReferences) != 1 {
		t.Fatalf("expected 1 stale reference, got %d", len(report.StaleReferences))
	}
}

func TestCheckNoDefectsWhenEverythingConsistent(t *testing.T) {
	r, s, _ := newFixture(t)
	target := s.GetPath("zlib", "abc", platform.MacOS)
	mustMkdirAll(t, target)

	projectPath := t.TempDir()
	mustMkdirAll(t, filepath.Join(projectPath, "3rdparty"))
	local := filepath.Join(projectPath, "3rdparty", "zlib")
	if err := os.Symlink(target, local); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	proj := &registry.Project{
		Path: projectPath,
		Dependencies: []registry.DependencyRef{
			{LibName: "zlib", Commit: "abc", Platform: platform.MacOS},
		},
	}
	r.AddProject(proj)
	r.AddStore(&registry.StoreEntry{LibName: "zlib", Commit: "abc", Platform: platform.MacOS, UsedBy: []string{proj.Fingerprint}})

	report, err := New(r, s).Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !report.Empty() {
		t.Fatalf("expected no defects, got %+v", report)
	}
}

func TestRepairInvalidProjectRemovesIt(t *testing.T) {
	r, s, _ := newFixture(t)
	p := &registry.Project{Path: filepath.Join(t.TempDir(), "gone")}
	r.AddProject(p)

	c := New(r, s)
	c.RepairInvalidProject(p)

	if _, ok := r.GetProject(p.Fingerprint); ok {
		t.Fatalf("expected project to be removed")
	}
}

func TestRepairDanglingLinkRemovesLinkAndDependency(t *testing.T) {
	r, s, _ := newFixture(t)
	projectPath := t.TempDir()
	mustMkdirAll(t, filepath.Join(projectPath, "3rdparty"))
	local := filepath.Join(projectPath, "3rdparty", "zlib")
	if err := os.Symlink(filepath.Join(t.TempDir(), "nowhere"), local); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	dep := registry.DependencyRef{LibName: "zlib", Commit: "abc", Platform: platform.MacOS}
	proj := &registry.Project{Path: projectPath, Dependencies: []registry.DependencyRef{dep}}
	r.AddProject(proj)

	c := New(r, s)
	dl := DanglingLink{ProjectFingerprint: proj.Fingerprint, ProjectPath: projectPath, Dependency: dep, LocalPath: local}
	if err := c.RepairDanglingLink(dl); err != nil {
		t.Fatalf("RepairDanglingLink: %v", err)
	}

	if _, err := os.Lstat(local); !os.IsNotExist(err) {
		t.Fatalf("expected dangling symlink to be removed")
	}
	got, _ := r.GetProject(proj.Fingerprint)
	if len(got.Dependencies) != 0 {
		t.Fatalf("expected dependency to be dropped, got %+v", got.Dependencies)
	}
}

func TestRepairOrphanLibraryPrune(t *testing.T) {
	r, s, _ := newFixture(t)
	mustMkdirAll(t, s.GetPath("zlib", "abc", platform.MacOS))

	c := New(r, s)
	o := OrphanLibrary{LibName: "zlib", Commit: "abc", Platform: platform.MacOS}
	if err := c.RepairOrphanLibrary(o, OrphanPrune); err != nil {
		t.Fatalf("RepairOrphanLibrary: %v", err)
	}
	if s.Exists("zlib", "abc", platform.MacOS) {
		t.Fatalf("expected orphan to be pruned from disk")
	}
}

func TestRepairOrphanLibraryRegister(t *testing.T) {
	r, s, _ := newFixture(t)
	mustMkdirAll(t, s.GetPath("zlib", "abc", platform.MacOS))

	c := New(r, s)
	o := OrphanLibrary{LibName: "zlib", Commit: "abc", Platform: platform.MacOS}
	if err := c.RepairOrphanLibrary(o, OrphanRegister); err != nil {
		t.Fatalf("RepairOrphanLibrary: %v", err)
	}
	if _, ok := r.GetLibrary("zlib", "abc"); !ok {
		t.Fatalf("expected library to be registered")
	}
	if _, ok := r.GetStore(registry.StoreKey("zlib", "abc", platform.MacOS)); !ok {
		t.Fatalf("expected store entry to be registered")
	}
	if !s.Exists("zlib", "abc", platform.MacOS) {
		t.Fatalf("expected registered orphan to remain on disk")
	}
}

func TestRepairStaleReferenceDropsUsedBy(t *testing.T) {
	r, s, _ := newFixture(t)
	key := registry.StoreKey("zlib", "abc", platform.MacOS)
	r.AddStore(&registry.StoreEntry{LibName: "zlib", Commit: "abc", Platform: platform.MacOS, UsedBy: []string{"ghost"}})

	c := New(r, s)
	c.RepairStaleReference(StaleReference{StoreKey: key, ProjectFingerprint: "ghost"})

	entry, ok := r.GetStore(key)
	if !ok {
		t.Fatalf("expected store entry to still exist")
	}
	if len(entry.UsedBy) != 0 {
		t.Fatalf("expected usedBy cleared, got %v", entry.UsedBy)
	}
}
