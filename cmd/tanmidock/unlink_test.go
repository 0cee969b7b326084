// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tanmi-dock/tanmidock/internal/config"
	"github.com/tanmi-dock/tanmidock/internal/dlog"
	"github.com/tanmi-dock/tanmidock/internal/pathutil"
	"github.com/tanmi-dock/tanmidock/internal/platform"
	"github.com/tanmi-dock/tanmidock/internal/registry"
	"github.com/tanmi-dock/tanmidock/internal/txlog"
)

func newTestEnv(t *testing.T) (*env, string) {
	t.Helper()
	home := t.TempDir()
	cfg := config.Default(home)
	cfg.Initialized = true
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("MkdirAll home: %v", err)
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save config: %v", err)
	}

	reg := registry.New(home)
	if err := reg.Save(); err != nil {
		t.Fatalf("Save registry: %v", err)
	}

	e := newEnv(home, dlog.Default())
	if err := e.requireInitialized(); err != nil {
		t.Fatalf("requireInitialized: %v", err)
	}
	return e, home
}

func mustMkdirAllU(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("MkdirAll %s: %v", path, err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	mustMkdirAllU(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", path, err)
	}
}

func TestRestoreOneReversesSingleSymlink(t *testing.T) {
	storeTarget := t.TempDir()
	writeFile(t, filepath.Join(storeTarget, "zlib.h"), "int x;")

	projectDir := t.TempDir()
	local := filepath.Join(projectDir, "3rdparty", "zlib")
	mustMkdirAllU(t, filepath.Dir(local))
	if err := os.Symlink(storeTarget, local); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	home := t.TempDir()
	tx, err := txlog.Open(home, projectDir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := restoreOne(tx, local); err != nil {
		t.Fatalf("restoreOne: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	fi, err := os.Lstat(local)
	if err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		t.Fatalf("expected local to be a real directory, still a symlink")
	}
	if _, err := os.Stat(filepath.Join(local, "zlib.h")); err != nil {
		t.Fatalf("expected copied content: %v", err)
	}
}

func TestRestoreOneLeavesMissingPathAlone(t *testing.T) {
	home := t.TempDir()
	projectDir := t.TempDir()
	tx, err := txlog.Open(home, projectDir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := restoreOne(tx, filepath.Join(projectDir, "does-not-exist")); err != nil {
		t.Fatalf("expected nil error for missing path, got %v", err)
	}
}

func TestUnlinkRestoresDirectoryAndClearsProject(t *testing.T) {
	e, home := newTestEnv(t)

	storeTarget := e.st.GetPath("zlib", "abc123", platform.Win)
	mustMkdirAllU(t, storeTarget)
	writeFile(t, filepath.Join(storeTarget, "zlib.h"), "int x;")

	projectDir := t.TempDir()
	local := filepath.Join(projectDir, "3rdparty", "zlib")
	mustMkdirAllU(t, filepath.Dir(local))
	if err := os.Symlink(storeTarget, local); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	fp := pathutil.HashPath(projectDir)
	e.reg.AddProject(&registry.Project{
		Fingerprint: fp,
		Path:        projectDir,
		Platforms:   []platform.Platform{platform.Win},
		Dependencies: []registry.DependencyRef{
			{LibName: "zlib", Commit: "abc123", Platform: platform.Win, LinkedPath: "3rdparty/zlib"},
		},
	})
	key := registry.StoreKey("zlib", "abc123", platform.Win)
	e.reg.AddStore(&registry.StoreEntry{LibName: "zlib", Commit: "abc123", Platform: platform.Win, UsedBy: []string{fp}})
	if err := e.reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cmd := &unlinkCommand{}
	if err := cmd.Run(e, []string{projectDir}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sym, err := os.Lstat(local)
	if err != nil {
		t.Fatalf("Lstat local: %v", err)
	}
	if sym.Mode()&os.ModeSymlink != 0 {
		t.Fatalf("expected local to be a real directory after unlink")
	}
	if _, err := os.Stat(filepath.Join(local, "zlib.h")); err != nil {
		t.Fatalf("expected restored content, got: %v", err)
	}

	if _, ok := e.reg.GetProject(fp); ok {
		t.Fatalf("expected project to be removed from registry")
	}
	if entry, ok := e.reg.GetStore(key); !ok || len(entry.UsedBy) != 0 {
		t.Fatalf("expected store entry usedBy to be cleared, got %+v", entry)
	}

	_ = home
}

func TestUnlinkRemoveDeletesUnreferencedStoreEntry(t *testing.T) {
	e, _ := newTestEnv(t)

	storeTarget := e.st.GetPath("zlib", "abc123", platform.Win)
	mustMkdirAllU(t, storeTarget)
	writeFile(t, filepath.Join(storeTarget, "zlib.h"), "int x;")

	projectDir := t.TempDir()
	local := filepath.Join(projectDir, "3rdparty", "zlib")
	mustMkdirAllU(t, filepath.Dir(local))
	if err := os.Symlink(storeTarget, local); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	fp := pathutil.HashPath(projectDir)
	e.reg.AddProject(&registry.Project{
		Fingerprint: fp,
		Path:        projectDir,
		Platforms:   []platform.Platform{platform.Win},
		Dependencies: []registry.DependencyRef{
			{LibName: "zlib", Commit: "abc123", Platform: platform.Win, LinkedPath: "3rdparty/zlib"},
		},
	})
	e.reg.AddLibrary(&registry.Library{LibName: "zlib", Commit: "abc123"})
	key := registry.StoreKey("zlib", "abc123", platform.Win)
	e.reg.AddStore(&registry.StoreEntry{LibName: "zlib", Commit: "abc123", Platform: platform.Win, UsedBy: []string{fp}})
	if err := e.reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cmd := &unlinkCommand{remove: true}
	if err := cmd.Run(e, []string{projectDir}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := e.reg.GetStore(key); ok {
		t.Fatalf("expected store entry to be removed")
	}
	if e.st.Exists("zlib", "abc123", platform.Win) {
		t.Fatalf("expected store contents to be removed")
	}
	if _, ok := e.reg.GetLibrary("zlib", "abc123"); ok {
		t.Fatalf("expected library record to be removed")
	}
}

func TestUnlinkUnknownProjectFails(t *testing.T) {
	e, _ := newTestEnv(t)
	cmd := &unlinkCommand{}
	if err := cmd.Run(e, []string{t.TempDir()}); err == nil {
		t.Fatalf("expected error for unregistered project")
	}
}
