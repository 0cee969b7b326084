// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tanmi-dock/tanmidock/internal/platform"
	"github.com/tanmi-dock/tanmidock/internal/store"
)

func TestGetPathStatusMissing(t *testing.T) {
	dir := t.TempDir()
	status, err := GetPathStatus(filepath.Join(dir, "nope"), filepath.Join(dir, "target"))
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusMissing {
		t.Fatalf("expected StatusMissing, got %v", status)
	}
}

func TestGetPathStatusDirectory(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "local")
	if err := os.Mkdir(local, 0o755); err != nil {
		t.Fatal(err)
	}
	status, err := GetPathStatus(local, filepath.Join(dir, "target"))
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusDirectory {
		t.Fatalf("expected StatusDirectory, got %v", status)
	}
}

func TestGetPathStatusLinkedAndWrongLink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	other := filepath.Join(dir, "other")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(other, 0o755); err != nil {
		t.Fatal(err)
	}
	local := filepath.Join(dir, "local")
	if err := os.Symlink(target, local); err != nil {
		t.Fatal(err)
	}

	status, err := GetPathStatus(local, target)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusLinked {
		t.Fatalf("expected StatusLinked, got %v", status)
	}

	status, err = GetPathStatus(local, other)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusWrongLink {
		t.Fatalf("expected StatusWrongLink, got %v", status)
	}
}

func TestLinkLibrarySinglePlatform(t *testing.T) {
	dir := t.TempDir()
	s := store.New(filepath.Join(dir, "store"))
	if err := os.MkdirAll(s.GetPath("zlib", "abc", platform.MacOS), 0o755); err != nil {
		t.Fatal(err)
	}

	local := filepath.Join(dir, "project", "3rdparty", "zlib")
	if err := LinkLibrary(s, local, "zlib", "abc", []platform.Platform{platform.MacOS}); err != nil {
		t.Fatalf("LinkLibrary: %v", err)
	}

	sym, err := IsSymlink(local)
	if err != nil || !sym {
		t.Fatalf("expected local to be a symlink: sym=%v err=%v", sym, err)
	}
}

func TestLinkMultiPlatformAndRestore(t *testing.T) {
	dir := t.TempDir()
	s := store.New(filepath.Join(dir, "store"))
	mustWriteFile(t, filepath.Join(s.GetPath("zlib", "abc", platform.MacOS), "lib.a"), "mac-bin")
	mustWriteFile(t, filepath.Join(s.GetPath("zlib", "abc", platform.Win), "lib.lib"), "win-bin")
	mustWriteFile(t, filepath.Join(s.GetPath("zlib", "abc", platform.General), "README"), "doc")
	mustWriteFile(t, filepath.Join(s.GetPath("zlib", "abc", platform.General), ".git", "commit_hash"), "abc")

	local := filepath.Join(dir, "project", "3rdparty", "zlib")
	err := LinkMultiPlatform(s, local, "zlib", "abc", []platform.Platform{platform.MacOS, platform.Win})
	if err != nil {
		t.Fatalf("LinkMultiPlatform: %v", err)
	}

	macSym, err := IsSymlink(filepath.Join(local, string(platform.MacOS)))
	if err != nil || !macSym {
		t.Fatalf("expected macOS entry to be a symlink: %v %v", macSym, err)
	}
	gitSym, err := IsSymlink(filepath.Join(local, ".git"))
	if err != nil || !gitSym {
		t.Fatalf("expected .git to be a symlink: %v %v", gitSym, err)
	}
	if _, err := os.Stat(filepath.Join(local, "README")); err != nil {
		t.Fatalf("expected README copied into linked dir: %v", err)
	}

	if err := RestoreMultiPlatform(local); err != nil {
		t.Fatalf("RestoreMultiPlatform: %v", err)
	}
	macSym, _ = IsSymlink(filepath.Join(local, string(platform.MacOS)))
	if macSym {
		t.Fatalf("expected macOS entry to no longer be a symlink after restore")
	}
	if _, err := os.Stat(filepath.Join(local, string(platform.MacOS), "lib.a")); err != nil {
		t.Fatalf("expected restored copy to contain lib.a: %v", err)
	}
}

func TestReplaceWithLinkNoOpWhenAlreadyCorrect(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	local := filepath.Join(dir, "local")
	if err := os.Symlink(target, local); err != nil {
		t.Fatal(err)
	}

	backup, err := ReplaceWithLink(local, target, local+".backup")
	if err != nil {
		t.Fatalf("ReplaceWithLink: %v", err)
	}
	if backup != "" {
		t.Fatalf("expected no backup for an already-correct link, got %q", backup)
	}
}

func TestReplaceWithLinkBacksUpExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	local := filepath.Join(dir, "local")
	mustWriteFile(t, filepath.Join(local, "existing.txt"), "keep me")

	backup, err := ReplaceWithLink(local, target, local+".backup")
	if err != nil {
		t.Fatalf("ReplaceWithLink: %v", err)
	}
	if backup == "" {
		t.Fatalf("expected a backup path")
	}
	if _, err := os.Stat(filepath.Join(backup, "existing.txt")); err != nil {
		t.Fatalf("expected backup to retain original contents: %v", err)
	}
	sym, err := IsSymlink(local)
	if err != nil || !sym {
		t.Fatalf("expected local to now be a symlink: %v %v", sym, err)
	}
}

func mustWriteFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}
