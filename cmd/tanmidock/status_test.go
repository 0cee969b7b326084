// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tanmi-dock/tanmidock/internal/pathutil"
	"github.com/tanmi-dock/tanmidock/internal/platform"
	"github.com/tanmi-dock/tanmidock/internal/registry"
)

func TestStatusReportsLinkedDependency(t *testing.T) {
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
	if err := e.reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cmd := &statusCommand{json: true}
	if err := cmd.Run(e, []string{projectDir}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestStatusUnknownProjectFails(t *testing.T) {
	e, _ := newTestEnv(t)
	cmd := &statusCommand{}
	if err := cmd.Run(e, []string{t.TempDir()}); err == nil {
		t.Fatalf("expected error for unregistered project")
	}
}

func TestStatusAllIteratesEveryProject(t *testing.T) {
	e, _ := newTestEnv(t)
	for i := 0; i < 2; i++ {
		dir := t.TempDir()
		e.reg.AddProject(&registry.Project{Fingerprint: pathutil.HashPath(dir), Path: dir})
	}
	if err := e.reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cmd := &statusCommand{all: true, json: true}
	if err := cmd.Run(e, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
