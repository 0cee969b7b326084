// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"testing"

	"github.com/tanmi-dock/tanmidock/internal/registry"
)

func TestCheckReportsInvalidProjectWithoutFix(t *testing.T) {
	e, _ := newTestEnv(t)
	e.reg.AddProject(&registry.Project{
		Fingerprint: "gone",
		Path:        filepath.Join(t.TempDir(), "does-not-exist"),
	})
	if err := e.reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cmd := &checkCommand{json: true}
	if err := cmd.Run(e, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := e.reg.GetProject("gone"); !ok {
		t.Fatalf("expected invalid project to remain without -fix")
	}
}

func TestCheckFixRemovesInvalidProject(t *testing.T) {
	e, _ := newTestEnv(t)
	e.reg.AddProject(&registry.Project{
		Fingerprint: "gone",
		Path:        filepath.Join(t.TempDir(), "does-not-exist"),
	})
	if err := e.reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cmd := &checkCommand{fix: true, force: true}
	if err := cmd.Run(e, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := e.reg.GetProject("gone"); ok {
		t.Fatalf("expected invalid project to be removed by -fix")
	}
}

func TestCheckRejectsPositionalArgs(t *testing.T) {
	e, _ := newTestEnv(t)
	cmd := &checkCommand{}
	if err := cmd.Run(e, []string{"unexpected"}); err == nil {
		t.Fatalf("expected error for positional arguments")
	}
}

func TestVerifyAliasesCheckReadOnly(t *testing.T) {
	e, _ := newTestEnv(t)
	e.reg.AddProject(&registry.Project{
		Fingerprint: "gone",
		Path:        filepath.Join(t.TempDir(), "does-not-exist"),
	})
	if err := e.reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cmd := &verifyCommand{}
	if err := cmd.Run(e, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := e.reg.GetProject("gone"); !ok {
		t.Fatalf("expected verify to leave the invalid project in place")
	}
}

func TestRepairAliasesCheckFix(t *testing.T) {
	e, _ := newTestEnv(t)
	e.reg.AddProject(&registry.Project{
		Fingerprint: "gone",
		Path:        filepath.Join(t.TempDir(), "does-not-exist"),
	})
	if err := e.reg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cmd := &repairCommand{force: true}
	if err := cmd.Run(e, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := e.reg.GetProject("gone"); ok {
		t.Fatalf("expected repair to remove the invalid project")
	}
}
