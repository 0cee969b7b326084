// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tanmi-dock/tanmidock/internal/dlog"
)

func TestInitCreatesHomeAndStore(t *testing.T) {
	home := filepath.Join(t.TempDir(), "tanmi-dock")
	e := newEnv(home, dlog.Default())

	cmd := &initCommand{}
	if err := cmd.Run(e, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(home, "config.json")); err != nil {
		t.Fatalf("expected config.json: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "registry.json")); err != nil {
		t.Fatalf("expected registry.json: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "store")); err != nil {
		t.Fatalf("expected store directory: %v", err)
	}
}

func TestInitHonorsCustomStorePath(t *testing.T) {
	home := filepath.Join(t.TempDir(), "tanmi-dock")
	storePath := filepath.Join(t.TempDir(), "elsewhere")
	e := newEnv(home, dlog.Default())

	cmd := &initCommand{storePath: storePath}
	if err := cmd.Run(e, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(storePath); err != nil {
		t.Fatalf("expected custom store path to be created: %v", err)
	}
}

func TestInitRejectsPositionalArgs(t *testing.T) {
	e := newEnv(t.TempDir(), dlog.Default())
	cmd := &initCommand{}
	if err := cmd.Run(e, []string{"unexpected"}); err == nil {
		t.Fatalf("expected error for positional arguments")
	}
}
