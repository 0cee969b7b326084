// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import "testing"

func TestConfigGetReturnsStoredValue(t *testing.T) {
	e, _ := newTestEnv(t)
	cmd := &configCommand{}
	if err := cmd.Run(e, []string{"get", "concurrency"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestConfigSetPersistsValue(t *testing.T) {
	e, _ := newTestEnv(t)
	cmd := &configCommand{}
	if err := cmd.Run(e, []string{"set", "concurrency", "8"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	value, err := e.cfg.Get("concurrency")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value != "8" {
		t.Fatalf("expected concurrency=8, got %q", value)
	}
}

func TestConfigRejectsUnknownVerb(t *testing.T) {
	e, _ := newTestEnv(t)
	cmd := &configCommand{}
	if err := cmd.Run(e, []string{"frob", "concurrency"}); err == nil {
		t.Fatalf("expected error for unknown verb")
	}
}

func TestConfigPrintAllSucceeds(t *testing.T) {
	e, _ := newTestEnv(t)
	cmd := &configCommand{}
	if err := cmd.Run(e, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
