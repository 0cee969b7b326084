// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"

	"github.com/tanmi-dock/tanmidock/internal/config"
	"github.com/tanmi-dock/tanmidock/internal/dlog"
	"github.com/tanmi-dock/tanmidock/internal/lockfile"
	"github.com/tanmi-dock/tanmidock/internal/pathutil"
	"github.com/tanmi-dock/tanmidock/internal/registry"
	"github.com/tanmi-dock/tanmidock/internal/store"
)

// command is the dispatch interface every subcommand implements, kept
// verbatim from cmd/dep/main.go's shape.
type command interface {
	Name() string
	Args() string
	ShortHelp() string
	LongHelp() string
	Register(*flag.FlagSet)
	Hidden() bool
	Run(*env, []string) error
}

// env bundles the loaded installation state a command operates against,
// generalizing dep.Ctx to this domain.
type env struct {
	Home    string
	Log     *dlog.Logger
	Verbose bool

	cfg *config.Config
	reg *registry.Registry
	st  *store.Store
}

func newEnv(home string, log *dlog.Logger) *env {
	return &env{Home: home, Log: log}
}

// requireInitialized loads config.json and registry.json, failing with
// KindNotInitialized if config.json is absent (spec §6.2 exit code 10); a
// missing registry.json loads as an empty registry.
func (e *env) requireInitialized() error {
	cfg, err := config.Load(e.Home)
	if err != nil {
		return err
	}
	e.cfg = cfg

	storePath, err := pathutil.ExpandHome(cfg.StorePath)
	if err != nil {
		return err
	}
	e.st = store.New(storePath)

	reg := registry.New(e.Home)
	if err := reg.Load(); err != nil {
		return err
	}
	e.reg = reg
	return nil
}

// withLock acquires the global operation lock for the duration of fn (spec
// §4.3). Acquire itself distinguishes a genuinely held lock (KindLockHeld)
// from an I/O failure trying to take it, so that error is propagated as-is
// rather than being normalized here.
func (e *env) withLock(fn func() error) error {
	gl := lockfile.NewGlobal(e.Home)
	if err := gl.Acquire(); err != nil {
		return err
	}
	defer gl.Release()
	return fn()
}

// defaultHome resolves TANMI_DOCK_HOME (spec §6.3), falling back to
// ~/.tanmi-dock.
func defaultHome() (string, error) {
	return pathutil.DefaultHome()
}
