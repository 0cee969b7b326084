// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/classify"
	"github.com/tanmi-dock/tanmidock/internal/registry"
	"github.com/tanmi-dock/tanmidock/internal/report"
	"github.com/tanmi-dock/tanmidock/internal/tderrors"
)

const statusShortHelp = `Report the status of a project's dependencies`
const statusLongHelp = `
With no arguments, reports the status of every dependency of the project
rooted at the current directory: LINKED, RELINK, REPLACE, ABSORB,
LINK_NEW, or MISSING (spec §4.9).
`

type statusCommand struct {
	all  bool
	tree bool
	json bool
}

func (cmd *statusCommand) Name() string      { return "status" }
func (cmd *statusCommand) Args() string      { return "[path]" }
func (cmd *statusCommand) ShortHelp() string { return statusShortHelp }
func (cmd *statusCommand) LongHelp() string  { return statusLongHelp }
func (cmd *statusCommand) Hidden() bool      { return false }

func (cmd *statusCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.all, "all", false, "include every registered project, not just the one at path")
	fs.BoolVar(&cmd.tree, "tree", false, "group output by classifier status")
	fs.BoolVar(&cmd.json, "json", false, "output in JSON format")
}

func (cmd *statusCommand) Run(e *env, args []string) error {
	if err := e.requireInitialized(); err != nil {
		return err
	}

	if cmd.all {
		for _, p := range e.reg.ListProjects() {
			if err := cmd.reportOne(e, p); err != nil {
				return err
			}
		}
		return nil
	}

	path, err := projectPathFrom(args)
	if err != nil {
		return err
	}
	proj, ok := e.reg.GetProjectByPath(path)
	if !ok {
		return tderrors.New(tderrors.KindUsageError, "no project registered at "+path+"; run `tanmidock link` first")
	}
	return cmd.reportOne(e, proj)
}

func (cmd *statusCommand) reportOne(e *env, proj *registry.Project) error {
	sr := &report.StatusReport{ProjectPath: proj.Path, Fingerprint: proj.Fingerprint}
	for _, dep := range proj.Dependencies {
		local := filepath.Join(proj.Path, dep.LinkedPath)
		ds, err := classify.Classify(e.st, local, dep.LibName, dep.Commit, proj.Platforms)
		if err != nil {
			return errors.Wrapf(err, "classifying %s", dep.LibName)
		}
		sr.Dependencies = append(sr.Dependencies, report.NewDependencyRow(ds))
	}

	switch {
	case cmd.json:
		return sr.WriteJSON(os.Stdout)
	case cmd.tree:
		return sr.WriteTree(os.Stdout)
	default:
		return sr.WriteTable(os.Stdout)
	}
}

func projectPathFrom(args []string) (string, error) {
	if len(args) > 1 {
		return "", wrapUsage("expected at most one path argument")
	}
	if len(args) == 1 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return "", errors.Wrap(err, "resolving project path")
		}
		return abs, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "getting working directory")
	}
	return wd, nil
}
