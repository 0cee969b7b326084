// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"os"

	"github.com/tanmi-dock/tanmidock/internal/integrity"
	"github.com/tanmi-dock/tanmidock/internal/report"
)

const checkShortHelp = `Find and optionally repair Registry/Store inconsistencies`
const checkLongHelp = `
check runs the integrity pass of spec §4.11: invalid projects, dangling
links, orphan store libraries, missing libraries, and stale references.
With -fix it repairs everything except missing libraries, which always
require a subsequent link to resolve.
`

type checkCommand struct {
	fix    bool
	dryRun bool
	prune  bool
	force  bool
	json   bool
}

func (cmd *checkCommand) Name() string      { return "check" }
func (cmd *checkCommand) Args() string      { return "" }
func (cmd *checkCommand) ShortHelp() string { return checkShortHelp }
func (cmd *checkCommand) LongHelp() string  { return checkLongHelp }
func (cmd *checkCommand) Hidden() bool      { return false }

func (cmd *checkCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.fix, "fix", false, "repair the defects found (union of legacy verify+repair)")
	fs.BoolVar(&cmd.dryRun, "dry-run", false, "report what -fix would do without changing anything")
	fs.BoolVar(&cmd.prune, "prune", false, "dispose of orphan libraries by deleting them instead of re-registering them")
	fs.BoolVar(&cmd.force, "force", false, "skip confirmation and proceed even for destructive repairs")
	fs.BoolVar(&cmd.json, "json", false, "output in JSON format")
}

func (cmd *checkCommand) Run(e *env, args []string) error {
	if err := e.requireInitialized(); err != nil {
		return err
	}
	if len(args) != 0 {
		return wrapUsage("check takes no positional arguments")
	}

	checker := integrity.New(e.reg, e.st)
	found, err := checker.Check()
	if err != nil {
		return err
	}
	cr := report.NewCheckReport(found)

	if cmd.json {
		if err := cr.WriteJSON(os.Stdout); err != nil {
			return err
		}
	} else if err := cr.WriteTree(os.Stdout); err != nil {
		return err
	}

	if len(found.MissingLibraries) > 0 {
		e.Log.Warn("%d missing librar(y/ies) require `tanmidock link` to resolve; check -fix does not materialize them", len(found.MissingLibraries))
	}

	if !cmd.fix || cmd.dryRun || cr.Empty() {
		return nil
	}

	return e.withLock(func() error {
		disposition := integrity.OrphanRegister
		if cmd.prune {
			disposition = integrity.OrphanPrune
		}
		if len(found.OrphanLibraries) > 0 && !cmd.force && !cmd.prune {
			if !confirm("re-register orphan libraries into the Registry instead of deleting them?") {
				disposition = integrity.OrphanPrune
			}
		}

		errs := checker.RepairAll(found, func(integrity.OrphanLibrary) integrity.OrphanDisposition {
			return disposition
		})
		if err := e.reg.Save(); err != nil {
			return err
		}
		for _, repairErr := range errs {
			e.Log.Warn("%v", repairErr)
		}
		e.Log.OK("repaired %d invalid project(s), %d dangling link(s), %d orphan(s), %d stale reference(s)",
			len(found.InvalidProjects), len(found.DanglingLinks), len(found.OrphanLibraries), len(found.StaleReferences))
		return nil
	})
}
