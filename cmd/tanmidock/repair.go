// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import "flag"

const repairShortHelp = `Legacy alias for "check -fix"`
const repairLongHelp = `
repair is a legacy alias for "check -fix": it finds and repairs every
reparable inconsistency, other than missing libraries.
`

// repairCommand is the legacy write half of check (spec §6.1).
type repairCommand struct {
	prune bool
	force bool
}

func (cmd *repairCommand) Name() string      { return "repair" }
func (cmd *repairCommand) Args() string      { return "" }
func (cmd *repairCommand) ShortHelp() string { return repairShortHelp }
func (cmd *repairCommand) LongHelp() string  { return repairLongHelp }
func (cmd *repairCommand) Hidden() bool      { return true }

func (cmd *repairCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.prune, "prune", false, "dispose of orphan libraries by deleting them instead of re-registering them")
	fs.BoolVar(&cmd.force, "force", false, "skip confirmation and proceed even for destructive repairs")
}

func (cmd *repairCommand) Run(e *env, args []string) error {
	return (&checkCommand{fix: true, prune: cmd.prune, force: cmd.force}).Run(e, args)
}
