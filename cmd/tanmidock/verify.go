// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import "flag"

const verifyShortHelp = `Legacy alias for "check" (read-only)`
const verifyLongHelp = `
verify is a legacy alias for "check" without -fix: it reports
inconsistencies without repairing them.
`

// verifyCommand is the legacy read-only half of check (spec §6.1).
type verifyCommand struct {
	json bool
}

func (cmd *verifyCommand) Name() string      { return "verify" }
func (cmd *verifyCommand) Args() string      { return "" }
func (cmd *verifyCommand) ShortHelp() string { return verifyShortHelp }
func (cmd *verifyCommand) LongHelp() string  { return verifyLongHelp }
func (cmd *verifyCommand) Hidden() bool      { return true }

func (cmd *verifyCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.json, "json", false, "output in JSON format")
}

func (cmd *verifyCommand) Run(e *env, args []string) error {
	return (&checkCommand{json: cmd.json}).Run(e, args)
}
