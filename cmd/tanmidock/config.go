// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
)

const configShortHelp = `Get or set a config.json value`
const configLongHelp = `
With no arguments, prints every config.json key and value.

  config get <key>         print one key's value
  config set <key> <value> set one key's value and save
`

type configCommand struct{}

func (cmd *configCommand) Name() string      { return "config" }
func (cmd *configCommand) Args() string      { return "[get <key> | set <key> <value>]" }
func (cmd *configCommand) ShortHelp() string { return configShortHelp }
func (cmd *configCommand) LongHelp() string  { return configLongHelp }
func (cmd *configCommand) Hidden() bool      { return false }
func (cmd *configCommand) Register(fs *flag.FlagSet) {}

func (cmd *configCommand) Run(e *env, args []string) error {
	if err := e.requireInitialized(); err != nil {
		return err
	}

	switch len(args) {
	case 0:
		return cmd.printAll(e)
	case 2:
		if args[0] != "get" {
			return wrapUsage("config: expected \"get <key>\", got %q", args)
		}
		value, err := e.cfg.Get(args[1])
		if err != nil {
			return err
		}
		e.Log.Logln(value)
		return nil
	case 3:
		if args[0] != "set" {
			return wrapUsage("config: expected \"set <key> <value>\", got %q", args)
		}
		return e.withLock(func() error {
			if err := e.cfg.Set(args[1], args[2]); err != nil {
				return err
			}
			if err := e.cfg.Save(); err != nil {
				return err
			}
			e.Log.OK("%s = %s", args[1], args[2])
			return nil
		})
	default:
		return wrapUsage("config: unexpected arguments %q", args)
	}
}

func (cmd *configCommand) printAll(e *env) error {
	for _, key := range []string{
		"storePath", "cleanStrategy", "unusedDays", "maxStoreSize",
		"autoDownload", "concurrency", "logLevel",
	} {
		value, err := e.cfg.Get(key)
		if err != nil {
			return err
		}
		e.Log.Logf("%s = %s\n", key, value)
	}
	return nil
}
