// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/config"
	"github.com/tanmi-dock/tanmidock/internal/pathutil"
	"github.com/tanmi-dock/tanmidock/internal/registry"
)

const initShortHelp = `Create config.json, registry.json, and the Store directory`
const initLongHelp = `
init creates the TanmiDock home (config.json, an empty registry.json, and
the Store directory) if it does not already exist. Re-running init against
an already-initialized home asks for confirmation before reinitializing;
-y skips the prompt and reinitializes.
`

type initCommand struct {
	storePath string
	yes       bool
}

func (cmd *initCommand) Name() string      { return "init" }
func (cmd *initCommand) Args() string      { return "" }
func (cmd *initCommand) ShortHelp() string { return initShortHelp }
func (cmd *initCommand) LongHelp() string  { return initLongHelp }
func (cmd *initCommand) Hidden() bool      { return false }

func (cmd *initCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.storePath, "store-path", "", "override the default Store directory location")
	fs.BoolVar(&cmd.yes, "y", false, "assume yes to confirmation prompts")
	fs.BoolVar(&cmd.yes, "yes", false, "assume yes to confirmation prompts")
}

func (cmd *initCommand) Run(e *env, args []string) error {
	if len(args) != 0 {
		return wrapUsage("init takes no positional arguments")
	}

	if _, err := os.Stat(configPathFor(e.Home)); err == nil {
		if !cmd.yes && !confirm(fmt.Sprintf("%s is already initialized, reinitialize?", e.Home)) {
			e.Log.Info("init cancelled")
			return nil
		}
	}

	return e.withLock(func() error {
		if err := os.MkdirAll(e.Home, 0o755); err != nil {
			return errors.Wrap(err, "creating tanmi-dock home")
		}

		cfg := config.Default(e.Home)
		if cmd.storePath != "" {
			storePath, err := pathutil.ExpandHome(cmd.storePath)
			if err != nil {
				return err
			}
			cfg.StorePath = storePath
		}
		cfg.Initialized = true

		storePath, err := pathutil.ExpandHome(cfg.StorePath)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(storePath, 0o755); err != nil {
			return errors.Wrap(err, "creating store directory")
		}

		if err := cfg.Save(); err != nil {
			return err
		}

		reg := registry.New(e.Home)
		if err := reg.Load(); err != nil {
			return err
		}
		if err := reg.Save(); err != nil {
			return err
		}

		e.Log.OK("initialized tanmi-dock home at %s (store: %s)", e.Home, storePath)
		return nil
	})
}

func configPathFor(home string) string {
	return filepath.Join(home, "config.json")
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}
