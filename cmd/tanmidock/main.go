// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command tanmidock is the content-addressed dependency store and linker
// described in spec §6.1.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/dlog"
	"github.com/tanmi-dock/tanmidock/internal/tderrors"
	"github.com/tanmi-dock/tanmidock/internal/txlog"
)

func main() {
	home, err := defaultHome()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tanmidock:", err)
		os.Exit(int(tderrors.ExitGeneralError))
	}
	c := &Config{
		Args:   os.Args,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Home:   home,
	}
	os.Exit(c.Run())
}

// Config specifies a full invocation of tanmidock.
type Config struct {
	Args           []string
	Stdout, Stderr *os.File
	Home           string
}

// Run executes a configuration and returns an exit code per spec §6.2.
func (c *Config) Run() (exitCode int) {
	commands := []command{
		&initCommand{},
		&linkCommand{},
		&unlinkCommand{},
		&statusCommand{},
		&configCommand{},
		&checkCommand{},
		&verifyCommand{},
		&repairCommand{},
	}

	examples := [][2]string{
		{"tanmidock init", "create the global config and registry"},
		{"tanmidock link", "link the current project's declared dependencies"},
		{"tanmidock status --tree", "show dependency status as a tree"},
		{"tanmidock check --fix", "find and repair store/registry inconsistencies"},
	}

	errLogger := log.New(c.Stderr, "", 0)

	usage := func() {
		errLogger.Println("tanmidock is a content-addressed dependency store and linker")
		errLogger.Println()
		errLogger.Println("Usage: tanmidock <command>")
		errLogger.Println()
		errLogger.Println("Commands:")
		errLogger.Println()
		w := tabwriter.NewWriter(c.Stderr, 0, 4, 2, ' ', 0)
		for _, cmd := range commands {
			if !cmd.Hidden() {
				fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.ShortHelp())
			}
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println("Examples:")
		for _, ex := range examples {
			fmt.Fprintf(w, "\t%s\t%s\n", ex[0], ex[1])
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println(`Use "tanmidock help <command>" for more information about a command.`)
	}

	cmdName, printCommandHelp, exit := parseArgs(c.Args)
	if exit {
		usage()
		return int(tderrors.ExitUsage)
	}

	for _, cmd := range commands {
		if cmd.Name() != cmdName {
			continue
		}

		fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		fs.SetOutput(c.Stderr)
		verbose := fs.Bool("v", false, "enable verbose logging")
		cmd.Register(fs)
		resetUsage(errLogger, fs, cmdName, cmd.Args(), cmd.LongHelp())

		if printCommandHelp {
			fs.Usage()
			return int(tderrors.ExitUsage)
		}
		if err := fs.Parse(c.Args[2:]); err != nil {
			return int(tderrors.ExitUsage)
		}

		logger := dlog.New(c.Stdout, c.Stderr)
		logger.SetVerbose(*verbose)
		e := newEnv(c.Home, logger)

		warnPendingTransactions(e, logger)

		if err := cmd.Run(e, fs.Args()); err != nil {
			logger.Err("%v", err)
			return int(tderrors.ExitCodeFor(err))
		}
		return int(tderrors.ExitSuccess)
	}

	errLogger.Printf("tanmidock: %s: no such command\n", cmdName)
	usage()
	return int(tderrors.ExitUsage)
}

// warnPendingTransactions surfaces any transaction left pending by a
// crashed prior invocation (spec §5); it never auto-rolls-back, it only
// informs the operator.
func warnPendingTransactions(e *env, logger *dlog.Logger) {
	pending, err := txlog.FindPending(e.Home)
	if err != nil || len(pending) == 0 {
		return
	}
	for _, tx := range pending {
		logger.Warn("transaction %s is pending from a previous run against %s; its operations were neither committed nor rolled back", tx.ID, tx.ProjectPath)
	}
}

func resetUsage(logger *log.Logger, fs *flag.FlagSet, name, args, longHelp string) {
	var (
		hasFlags   bool
		flagBlock  bytes.Buffer
		flagWriter = tabwriter.NewWriter(&flagBlock, 0, 4, 2, ' ', 0)
	)
	fs.VisitAll(func(f *flag.Flag) {
		hasFlags = true
		defValue := f.DefValue
		if defValue == "" {
			defValue = "<none>"
		}
		fmt.Fprintf(flagWriter, "\t-%s\t%s (default: %s)\n", f.Name, f.Usage, defValue)
	})
	flagWriter.Flush()
	fs.Usage = func() {
		logger.Printf("Usage: tanmidock %s %s\n", name, args)
		logger.Println()
		logger.Println(strings.TrimSpace(longHelp))
		logger.Println()
		if hasFlags {
			logger.Println("Flags:")
			logger.Println()
			logger.Println(flagBlock.String())
		}
	}
}

// parseArgs determines the name of the tanmidock command and whether the
// user asked for help to be printed.
func parseArgs(args []string) (cmdName string, printCmdUsage bool, exit bool) {
	isHelpArg := func() bool {
		return strings.Contains(strings.ToLower(args[1]), "help") || strings.ToLower(args[1]) == "-h"
	}

	switch len(args) {
	case 0, 1:
		exit = true
	case 2:
		if isHelpArg() {
			exit = true
		}
		cmdName = args[1]
	default:
		if isHelpArg() {
			cmdName = args[2]
			printCmdUsage = true
		} else {
			cmdName = args[1]
		}
	}
	return cmdName, printCmdUsage, exit
}

// wrapUsage returns a *tderrors.Error of KindUsageError for a malformed
// invocation, per spec §6.2.
func wrapUsage(format string, args ...interface{}) error {
	return tderrors.New(tderrors.KindUsageError, errors.Errorf(format, args...).Error())
}
