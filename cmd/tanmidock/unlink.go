// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/linker"
	"github.com/tanmi-dock/tanmidock/internal/pathutil"
	"github.com/tanmi-dock/tanmidock/internal/registry"
	"github.com/tanmi-dock/tanmidock/internal/tderrors"
	"github.com/tanmi-dock/tanmidock/internal/txlog"
)

const unlinkShortHelp = `Restore a project's dependencies to real directories`
const unlinkLongHelp = `
unlink reverses link: every dependency's symlink or multi-platform link
tree is replaced with a real copy of its content, and the project is
removed from the Registry. With --remove, Store entries that become
unreferenced as a result are deleted too (spec §6.1).
`

type unlinkCommand struct {
	remove bool
}

func (cmd *unlinkCommand) Name() string      { return "unlink" }
func (cmd *unlinkCommand) Args() string      { return "[path]" }
func (cmd *unlinkCommand) ShortHelp() string { return unlinkShortHelp }
func (cmd *unlinkCommand) LongHelp() string  { return unlinkLongHelp }
func (cmd *unlinkCommand) Hidden() bool      { return false }

func (cmd *unlinkCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.remove, "remove", false, "also delete store entries that become unreferenced")
}

func (cmd *unlinkCommand) Run(e *env, args []string) error {
	if err := e.requireInitialized(); err != nil {
		return err
	}

	projectPath, err := projectPathFrom(args)
	if err != nil {
		return err
	}

	fp := pathutil.HashPath(projectPath)
	proj, ok := e.reg.GetProject(fp)
	if !ok {
		return tderrors.New(tderrors.KindUsageError, "no project registered at "+projectPath+"; nothing to unlink")
	}
	deps := append([]registry.DependencyRef(nil), proj.Dependencies...)

	return e.withLock(func() error {
		return cmd.apply(e, fp, proj.Path, deps)
	})
}

func (cmd *unlinkCommand) apply(e *env, fp, projectPath string, deps []registry.DependencyRef) error {
	tx, err := txlog.Open(e.Home, projectPath)
	if err != nil {
		return err
	}

	for _, dep := range deps {
		local := filepath.Join(projectPath, dep.LinkedPath)
		if err := restoreOne(tx, local); err != nil {
			for _, rbErr := range tx.Rollback() {
				e.Log.Warn("%v", rbErr)
			}
			return errors.Wrapf(err, "restoring %s", dep.LibName)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	e.reg.RemoveProject(fp)

	if cmd.remove {
		for _, dep := range deps {
			cmd.pruneIfUnreferenced(e, dep.LibName, dep.Commit)
		}
	}

	if err := e.reg.Save(); err != nil {
		return err
	}

	e.Log.OK("unlinked %d dependenc(y/ies) for %s", len(deps), projectPath)
	return nil
}

// restoreOne reverses whichever link shape is on disk at local: a plain
// symlink (single-platform or general) or a multi-platform link directory.
// A local path that is already a real, unlinked directory is left alone,
// since a prior crashed unlink may have gotten partway through.
func restoreOne(tx *txlog.Transaction, local string) error {
	fi, err := os.Lstat(local)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "stat %s", local)
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(local)
		if err != nil {
			return errors.Wrapf(err, "reading link %s", local)
		}
		op := &txlog.Operation{Type: txlog.KindUnlink, Target: local, Source: target}
		if err := tx.Record(op); err != nil {
			return err
		}
		if err := linker.RestoreFromLink(local); err != nil {
			return err
		}
		return tx.Complete(op)
	}

	if !fi.IsDir() {
		return nil
	}

	sym, err := dirHasAnySymlinkChild(local)
	if err != nil {
		return err
	}
	if !sym {
		return nil
	}
	op := &txlog.Operation{Type: txlog.KindUnlink, Target: local}
	if err := tx.Record(op); err != nil {
		return err
	}
	if err := linker.RestoreMultiPlatform(local); err != nil {
		return err
	}
	return tx.Complete(op)
}

func dirHasAnySymlinkChild(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, errors.Wrapf(err, "reading %s", dir)
	}
	for _, e := range entries {
		sym, err := linker.IsSymlink(filepath.Join(dir, e.Name()))
		if err != nil {
			return false, err
		}
		if sym {
			return true, nil
		}
	}
	return false, nil
}

// pruneIfUnreferenced deletes every platform slot of (libName, commit) whose
// usedBy is now empty, relying on Store.Remove to clean up the commit's
// "_shared" slot once the last real platform directory goes with it, then
// drops the Library record if nothing is left.
func (cmd *unlinkCommand) pruneIfUnreferenced(e *env, libName, commit string) {
	for _, p := range e.reg.GetLibraryPlatforms(libName, commit) {
		key := registry.StoreKey(libName, commit, p)
		entry, ok := e.reg.GetStore(key)
		if !ok || len(entry.UsedBy) > 0 {
			continue
		}
		if err := e.st.Remove(libName, commit, p); err != nil {
			e.Log.Warn("removing %s:%s:%s from store: %v", libName, commit, p, err)
			continue
		}
		e.reg.RemoveStore(key)
	}
	if len(e.reg.GetLibraryPlatforms(libName, commit)) == 0 {
		e.reg.RemoveLibrary(libName, commit)
	}
}
