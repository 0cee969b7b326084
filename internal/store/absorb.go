// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/platform"
	"github.com/tanmi-dock/tanmidock/internal/tderrors"
)

// ProgressFunc reports incremental progress during a cross-device copy, in
// bytes copied so far and (when known) the total.
type ProgressFunc func(copied, total int64)

// moveRecord is one successful move performed during an absorb, kept on a
// rollback stack so a later failure can be unwound (spec §4.5 step 5).
type moveRecord struct {
	target  string
	source  string
	crossFs bool
}

// rollback unwinds move records in reverse: a cross-device move is undone
// by deleting the target (the source is still in place, since AbsorbLib
// defers deleting copied sources until the whole absorb succeeds), an
// in-place rename is undone by renaming the target back to its source.
func rollback(moves []moveRecord) {
	for i := len(moves) - 1; i >= 0; i-- {
		m := moves[i]
		if m.crossFs {
			os.RemoveAll(m.target)
		} else {
			os.Rename(m.target, m.source)
		}
	}
}

// AbsorbLegacy implements the single-platform legacy absorb of spec §4.5:
// rename sourceDir into its store slot, copying across devices if needed.
// A slot that already exists is reported as AlreadyInStore.
func (s *Store) AbsorbLegacy(sourceDir, libName, commit string, p platform.Platform) error {
	target := s.GetPath(libName, commit, p)
	if dirExists(target) {
		return tderrors.AlreadyInStore(libName, commit, string(p))
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(err, "preparing store slot")
	}
	if _, err := renameWithFallback(sourceDir, target); err != nil {
		return errors.Wrap(err, "absorbing into store")
	}
	return nil
}

// AbsorbResult reports what an AbsorbLib call skipped because the target
// slot already existed in the store.
type AbsorbResult struct {
	Skipped []string
}

// AbsorbLib implements the primary multi-platform absorb of spec §4.5:
// children of libDir that are selected platform directories go to their own
// store slot, every other child goes to the commit's "_shared" slot, and a
// "dependencies" subdirectory is recursed into, absorbing nested libraries
// (detected via a ".git/commit_hash" file) into their own (subLibName,
// subCommit) slots.
func (s *Store) AbsorbLib(libDir string, platforms []platform.Platform, libName, commit string, progress ProgressFunc) (*AbsorbResult, error) {
	wanted := platform.NewSet(platforms...)
	res := &AbsorbResult{}
	var moves []moveRecord
	var deferred []string

	entries, err := ioutil.ReadDir(libDir)
	if err != nil {
		return nil, errors.Wrap(err, "reading library directory")
	}

	fail := func(err error) (*AbsorbResult, error) {
		rollback(moves)
		return nil, err
	}

	for _, e := range entries {
		name := e.Name()
		if name == "dependencies" && e.IsDir() {
			continue
		}

		if e.IsDir() && platform.IsPlatformDir(name) {
			canon, _ := platform.Canonicalize(name)
			if !wanted.Has(canon) {
				continue
			}
			target := s.GetPath(libName, commit, canon)
			if dirExists(target) {
				res.Skipped = append(res.Skipped, name)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fail(err)
			}
			src := filepath.Join(libDir, name)
			crossFs, err := moveWithProgress(src, target, progress)
			if err != nil {
				return fail(err)
			}
			moves = append(moves, moveRecord{target: target, source: src, crossFs: crossFs})
			if crossFs {
				deferred = append(deferred, src)
			}
			continue
		}

		sharedDir := s.GetPath(libName, commit, platform.General)
		if err := os.MkdirAll(sharedDir, 0o755); err != nil {
			return fail(err)
		}
		itemTarget := filepath.Join(sharedDir, name)
		if pathExists(itemTarget) {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		src := filepath.Join(libDir, name)
		crossFs, err := moveWithProgress(src, itemTarget, progress)
		if err != nil {
			return fail(err)
		}
		moves = append(moves, moveRecord{target: itemTarget, source: src, crossFs: crossFs})
		if crossFs {
			deferred = append(deferred, src)
		}
	}

	if err := s.absorbDependencies(libDir, libName, commit, progress, &moves, &res.Skipped, &deferred); err != nil {
		return fail(err)
	}

	for _, d := range deferred {
		os.RemoveAll(d)
	}
	return res, nil
}

// absorbDependencies handles the "dependencies/" special case of spec §4.5
// step 4.
func (s *Store) absorbDependencies(libDir, libName, commit string, progress ProgressFunc, moves *[]moveRecord, skipped *[]string, deferred *[]string) error {
	depDir := filepath.Join(libDir, "dependencies")
	fi, err := os.Stat(depDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return nil
	}

	subEntries, err := ioutil.ReadDir(depDir)
	if err != nil {
		return errors.Wrap(err, "reading dependencies directory")
	}

	for _, se := range subEntries {
		subPath := filepath.Join(depDir, se.Name())

		if se.IsDir() && isNestedLibrary(subPath) {
			subLibName := se.Name()
			subCommit, err := readCommitHash(subPath)
			if err != nil {
				return errors.Wrapf(err, "reading nested commit for %s", subLibName)
			}
			subPlatforms := detectPlatformDirs(subPath)
			if len(subPlatforms) == 0 {
				if _, err := s.AbsorbGeneral(subPath, subLibName, subCommit); err != nil {
					return err
				}
				continue
			}
			sub, err := s.AbsorbLib(subPath, subPlatforms, subLibName, subCommit, progress)
			if err != nil {
				return err
			}
			for _, sk := range sub.Skipped {
				*skipped = append(*skipped, filepath.Join("dependencies", subLibName, sk))
			}
			continue
		}

		sharedDeps := filepath.Join(s.GetPath(libName, commit, platform.General), "dependencies")
		if err := os.MkdirAll(sharedDeps, 0o755); err != nil {
			return err
		}
		target := filepath.Join(sharedDeps, se.Name())
		if pathExists(target) {
			*skipped = append(*skipped, filepath.Join("dependencies", se.Name()))
			continue
		}
		crossFs, err := moveWithProgress(subPath, target, progress)
		if err != nil {
			return err
		}
		*moves = append(*moves, moveRecord{target: target, source: subPath, crossFs: crossFs})
		if crossFs {
			*deferred = append(*deferred, subPath)
		}
	}
	return nil
}

// AbsorbGeneral implements spec §4.5's platform-neutral absorb: the whole
// libDir becomes the commit's "_shared" slot. A pre-existing slot is
// returned as-is without modification.
func (s *Store) AbsorbGeneral(libDir, libName, commit string) (string, error) {
	target := s.GetPath(libName, commit, platform.General)
	if dirExists(target) {
		return target, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", errors.Wrap(err, "preparing store slot")
	}
	if _, err := renameWithFallback(libDir, target); err != nil {
		return "", errors.Wrap(err, "absorbing general library")
	}
	return target, nil
}

func moveWithProgress(src, dest string, progress ProgressFunc) (bool, error) {
	crossFs, err := renameWithFallback(src, dest)
	if err != nil {
		return crossFs, err
	}
	if progress != nil && crossFs {
		if sz, serr := dirSize(dest); serr == nil {
			progress(sz, sz)
		}
	}
	return crossFs, nil
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// isNestedLibrary reports whether dir looks like a checked-out library:
// it carries a ".git/commit_hash" file recording the commit it was
// downloaded at.
func isNestedLibrary(dir string) bool {
	return pathExists(filepath.Join(dir, ".git", "commit_hash"))
}

func readCommitHash(dir string) (string, error) {
	b, err := ioutil.ReadFile(filepath.Join(dir, ".git", "commit_hash"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// detectPlatformDirs returns the canonical platforms corresponding to any
// immediate platform subdirectories of dir.
func detectPlatformDirs(dir string) []platform.Platform {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []platform.Platform
	for _, e := range entries {
		if !e.IsDir() || !platform.IsPlatformDir(e.Name()) {
			continue
		}
		if canon, err := platform.Canonicalize(e.Name()); err == nil {
			out = append(out, canon)
		}
	}
	return out
}
