// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linker

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"

	"github.com/tanmi-dock/tanmidock/internal/platform"
	"github.com/tanmi-dock/tanmidock/internal/store"
)

// LinkLibrary wires local to the store slot(s) for (libName, commit),
// dispatching to the single- or multi-platform mode per spec §4.6.
func LinkLibrary(s *store.Store, local, libName, commit string, platforms []platform.Platform) error {
	if len(platforms) == 1 {
		target := s.GetPath(libName, commit, platforms[0])
		return linkSingle(local, target)
	}
	return LinkMultiPlatform(s, local, libName, commit, platforms)
}

func linkSingle(local, target string) error {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return errors.Wrap(err, "preparing link parent")
	}
	if err := os.RemoveAll(local); err != nil {
		return errors.Wrap(err, "clearing link target")
	}
	return makeDirLink(target, local)
}

// LinkGeneral wires local to the commit's "_shared" slot, replacing any
// pre-existing directory at local.
func LinkGeneral(sharedPath, local string) error {
	return linkSingle(local, sharedPath)
}

// LinkMultiPlatform implements spec §4.6's multi-platform mode: local
// becomes a real directory, each requested platform is symlinked in, and
// the commit's "_shared" contents are materialized inside it — the ".git"
// subdirectory by symlink (so the linked tree still looks like a git
// working copy), every other entry by recursive copy.
func LinkMultiPlatform(s *store.Store, local, libName, commit string, platforms []platform.Platform) error {
	if err := os.MkdirAll(local, 0o755); err != nil {
		return errors.Wrap(err, "creating multi-platform link directory")
	}

	for _, p := range platforms {
		target := s.GetPath(libName, commit, p)
		linkPath := filepath.Join(local, string(p))
		if err := os.RemoveAll(linkPath); err != nil {
			return errors.Wrapf(err, "clearing %s", linkPath)
		}
		if err := makeDirLink(target, linkPath); err != nil {
			return errors.Wrapf(err, "linking platform %s", p)
		}
	}

	sharedPath := s.GetPath(libName, commit, platform.General)
	entries, err := ioutil.ReadDir(sharedPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "reading shared slot")
	}

	for _, e := range entries {
		src := filepath.Join(sharedPath, e.Name())
		dst := filepath.Join(local, e.Name())

		if e.Name() == ".git" && e.IsDir() {
			if err := os.RemoveAll(dst); err != nil {
				return err
			}
			if err := makeDirLink(src, dst); err != nil {
				return errors.Wrap(err, "linking .git")
			}
			continue
		}

		if err := os.RemoveAll(dst); err != nil {
			return err
		}
		if e.IsDir() {
			if err := shutil.CopyTree(src, dst, nil); err != nil {
				return errors.Wrapf(err, "copying shared directory %s", e.Name())
			}
		} else {
			if _, err := shutil.Copy(src, dst, false); err != nil {
				return errors.Wrapf(err, "copying shared file %s", e.Name())
			}
		}
	}
	return nil
}

// RestoreFromLink reverses a single-platform or general link: the symlink
// target's contents are copied back into local, and the symlink is removed.
func RestoreFromLink(local string) error {
	sym, err := IsSymlink(local)
	if err != nil {
		return err
	}
	if !sym {
		return errors.Errorf("%s is not a symlink", local)
	}
	target, err := resolveLink(local)
	if err != nil {
		return errors.Wrap(err, "resolving link target")
	}

	if err := os.Remove(local); err != nil {
		return errors.Wrap(err, "removing symlink")
	}
	if err := shutil.CopyTree(target, local, nil); err != nil {
		return errors.Wrap(err, "copying link target back")
	}
	return nil
}

// RestoreMultiPlatform reverses a multi-platform layout: every symlink
// directly inside local is replaced with a recursive copy of its target.
func RestoreMultiPlatform(local string) error {
	entries, err := ioutil.ReadDir(local)
	if err != nil {
		return errors.Wrap(err, "reading multi-platform link directory")
	}

	for _, e := range entries {
		p := filepath.Join(local, e.Name())
		sym, err := IsSymlink(p)
		if err != nil {
			return err
		}
		if !sym {
			continue
		}
		target, err := resolveLink(p)
		if err != nil {
			return errors.Wrapf(err, "resolving %s", p)
		}
		if err := os.Remove(p); err != nil {
			return errors.Wrapf(err, "removing symlink %s", p)
		}
		if err := shutil.CopyTree(target, p, nil); err != nil {
			return errors.Wrapf(err, "copying %s back", p)
		}
	}
	return nil
}

// ReplaceWithLink implements spec §4.6's replaceWithLink: a no-op when
// local is already the correct symlink; otherwise, if local is a
// non-symlink directory and backupPath is non-empty, it is renamed to
// backupPath before the symlink is created, letting the caller pick (and
// log) the backup path before this mutation runs. An empty backupPath
// discards the existing directory outright. The backup path actually used
// is returned, or "" if none was made.
func ReplaceWithLink(local, storeTarget, backupPath string) (string, error) {
	correct, err := IsCorrectLink(local, storeTarget)
	if err != nil {
		return "", err
	}
	if correct {
		return "", nil
	}

	var usedBackup string
	if fi, err := os.Lstat(local); err == nil && fi.Mode()&os.ModeSymlink == 0 && fi.IsDir() {
		if backupPath != "" {
			if err := os.Rename(local, backupPath); err != nil {
				return "", errors.Wrap(err, "backing up existing directory")
			}
			usedBackup = backupPath
		} else {
			if err := os.RemoveAll(local); err != nil {
				return "", errors.Wrap(err, "removing existing directory")
			}
		}
	} else if err == nil {
		if err := os.RemoveAll(local); err != nil {
			return "", errors.Wrap(err, "clearing existing link")
		}
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", err
	}
	if err := makeDirLink(storeTarget, local); err != nil {
		return usedBackup, errors.Wrap(err, "creating replacement link")
	}
	return usedBackup, nil
}
