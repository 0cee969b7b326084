// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package classify implements the dependency classifier and action planner
// of spec §4.9: given a declared dependency and a requested platform set, it
// decides whether the project's local copy is already correctly linked, in
// need of relinking, replacing, absorbing, or downloading.
package classify

import (
	"os"

	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/linker"
	"github.com/tanmi-dock/tanmidock/internal/platform"
	"github.com/tanmi-dock/tanmidock/internal/store"
)

// Kind is one of the classifier's tagged statuses.
type Kind int

const (
	KindUnknown Kind = iota
	KindLinked
	KindRelink
	KindReplace
	KindAbsorb
	KindLinkNew
	KindMissing
)

func (k Kind) String() string {
	switch k {
	case KindLinked:
		return "LINKED"
	case KindRelink:
		return "RELINK"
	case KindReplace:
		return "REPLACE"
	case KindAbsorb:
		return "ABSORB"
	case KindLinkNew:
		return "LINK_NEW"
	case KindMissing:
		return "MISSING"
	default:
		return "UNKNOWN"
	}
}

// DependencyStatus is the classifier's verdict for one declared dependency.
type DependencyStatus struct {
	LibName            string
	Commit             string
	LocalPath          string
	Kind               Kind
	RequestedPlatforms []platform.Platform
	// MissingPlatforms is the subset of RequestedPlatforms the Store does
	// not yet have, set only when Kind is KindMissing.
	MissingPlatforms []platform.Platform
	// General is true when the Store already holds this (libName, commit)
	// as a platform-neutral library.
	General bool
	// LocalCommit is the commit found in an existing real directory, set
	// only when one was read (Kind is KindReplace or KindAbsorb).
	LocalCommit string
}

// Classify computes the status of one declared dependency against s and the
// project's local path for it (conventionally "3rdparty/<libName>").
func Classify(s *store.Store, localPath, libName, commit string, requested []platform.Platform) (*DependencyStatus, error) {
	ds := &DependencyStatus{
		LibName:            libName,
		Commit:             commit,
		LocalPath:          localPath,
		RequestedPlatforms: requested,
	}

	if s.Exists(libName, commit, platform.General) && s.IsGeneralLib(libName, commit) {
		ds.General = true
		return classifyGeneral(s, localPath, libName, commit, ds)
	}

	existing, missing := s.CheckPlatformCompleteness(libName, commit, requested)
	_ = existing

	fi, err := os.Lstat(localPath)
	switch {
	case os.IsNotExist(err):
		return classifyLocalMissing(ds, missing), nil
	case err != nil:
		return nil, errors.Wrapf(err, "stat %s", localPath)
	case fi.Mode()&os.ModeSymlink != 0:
		return classifyLocalSymlink(s, libName, commit, missing, ds)
	case fi.IsDir():
		return classifyLocalDirectory(s, libName, commit, missing, ds)
	default:
		return nil, errors.Errorf("%s is neither a directory nor a symlink", localPath)
	}
}

// classifyGeneral handles the single-symlink semantics general libraries
// always use, regardless of how many platforms were requested (spec §4.9's
// edge refinement).
func classifyGeneral(s *store.Store, localPath, libName, commit string, ds *DependencyStatus) (*DependencyStatus, error) {
	target := s.GetPath(libName, commit, platform.General)
	st, err := linker.GetPathStatus(localPath, target)
	if err != nil {
		return nil, err
	}
	switch st {
	case linker.StatusLinked:
		ds.Kind = KindLinked
	case linker.StatusWrongLink:
		ds.Kind = KindRelink
	case linker.StatusDirectory:
		ds.Kind = KindReplace
	default:
		ds.Kind = KindLinkNew
	}
	return ds, nil
}

func classifyLocalMissing(ds *DependencyStatus, missing []platform.Platform) *DependencyStatus {
	if len(missing) == 0 {
		ds.Kind = KindLinkNew
		return ds
	}
	ds.Kind = KindMissing
	ds.MissingPlatforms = missing
	return ds
}

// classifyLocalSymlink handles the single-platform case: a top-level
// symlink can only ever satisfy a request for exactly one platform, since a
// multi-platform request needs a real directory with per-platform internal
// links (spec §4.6).
func classifyLocalSymlink(s *store.Store, libName, commit string, missing []platform.Platform, ds *DependencyStatus) (*DependencyStatus, error) {
	if len(ds.RequestedPlatforms) != 1 {
		ds.Kind = KindRelink
		return ds, nil
	}

	target := s.GetPath(libName, commit, ds.RequestedPlatforms[0])
	st, err := linker.GetPathStatus(ds.LocalPath, target)
	if err != nil {
		return nil, err
	}
	if st != linker.StatusLinked {
		ds.Kind = KindRelink
		return ds, nil
	}
	if len(missing) == 0 {
		ds.Kind = KindLinked
		return ds, nil
	}
	ds.Kind = KindMissing
	ds.MissingPlatforms = missing
	return ds, nil
}

// classifyLocalDirectory handles a real on-disk directory: either an
// already-materialized multi-platform link tree, or a plain checkout that
// needs absorbing or replacing.
func classifyLocalDirectory(s *store.Store, libName, commit string, missing []platform.Platform, ds *DependencyStatus) (*DependencyStatus, error) {
	if len(ds.RequestedPlatforms) > 1 {
		if st, ok := multiPlatformStatus(s, libName, commit, ds.LocalPath, ds.RequestedPlatforms); ok {
			if st == linker.StatusLinked {
				if len(missing) == 0 {
					ds.Kind = KindLinked
				} else {
					ds.Kind = KindMissing
					ds.MissingPlatforms = missing
				}
			} else {
				ds.Kind = KindRelink
			}
			return ds, nil
		}
	}

	localCommit, _ := ReadLocalCommit(ds.LocalPath)
	ds.LocalCommit = localCommit

	if len(missing) == 0 {
		ds.Kind = KindReplace
		return ds, nil
	}

	if localCommit != "" && CommitMatches(localCommit, commit) {
		ds.Kind = KindAbsorb
		return ds, nil
	}

	// Either the commit could not be determined or it does not match the
	// declared one: the on-disk content cannot be trusted into the store.
	ds.Kind = KindReplace
	return ds, nil
}

// multiPlatformStatus reports whether local looks like an already
// materialized multi-platform link tree (one correctly-linked subdirectory
// per requested platform), and if so whether it is fully correct. ok is
// false when local does not look like a link tree at all, meaning the
// caller should fall back to treating it as a plain checkout.
func multiPlatformStatus(s *store.Store, libName, commit, local string, requested []platform.Platform) (linker.Status, bool) {
	sawAny := false
	for _, p := range requested {
		sub := local + string(os.PathSeparator) + string(p)
		sym, err := linker.IsSymlink(sub)
		if err != nil || !sym {
			continue
		}
		sawAny = true
		correct, err := linker.IsCorrectLink(sub, s.GetPath(libName, commit, p))
		if err != nil || !correct {
			return linker.StatusWrongLink, true
		}
	}
	if !sawAny {
		return linker.StatusMissing, false
	}
	return linker.StatusLinked, true
}
