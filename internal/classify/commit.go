// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classify

import (
	"io/ioutil"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	vcs "github.com/Masterminds/vcs"
	"github.com/pkg/errors"
)

// ReadLocalCommit determines the commit a local working copy at dir is
// checked out to, per spec §4.9's commit-mismatch edge refinement. It
// tries, in order: the downloader's own ".git/commit_hash" marker (no git
// binary required), a go-git plain-open HEAD read, and finally the git CLI
// by way of Masterminds/vcs.
func ReadLocalCommit(dir string) (string, error) {
	if hash, err := readCommitHashFile(dir); err == nil {
		return hash, nil
	}

	if repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true}); err == nil {
		if head, err := repo.Head(); err == nil {
			return head.Hash().String(), nil
		}
	}

	repo, err := vcs.NewGitRepo("", dir)
	if err != nil {
		return "", errors.Wrapf(err, "reading local commit for %s", dir)
	}
	commit, err := repo.Version()
	if err != nil {
		return "", errors.Wrapf(err, "reading local commit for %s", dir)
	}
	return commit, nil
}

func readCommitHashFile(dir string) (string, error) {
	b, err := ioutil.ReadFile(filepath.Join(dir, ".git", "commit_hash"))
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(string(b))
	if hash == "" {
		return "", errors.Errorf("%s is empty", filepath.Join(dir, ".git", "commit_hash"))
	}
	return hash, nil
}

// CommitMatches reports whether local satisfies declared via a prefix
// match, per spec §4.9 (either side may be a short SHA).
func CommitMatches(local, declared string) bool {
	if local == "" || declared == "" {
		return false
	}
	if len(local) < len(declared) {
		return strings.HasPrefix(declared, local)
	}
	return strings.HasPrefix(local, declared)
}
