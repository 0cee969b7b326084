// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Discover searches a project path for the primary manifest, per spec
// §4.8: first "3rdparty/codepac-dep.json", then "./codepac-dep.json".
func Discover(projectPath string) (string, bool) {
	candidates := []string{
		filepath.Join(projectPath, "3rdparty", FileName),
		filepath.Join(projectPath, FileName),
	}
	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c, true
		}
	}
	return "", false
}

// DiscoverOptionalConfigs finds sibling "codepac-dep-<name>.json" files
// next to the primary manifest, returning their names (the "<name>" part),
// sorted for determinism.
func DiscoverOptionalConfigs(primaryManifestPath string) ([]string, error) {
	dir := filepath.Dir(primaryManifestPath)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "scanning for optional configs")
	}

	const prefix = "codepac-dep-"
	const suffix = ".json"

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if strings.HasPrefix(n, prefix) && strings.HasSuffix(n, suffix) {
			name := strings.TrimSuffix(strings.TrimPrefix(n, prefix), suffix)
			if strings.HasPrefix(name, ".") {
				continue
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func optionalConfigPath(primaryManifestPath, name string) string {
	return filepath.Join(filepath.Dir(primaryManifestPath), "codepac-dep-"+name+".json")
}

// PromptFunc lets a caller implement interactive multi-select over the
// available optional config names.
type PromptFunc func(available []string) ([]string, error)

// SelectOptionalConfigs implements spec §4.8's selection policy: explicitly
// named configs always win; in TTY mode, an unset explicit selection falls
// back to prompt; in non-TTY mode, an unset explicit selection with
// available configs is an error.
func SelectOptionalConfigs(available []string, isTTY bool, explicit []string, prompt PromptFunc) ([]string, error) {
	if len(explicit) > 0 {
		known := make(map[string]bool, len(available))
		for _, a := range available {
			known[a] = true
		}
		for _, e := range explicit {
			if !known[e] {
				return nil, errors.Errorf("unknown optional config %q", e)
			}
		}
		return explicit, nil
	}

	if len(available) == 0 {
		return nil, nil
	}

	if isTTY {
		if prompt == nil {
			return nil, errors.New("no prompt implementation available in TTY mode")
		}
		return prompt(available)
	}

	return nil, errors.Errorf("optional configs %v are available; name them explicitly with --config in non-interactive mode", available)
}
