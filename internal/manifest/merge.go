// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"os"

	"github.com/pkg/errors"
)

// LoadOptionalConfigs reads and parses the named optional configs sitting
// alongside primaryManifestPath.
func LoadOptionalConfigs(primaryManifestPath string, names []string) ([]*Manifest, error) {
	out := make([]*Manifest, 0, len(names))
	for _, name := range names {
		path := optionalConfigPath(primaryManifestPath, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "opening optional config %q", name)
		}
		m, err := Parse(f, path)
		f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Merge combines a primary manifest with an ordered list of optional
// configs (in selection order), applying spec §4.8's deterministic
// last-wins rule: when multiple configs contribute the same libName
// (Repo.Dir), the optional config applied latest wins. The merged
// manifest lists repos in the order each libName first appeared.
func Merge(primary *Manifest, optionals []*Manifest) *Manifest {
	merged := map[string]Repo{}
	var order []string

	add := func(r Repo) {
		if _, exists := merged[r.LibName()]; !exists {
			order = append(order, r.LibName())
		}
		merged[r.LibName()] = r
	}

	for _, r := range primary.Repos.Common {
		add(r)
	}
	for _, opt := range optionals {
		for _, r := range opt.Repos.Common {
			add(r)
		}
	}

	out := &Manifest{Version: primary.Version, Vars: mergeVars(primary, optionals), path: primary.path}
	for _, name := range order {
		out.Repos.Common = append(out.Repos.Common, merged[name])
	}
	out.Actions.Common = primary.Actions.Common
	for _, opt := range optionals {
		out.Actions.Common = append(out.Actions.Common, opt.Actions.Common...)
	}
	return out
}

// mergeVars layers each optional config's vars over the primary's,
// following the same last-wins discipline as the repo merge.
func mergeVars(primary *Manifest, optionals []*Manifest) map[string]string {
	out := make(map[string]string, len(primary.Vars))
	for k, v := range primary.Vars {
		out[k] = v
	}
	for _, opt := range optionals {
		for k, v := range opt.Vars {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
