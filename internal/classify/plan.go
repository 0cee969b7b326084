// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classify

// Plan orders a batch of classified dependencies into the execution order
// spec §4.9 requires: repair mismatches first (RELINK, REPLACE, ABSORB,
// in that relative order so that a directory is never linked over without
// first reconciling its content), then LINK_NEW, then MISSING (which needs
// a download). Dependencies already LINKED need no action and are dropped.
func Plan(statuses []*DependencyStatus) []*DependencyStatus {
	var relink, replace, absorb, linkNew, missing []*DependencyStatus

	for _, ds := range statuses {
		switch ds.Kind {
		case KindLinked:
			// nothing to do
		case KindRelink:
			relink = append(relink, ds)
		case KindReplace:
			replace = append(replace, ds)
		case KindAbsorb:
			absorb = append(absorb, ds)
		case KindLinkNew:
			linkNew = append(linkNew, ds)
		case KindMissing:
			missing = append(missing, ds)
		}
	}

	out := make([]*DependencyStatus, 0, len(relink)+len(replace)+len(absorb)+len(linkNew)+len(missing))
	out = append(out, relink...)
	out = append(out, replace...)
	out = append(out, absorb...)
	out = append(out, linkNew...)
	out = append(out, missing...)
	return out
}
