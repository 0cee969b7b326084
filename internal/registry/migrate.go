// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

// migrateLegacyReferences implements the legacy-schema migration pass
// described in spec §4.4 and §9: older registries recorded usage on the
// logical Library via Library.ReferencedBy instead of per-platform on the
// StoreEntry. For every Library that still carries a non-empty
// ReferencedBy, each referencing project fingerprint is merged into the
// UsedBy of every StoreEntry that exists for that library (across all of
// its platforms), and the legacy field is cleared.
//
// Two quirks from spec §9 are preserved deliberately, not accidentally:
//
//   - a referencing fingerprint that no longer names an existing Project
//     is dropped during the merge rather than carried forward, since a
//     stale reference to a library nobody declares anymore is not worth
//     perpetuating into the new schema;
//   - a Library with a non-empty ReferencedBy but with zero matching
//     StoreEntry objects (the physical directory was already removed) is
//     left untouched: its ReferencedBy is NOT cleared, since there is
//     nowhere to move the reference to and clearing it would silently
//     destroy the only record that the library was once in use.
//
// migrateLegacyReferences reports whether it changed anything, so the
// caller knows to persist the result immediately.
func (r *Registry) migrateLegacyReferences() bool {
	changed := false

	for _, lib := range r.libraries {
		if len(lib.ReferencedBy) == 0 {
			continue
		}

		keys := r.storeKeysForLibrary(lib.LibName, lib.Commit)
		if len(keys) == 0 {
			continue
		}

		for _, fp := range lib.ReferencedBy {
			if _, ok := r.projects[fp]; !ok {
				continue
			}
			for _, key := range keys {
				entry := r.stores[key]
				if !hasProject(entry.UsedBy, fp) {
					entry.UsedBy = append(entry.UsedBy, fp)
				}
				entry.UnlinkedAt = nil
			}
		}

		lib.ReferencedBy = nil
		changed = true
	}

	return changed
}
