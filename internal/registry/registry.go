// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	radix "github.com/armon/go-radix"
	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/lockfile"
	"github.com/tanmi-dock/tanmidock/internal/pathutil"
	"github.com/tanmi-dock/tanmidock/internal/platform"
)

// FileName is the Registry's persisted filename under the TanmiDock home.
const FileName = "registry.json"

// rawRegistry is the on-disk JSON shape.
type rawRegistry struct {
	Version   string                 `json:"version"`
	Projects  map[string]*Project    `json:"projects"`
	Libraries map[string]*Library    `json:"libraries"`
	Stores    map[string]*StoreEntry `json:"stores"`
}

// Registry is the singleton catalog described in spec §3 and §4.4. It is
// safe to share a module-scoped handle within one process because the
// global operation lock enforces at-most-one writer process (spec design
// note, §9); callers that prefer explicit dependency injection can
// construct their own *Registry per command instead — both are supported.
type Registry struct {
	home string
	path string

	loaded    bool
	migrated  bool
	version   string
	projects  map[string]*Project
	libraries map[string]*Library
	stores    map[string]*StoreEntry

	// index is a radix tree over store keys ("lib:commit:platform"),
	// generalizing the teacher's typed_radix.go wrapper idiom, so that
	// prefix scans like GetLibraryPlatforms don't need a linear map walk.
	index *radix.Tree
}

// New returns an unloaded Registry rooted at home. Call Load before using
// it.
func New(home string) *Registry {
	return &Registry{
		home: home,
		path: filepath.Join(home, FileName),
	}
}

// Load reads registry.json (an empty template if missing), then runs the
// legacy-reference migration pass (spec §4.4, §9). If migration changed
// anything, the registry is saved immediately.
func (r *Registry) Load() error {
	raw, err := r.readRaw()
	if err != nil {
		return errors.Wrap(err, "loading registry")
	}

	r.version = raw.Version
	if r.version == "" {
		r.version = SchemaVersion
	}
	r.projects = raw.Projects
	r.libraries = raw.Libraries
	r.stores = raw.Stores
	if r.projects == nil {
		r.projects = make(map[string]*Project)
	}
	if r.libraries == nil {
		r.libraries = make(map[string]*Library)
	}
	if r.stores == nil {
		r.stores = make(map[string]*StoreEntry)
	}

	r.rebuildIndex()

	changed := r.migrateLegacyReferences()
	r.loaded = true

	if changed {
		return r.Save()
	}
	return nil
}

func (r *Registry) readRaw() (*rawRegistry, error) {
	f, err := os.Open(r.path)
	if os.IsNotExist(err) {
		return &rawRegistry{Version: SchemaVersion}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw := &rawRegistry{}
	if err := json.NewDecoder(f).Decode(raw); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", r.path)
	}
	return raw, nil
}

func (r *Registry) rebuildIndex() {
	r.index = radix.New()
	for k := range r.stores {
		r.index.Insert(k, struct{}{})
	}
}

func (r *Registry) requireLoaded() error {
	if !r.loaded {
		return errors.New("registry: Load must be called before use")
	}
	return nil
}

// Save persists the Registry atomically: write to registry.json.tmp, fsync,
// rename (spec §4.4), under a file lock (spec §5) for defense in depth on
// top of whatever global operation lock the caller already holds.
func (r *Registry) Save() error {
	if err := r.requireLoaded(); err != nil {
		return err
	}

	fl := lockfile.New(r.path + ".savelock")
	ok, err := fl.TryAcquire()
	if err != nil {
		return errors.Wrap(err, "locking registry for save")
	}
	if ok {
		defer fl.Release()
	}

	raw := rawRegistry{
		Version:   r.version,
		Projects:  r.projects,
		Libraries: r.libraries,
		Stores:    r.stores,
	}

	tmp := r.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating registry temp file")
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(raw); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "encoding registry")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "fsyncing registry temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "closing registry temp file")
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return errors.Wrap(err, "renaming registry into place")
	}
	return nil
}

// --- Projects ---------------------------------------------------------

// GetProject returns the project with the given fingerprint.
func (r *Registry) GetProject(fingerprint string) (*Project, bool) {
	p, ok := r.projects[fingerprint]
	return p, ok
}

// GetProjectByPath looks up a project by its filesystem path, deriving the
// fingerprint internally.
func (r *Registry) GetProjectByPath(path string) (*Project, bool) {
	return r.GetProject(pathutil.HashPath(path))
}

// ListProjects returns every project, sorted by fingerprint for
// deterministic output.
func (r *Registry) ListProjects() []*Project {
	out := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out
}

// AddProject inserts or replaces a project record, keyed by its path
// fingerprint.
func (r *Registry) AddProject(p *Project) {
	if p.Fingerprint == "" {
		p.Fingerprint = pathutil.HashPath(p.Path)
	}
	r.projects[p.Fingerprint] = p
}

// UpdateProject applies patch to the named project's fields in place, via
// the supplied mutator, and reports whether the project existed.
func (r *Registry) UpdateProject(fingerprint string, patch func(*Project)) bool {
	p, ok := r.projects[fingerprint]
	if !ok {
		return false
	}
	patch(p)
	return true
}

// RemoveProject removes a project and, per spec §4.4, additionally removes
// its fingerprint from every StoreEntry.usedBy for every platform of each
// of its dependencies (not just the primary platform), setting unlinkedAt
// on any entry that became empty as a result.
func (r *Registry) RemoveProject(fingerprint string) bool {
	p, ok := r.projects[fingerprint]
	if !ok {
		return false
	}

	now := time.Now()
	for _, dep := range p.Dependencies {
		for _, key := range r.storeKeysForLibrary(dep.LibName, dep.Commit) {
			r.removeStoreReferenceAt(key, fingerprint, now)
		}
	}

	delete(r.projects, fingerprint)
	return true
}

// CleanStaleProjects removes any project whose path no longer exists on
// disk, returning the removed fingerprints.
func (r *Registry) CleanStaleProjects() []string {
	var removed []string
	for fp, p := range r.projects {
		if _, err := os.Stat(p.Path); os.IsNotExist(err) {
			r.RemoveProject(fp)
			removed = append(removed, fp)
		}
	}
	sort.Strings(removed)
	return removed
}

// CleanStaleReferences purges fingerprints from usedBy that no longer map
// to an existing Project, re-applying the unlinkedAt rule on entries that
// become empty.
func (r *Registry) CleanStaleReferences() int {
	now := time.Now()
	n := 0
	for key, entry := range r.stores {
		kept := entry.UsedBy[:0:0]
		changed := false
		for _, fp := range entry.UsedBy {
			if _, ok := r.projects[fp]; ok {
				kept = append(kept, fp)
			} else {
				changed = true
				n++
			}
		}
		if changed {
			entry.UsedBy = kept
			if len(entry.UsedBy) == 0 && entry.UnlinkedAt == nil {
				entry.UnlinkedAt = &now
			}
			r.stores[key] = entry
		}
	}
	return n
}

// --- Libraries ----------------------------------------------------------

// GetLibrary returns the logical library record for (libName, commit).
func (r *Registry) GetLibrary(libName, commit string) (*Library, bool) {
	l, ok := r.libraries[LibraryKey(libName, commit)]
	return l, ok
}

// AddLibrary inserts or replaces a library record.
func (r *Registry) AddLibrary(l *Library) {
	r.libraries[l.Key()] = l
}

// RemoveLibrary removes a library record.
func (r *Registry) RemoveLibrary(libName, commit string) {
	delete(r.libraries, LibraryKey(libName, commit))
}

// --- Store entries --------------------------------------------------------

// GetStore returns the store entry for the given key
// ("libName:commit:platform").
func (r *Registry) GetStore(key string) (*StoreEntry, bool) {
	s, ok := r.stores[key]
	return s, ok
}

// AddStore inserts or replaces a store entry and updates the radix index.
func (r *Registry) AddStore(s *StoreEntry) {
	key := s.Key()
	r.stores[key] = s
	r.index.Insert(key, struct{}{})
}

// UpdateStore applies a mutator to an existing store entry.
func (r *Registry) UpdateStore(key string, patch func(*StoreEntry)) bool {
	s, ok := r.stores[key]
	if !ok {
		return false
	}
	patch(s)
	return true
}

// RemoveStore removes a store entry and updates the radix index.
func (r *Registry) RemoveStore(key string) {
	delete(r.stores, key)
	r.index.Delete(key)
}

// AddStoreReference idempotently inserts project into the store entry's
// usedBy, clearing unlinkedAt.
func (r *Registry) AddStoreReference(key, fingerprint string) bool {
	entry, ok := r.stores[key]
	if !ok {
		return false
	}
	if !hasProject(entry.UsedBy, fingerprint) {
		entry.UsedBy = append(entry.UsedBy, fingerprint)
	}
	entry.UnlinkedAt = nil
	return true
}

// RemoveStoreReference removes project from usedBy if present; if usedBy
// becomes empty and unlinkedAt is not already set, sets it to now.
func (r *Registry) RemoveStoreReference(key, fingerprint string) bool {
	return r.removeStoreReferenceAt(key, fingerprint, time.Now())
}

func (r *Registry) removeStoreReferenceAt(key, fingerprint string, now time.Time) bool {
	entry, ok := r.stores[key]
	if !ok {
		return false
	}
	updated, removed := removeProjectFrom(entry.UsedBy, fingerprint)
	if !removed {
		return false
	}
	entry.UsedBy = updated
	if len(entry.UsedBy) == 0 && entry.UnlinkedAt == nil {
		entry.UnlinkedAt = &now
	}
	return true
}

// GetLibraryPlatforms derives the set of platforms materialized for
// (libName, commit) from existing StoreEntry keys, not from Library.Platforms
// (spec §4.4: Library.Platforms is informational only).
func (r *Registry) GetLibraryPlatforms(libName, commit string) []platform.Platform {
	var out []platform.Platform
	for _, key := range r.storeKeysForLibrary(libName, commit) {
		entry := r.stores[key]
		out = append(out, entry.Platform)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// storeKeysForLibrary returns every store key with prefix "libName:commit:",
// using the radix index's prefix walk.
func (r *Registry) storeKeysForLibrary(libName, commit string) []string {
	prefix := libName + ":" + commit + ":"
	var keys []string
	r.index.WalkPrefix(prefix, func(s string, _ interface{}) bool {
		keys = append(keys, s)
		return false
	})
	sort.Strings(keys)
	return keys
}

// ListStores returns every store entry, sorted by key.
func (r *Registry) ListStores() []*StoreEntry {
	out := make([]*StoreEntry, 0, len(r.stores))
	for _, s := range r.stores {
		out = append(out, s)
	}
	sortStoresByKey(out)
	return out
}

// GetUnreferencedStores returns every store entry whose usedBy is currently
// empty.
func (r *Registry) GetUnreferencedStores() []*StoreEntry {
	var out []*StoreEntry
	for _, s := range r.stores {
		if len(s.UsedBy) == 0 {
			out = append(out, s)
		}
	}
	sortStoresByKey(out)
	return out
}

// GetUnusedStores returns unreferenced entries unlinked for more than days.
func (r *Registry) GetUnusedStores(days int) []*StoreEntry {
	cutoff := time.Now().AddDate(0, 0, -days)
	var out []*StoreEntry
	for _, s := range r.GetUnreferencedStores() {
		if s.UnlinkedAt != nil && s.UnlinkedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// GetPendingUnusedStores returns unreferenced entries still within their
// grace period (i.e. not yet eligible for GetUnusedStores).
func (r *Registry) GetPendingUnusedStores(days int) []*StoreEntry {
	cutoff := time.Now().AddDate(0, 0, -days)
	var out []*StoreEntry
	for _, s := range r.GetUnreferencedStores() {
		if s.UnlinkedAt == nil || !s.UnlinkedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// GetStoresForHalfClean implements the LRU-biased eviction candidate set:
// among unreferenced entries, sort ascending by unlinkedAt (unset treated
// as +infinity, so oldest-unlinked-first), accumulate sizes until at least
// half of their total bytes are covered, and return that prefix.
func (r *Registry) GetStoresForHalfClean() []*StoreEntry {
	unreferenced := r.GetUnreferencedStores()
	if len(unreferenced) == 0 {
		return nil
	}

	var total int64
	for _, s := range unreferenced {
		total += s.Size
	}

	sort.Slice(unreferenced, func(i, j int) bool {
		a, b := unreferenced[i].UnlinkedAt, unreferenced[j].UnlinkedAt
		if a == nil && b == nil {
			return unreferenced[i].Key() < unreferenced[j].Key()
		}
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Before(*b)
	})

	var acc int64
	half := total / 2
	var out []*StoreEntry
	for _, s := range unreferenced {
		out = append(out, s)
		acc += s.Size
		if acc >= half {
			break
		}
	}
	return out
}

func sortStoresByKey(s []*StoreEntry) {
	sort.Slice(s, func(i, j int) bool { return s[i].Key() < s[j].Key() })
}

// SpaceStats reports the actual-vs-theoretical Store footprint (spec §4.4).
type SpaceStats struct {
	ActualSize      int64
	TheoreticalSize int64
	Saved           int64
}

// SpaceStats computes the Store de-duplication savings:
// actualSize = Σ size; theoreticalSize = Σ size × max(|usedBy|, 1).
func (r *Registry) SpaceStats() SpaceStats {
	var stats SpaceStats
	for _, s := range r.stores {
		stats.ActualSize += s.Size
		n := len(s.UsedBy)
		if n < 1 {
			n = 1
		}
		stats.TheoreticalSize += s.Size * int64(n)
	}
	stats.Saved = stats.TheoreticalSize - stats.ActualSize
	return stats
}
