// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package platform implements the canonical platform key model described in
// the design: a closed set of target platform values, their short CLI
// aliases, the downloader's base-key grouping, and the General sentinel used
// for platform-neutral libraries.
package platform

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Platform is one of the canonical, closed-set target values TanmiDock
// understands. The zero value is not a valid Platform.
type Platform string

// General is the distinguished sentinel meaning "content-addressed by
// library, not by target" (GENERAL_PLATFORM, a.k.a. _shared).
const General Platform = "_shared"

// The canonical platform values.
const (
	MacOS         Platform = "macOS"
	MacOSAsan     Platform = "macOS-asan"
	Win           Platform = "Win"
	IOS           Platform = "iOS"
	IOSAsan       Platform = "iOS-asan"
	Android       Platform = "android"
	AndroidAsan   Platform = "android-asan"
	AndroidHwasan Platform = "android-hwasan"
	Ubuntu        Platform = "ubuntu"
	Wasm          Platform = "wasm"
	Ohos          Platform = "ohos"
)

// All lists every canonical, concrete (non-General) platform value.
var All = []Platform{
	MacOS, MacOSAsan, Win, IOS, IOSAsan, Android, AndroidAsan, AndroidHwasan,
	Ubuntu, Wasm, Ohos,
}

// cliKeys maps a short CLI key to its canonical platform.
var cliKeys = map[string]Platform{
	"mac":     MacOS,
	"win":     Win,
	"ios":     IOS,
	"android": Android,
	"linux":   Ubuntu,
	"wasm":    Wasm,
	"ohos":    Ohos,
}

// baseKeys maps a downloader base key to the canonical set it expands to,
// including sanitizer variants. The downloader returns every variant for a
// base key regardless of which sanitizer the caller actually wants; callers
// use this map to know the full candidate set and then prune what they
// didn't ask for (see internal/downloader).
var baseKeys = map[string][]Platform{
	"mac":     {MacOS, MacOSAsan},
	"win":     {Win},
	"ios":     {IOS, IOSAsan},
	"android": {Android, AndroidAsan, AndroidHwasan},
	"linux":   {Ubuntu},
	"wasm":    {Wasm},
	"ohos":    {Ohos},
}

// looseInput maps loose/case-variant spellings (as a user or an older
// manifest might write them) to the canonical form.
var looseInput = map[string]Platform{
	"macos":          MacOS,
	"macos-asan":     MacOSAsan,
	"win":            Win,
	"windows":        Win,
	"ios":            IOS,
	"ios-asan":       IOSAsan,
	"android":        Android,
	"android-asan":   AndroidAsan,
	"android-hwasan": AndroidHwasan,
	"ubuntu":         Ubuntu,
	"linux":          Ubuntu,
	"wasm":           Wasm,
	"ohos":           Ohos,
	"_shared":        General,
	"shared":         General,
	"general":        General,
}

// canonicalSet is the set of valid canonical values, for fast membership
// checks from isPlatformDir and Canonicalize.
var canonicalSet = func() map[Platform]struct{} {
	m := make(map[Platform]struct{}, len(All)+1)
	for _, p := range All {
		m[p] = struct{}{}
	}
	m[General] = struct{}{}
	return m
}()

// IsValid reports whether p is one of the canonical platform values
// (including General).
func IsValid(p Platform) bool {
	_, ok := canonicalSet[p]
	return ok
}

// FromCLIKey resolves a short CLI alias (e.g. "mac") to its canonical
// platform value.
func FromCLIKey(key string) (Platform, error) {
	if p, ok := cliKeys[strings.ToLower(key)]; ok {
		return p, nil
	}
	return "", errors.Errorf("unknown platform key %q", key)
}

// BaseKeysFor projects a set of requested platforms onto their downloader
// base keys, de-duplicated. The order is stable (sorted) so that downloader
// invocations are deterministic.
func BaseKeysFor(platforms []Platform) []string {
	seen := make(map[string]struct{})
	for _, p := range platforms {
		for base, variants := range baseKeys {
			for _, v := range variants {
				if v == p {
					seen[base] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// VariantsForBaseKey returns every canonical platform variant (including
// sanitizers) that the downloader will materialize for a given base key.
func VariantsForBaseKey(base string) []Platform {
	vs := baseKeys[strings.ToLower(base)]
	out := make([]Platform, len(vs))
	copy(out, vs)
	return out
}

// Canonicalize normalizes loose input (e.g. "macos", "MACOS", "Windows")
// into the canonical platform form. Ingestion boundaries (manifest parsing,
// CLI flags, downloader output) must call this before the value is used
// anywhere else, per invariant 6.
func Canonicalize(input string) (Platform, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("empty platform value")
	}
	if IsValid(Platform(trimmed)) {
		return Platform(trimmed), nil
	}
	if p, ok := looseInput[strings.ToLower(trimmed)]; ok {
		return p, nil
	}
	return "", errors.Errorf("unrecognized platform value %q", input)
}

// IsPlatformDir reports whether name case-normalizes to a canonical
// platform value (General is deliberately excluded: it is a distinct kind
// of directory, handled separately by callers such as absorbLib).
func IsPlatformDir(name string) bool {
	p, err := Canonicalize(name)
	if err != nil {
		return false
	}
	return p != General
}

// Set is a small ordered set of platforms, used wherever the spec speaks of
// "a set of target platforms".
type Set map[Platform]struct{}

// NewSet builds a Set from a slice, canonicalizing nothing (callers are
// expected to have canonicalized already).
func NewSet(ps ...Platform) Set {
	s := make(Set, len(ps))
	for _, p := range ps {
		s[p] = struct{}{}
	}
	return s
}

// Has reports set membership.
func (s Set) Has(p Platform) bool {
	_, ok := s[p]
	return ok
}

// Add inserts p into the set.
func (s Set) Add(p Platform) { s[p] = struct{}{} }

// Slice returns the set's members in sorted order, for deterministic
// output.
func (s Set) Slice() []Platform {
	out := make([]Platform, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sub returns a new set containing members of s not present in other.
func (s Set) Sub(other Set) Set {
	out := make(Set)
	for p := range s {
		if !other.Has(p) {
			out.Add(p)
		}
	}
	return out
}
