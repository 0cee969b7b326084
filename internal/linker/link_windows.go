// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows
// +build windows

package linker

import "os"

// makeDirLink creates the local → target wiring on Windows. Spec §4.6 calls
// for a directory junction here; the pack carries no junction/reparse-point
// library (none of the teacher's or the other examples' vendored
// dependencies touch Windows reparse points), so this falls back to
// os.Symlink, which NTFS honors for directories given the privilege to
// create symbolic links. Unprivileged Windows accounts will see the
// permission error os.Symlink already reports; callers surface it as-is.
func makeDirLink(target, local string) error {
	return os.Symlink(target, local)
}
