// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !windows
// +build !windows

package linker

import "os"

// makeDirLink creates a directory symlink at local pointing at target.
func makeDirLink(target, local string) error {
	return os.Symlink(target, local)
}
