// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package lockfile

import "os"

// processAlive reports whether pid refers to a live process. Windows does
// not support the unix zero-signal probe; os.FindProcess already opens a
// handle to the process, which fails if it does not exist.
func processAlive(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
