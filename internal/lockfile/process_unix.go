// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !windows

package lockfile

import (
	"os"
	"syscall"
)

// processAlive reports whether pid refers to a live process, using the
// classic zero-signal probe: sending signal 0 performs error checking
// without actually sending a signal.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
