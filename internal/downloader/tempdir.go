// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package downloader

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// uniqueTempDir creates and returns a fresh directory named
// "tanmi-dock-<ts>-<rand>" under the OS temp dir, per spec §4.10.
func uniqueTempDir() (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", errors.Wrap(err, "generating temp dir suffix")
	}

	name := fmt.Sprintf("tanmi-dock-%d-%s", time.Now().UnixNano(), hex.EncodeToString(suffix))
	dir := filepath.Join(os.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating temp dir %s", dir)
	}
	return dir, nil
}
