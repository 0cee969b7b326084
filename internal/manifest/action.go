// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifest

import (
	"strings"

	"github.com/pkg/errors"
)

// NestedInstall is the decoded form of an Action.Command that starts with
// "codepac install" (spec §4.8): a nested dependency install of named
// sub-libraries from a sub-manifest found under ConfigDir.
type NestedInstall struct {
	Libraries     []string
	ConfigDir     string
	DisableAction bool
}

// ParseNestedInstall parses an Action's command string. An empty Libraries
// list means "all libraries in the sub-manifest".
func ParseNestedInstall(command string) (*NestedInstall, error) {
	fields := strings.Fields(command)
	if len(fields) < 2 || fields[0] != "codepac" || fields[1] != "install" {
		return nil, errors.Errorf("not a nested install command: %q", command)
	}

	ni := &NestedInstall{}
	rest := fields[2:]

	i := 0
	for ; i < len(rest); i++ {
		if rest[i] == "--configdir" || rest[i] == "--disable_action" {
			break
		}
		ni.Libraries = append(ni.Libraries, rest[i])
	}

	for ; i < len(rest); i++ {
		switch rest[i] {
		case "--disable_action":
			ni.DisableAction = true
		case "--configdir":
			if i+1 >= len(rest) {
				return nil, errors.Errorf("--configdir missing a value in command: %q", command)
			}
			i++
			ni.ConfigDir = rest[i]
		default:
			return nil, errors.Errorf("unexpected token %q in command: %q", rest[i], command)
		}
	}

	return ni, nil
}
