// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/tanmi-dock/tanmidock/internal/integrity"
)

// CheckReport is the JSON/human rendering of one integrity.Report.
type CheckReport struct {
	InvalidProjects  []string                   `json:"invalidProjects,omitempty"`
	DanglingLinks    []integrity.DanglingLink   `json:"danglingLinks,omitempty"`
	OrphanLibraries  []integrity.OrphanLibrary  `json:"orphanLibraries,omitempty"`
	MissingLibraries []integrity.MissingLibrary `json:"missingLibraries,omitempty"`
	StaleReferences  []integrity.StaleReference `json:"staleReferences,omitempty"`
}

// NewCheckReport stamps an integrity.Report into its renderable form.
func NewCheckReport(r *integrity.Report) *CheckReport {
	cr := &CheckReport{
		DanglingLinks:    r.DanglingLinks,
		OrphanLibraries:  r.OrphanLibraries,
		MissingLibraries: r.MissingLibraries,
		StaleReferences:  r.StaleReferences,
	}
	for _, p := range r.InvalidProjects {
		cr.InvalidProjects = append(cr.InvalidProjects, p.Path)
	}
	return cr
}

// Empty reports whether there is nothing to show.
func (cr *CheckReport) Empty() bool {
	return len(cr.InvalidProjects) == 0 &&
		len(cr.DanglingLinks) == 0 &&
		len(cr.OrphanLibraries) == 0 &&
		len(cr.MissingLibraries) == 0 &&
		len(cr.StaleReferences) == 0
}

// WriteJSON encodes cr as indented JSON.
func (cr *CheckReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cr)
}

// rawSection mirrors txn_writer.go's rawLockedProjectDiffs: a thin wrapper
// so each non-empty defect category gets its own TOML table when rendered.
type rawSection struct {
	Items interface{} `toml:"items"`
}

// WriteTree renders cr as a TOML-formatted defect tree for `check`'s
// non-JSON output, reusing go-toml the way the teacher's
// LockDiff.Format renders lock diffs: one labeled, TOML-marshaled section
// per non-empty category.
func (cr *CheckReport) WriteTree(w io.Writer) error {
	sections := []struct {
		label string
		items interface{}
		n     int
	}{
		{"Invalid projects", cr.InvalidProjects, len(cr.InvalidProjects)},
		{"Dangling links", cr.DanglingLinks, len(cr.DanglingLinks)},
		{"Orphan libraries", cr.OrphanLibraries, len(cr.OrphanLibraries)},
		{"Missing libraries", cr.MissingLibraries, len(cr.MissingLibraries)},
		{"Stale references", cr.StaleReferences, len(cr.StaleReferences)},
	}

	if cr.Empty() {
		_, err := fmt.Fprintln(w, "no defects found")
		return err
	}

	for _, s := range sections {
		if s.n == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s:\n", s.label); err != nil {
			return err
		}
		chunk, err := toml.Marshal(rawSection{Items: s.items})
		if err != nil {
			return errors.Wrapf(err, "formatting %s", s.label)
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
