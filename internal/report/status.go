// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report renders the `status` and `check` commands' output, in
// both the JSON and human-readable forms spec §6.1 requires.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/tanmi-dock/tanmidock/internal/classify"
	"github.com/tanmi-dock/tanmidock/internal/platform"
)

// DependencyRow is one line of `status` output: a dependency's classifier
// verdict, stamped with its library name for JSON/table rendering.
type DependencyRow struct {
	LibName   string   `json:"libName"`
	Commit    string   `json:"commit"`
	Kind      string   `json:"status"`
	Platforms []string `json:"platforms"`
	Missing   []string `json:"missingPlatforms,omitempty"`
	General   bool     `json:"general,omitempty"`
}

// NewDependencyRow stamps a classify.DependencyStatus into a renderable
// row.
func NewDependencyRow(ds *classify.DependencyStatus) DependencyRow {
	return DependencyRow{
		LibName:   ds.LibName,
		Commit:    ds.Commit,
		Kind:      ds.Kind.String(),
		Platforms: platformStrings(ds.RequestedPlatforms),
		Missing:   platformStrings(ds.MissingPlatforms),
		General:   ds.General,
	}
}

func platformStrings(ps []platform.Platform) []string {
	if len(ps) == 0 {
		return nil
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// StatusReport is the full `status` output for one project.
type StatusReport struct {
	ProjectPath  string          `json:"projectPath"`
	Fingerprint  string          `json:"fingerprint"`
	Dependencies []DependencyRow `json:"dependencies"`
}

// SortedDependencies returns r.Dependencies sorted by library name, for
// deterministic rendering.
func (r *StatusReport) SortedDependencies() []DependencyRow {
	out := make([]DependencyRow, len(r.Dependencies))
	copy(out, r.Dependencies)
	sort.Slice(out, func(i, j int) bool { return out[i].LibName < out[j].LibName })
	return out
}

// WriteJSON encodes r as indented JSON.
func (r *StatusReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteTable renders r as a tabwriter-aligned column table, in the style
// of the teacher's `status` command.
func (r *StatusReport) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LIBRARY\tCOMMIT\tSTATUS\tPLATFORMS")
	for _, row := range r.SortedDependencies() {
		commit := row.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		plats := "-"
		if len(row.Platforms) > 0 {
			plats = joinComma(row.Platforms)
		}
		if row.General {
			plats = "_shared"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.LibName, commit, row.Kind, plats)
	}
	return tw.Flush()
}

// WriteTree renders r grouped by classifier status, each group as its own
// tabwriter-aligned block, for `status --tree`.
func (r *StatusReport) WriteTree(w io.Writer) error {
	byKind := make(map[string][]DependencyRow)
	var kinds []string
	for _, row := range r.SortedDependencies() {
		if _, seen := byKind[row.Kind]; !seen {
			kinds = append(kinds, row.Kind)
		}
		byKind[row.Kind] = append(byKind[row.Kind], row)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		if _, err := fmt.Fprintf(w, "%s:\n", kind); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, row := range byKind[kind] {
			commit := row.Commit
			if len(commit) > 12 {
				commit = commit[:12]
			}
			plats := "-"
			if len(row.Platforms) > 0 {
				plats = joinComma(row.Platforms)
			}
			if row.General {
				plats = "_shared"
			}
			fmt.Fprintf(tw, "\t%s\t%s\t%s\n", row.LibName, commit, plats)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func joinComma(ss []string) string {
	out := ss[0]
	for _, s := range ss[1:] {
		out += "," + s
	}
	return out
}
