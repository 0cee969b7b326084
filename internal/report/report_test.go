// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tanmi-dock/tanmidock/internal/classify"
	"github.com/tanmi-dock/tanmidock/internal/integrity"
	"github.com/tanmi-dock/tanmidock/internal/platform"
	"github.com/tanmi-dock/tanmidock/internal/registry"
)

func TestNewDependencyRow(t *testing.T) {
	ds := &classify.DependencyStatus{
		LibName:            "zlib",
		Commit:             "abcdef1234567890",
		Kind:               classify.KindMissing,
		RequestedPlatforms: []platform.Platform{platform.MacOS, platform.Win},
		MissingPlatforms:   []platform.Platform{platform.Win},
	}
	row := NewDependencyRow(ds)
	if row.Kind != "MISSING" {
		t.Fatalf("expected MISSING, got %s", row.Kind)
	}
	if len(row.Platforms) != 2 || len(row.Missing) != 1 {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestStatusReportWriteJSON(t *testing.T) {
	r := &StatusReport{
		ProjectPath: "/proj",
		Fingerprint: "abc123",
		Dependencies: []DependencyRow{
			{LibName: "zlib", Commit: "abc", Kind: "LINKED", Platforms: []string{"macOS"}},
		},
	}
	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var decoded StatusReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ProjectPath != "/proj" || len(decoded.Dependencies) != 1 {
		t.Fatalf("round-trip mismatch: %+v", decoded)
	}
}

func TestStatusReportWriteTableSortsByLibName(t *testing.T) {
	r := &StatusReport{
		Dependencies: []DependencyRow{
			{LibName: "zlib", Commit: "deadbeefcafefeed", Kind: "LINKED", Platforms: []string{"macOS"}},
			{LibName: "boost", Commit: "cafe", Kind: "MISSING"},
		},
	}
	var buf bytes.Buffer
	if err := r.WriteTable(&buf); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	out := buf.String()
	if strings.Index(out, "boost") > strings.Index(out, "zlib") {
		t.Fatalf("expected boost before zlib in sorted table, got:\n%s", out)
	}
	if !strings.Contains(out, "deadbeefcafe ") || strings.Contains(out, "deadbeefcafef") {
		t.Fatalf("expected commit to be truncated to 12 chars, got:\n%s", out)
	}
}

func TestStatusReportWriteTreeGroupsByKind(t *testing.T) {
	r := &StatusReport{
		Dependencies: []DependencyRow{
			{LibName: "zlib", Commit: "abc", Kind: "LINKED", Platforms: []string{"macOS"}},
			{LibName: "boost", Commit: "cafe", Kind: "MISSING"},
			{LibName: "curl", Commit: "beef", Kind: "LINKED", Platforms: []string{"macOS"}},
		},
	}
	var buf bytes.Buffer
	if err := r.WriteTree(&buf); err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "LINKED:") || !strings.Contains(out, "MISSING:") {
		t.Fatalf("expected both group headers, got:\n%s", out)
	}
	if strings.Index(out, "LINKED:") > strings.Index(out, "MISSING:") {
		t.Fatalf("expected LINKED before MISSING (sorted), got:\n%s", out)
	}
}

func TestCheckReportEmpty(t *testing.T) {
	cr := NewCheckReport(&integrity.Report{})
	if !cr.Empty() {
		t.Fatalf("expected an empty report")
	}
	var buf bytes.Buffer
	if err := cr.WriteTree(&buf); err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	if !strings.Contains(buf.String(), "no defects found") {
		t.Fatalf("expected the no-defects message, got: %s", buf.String())
	}
}

func TestCheckReportWriteTreeNonEmpty(t *testing.T) {
	ir := &integrity.Report{
		InvalidProjects: []*registry.Project{{Path: "/gone"}},
		OrphanLibraries: []integrity.OrphanLibrary{{LibName: "zlib", Commit: "abc", Platform: platform.MacOS, Size: 1024}},
	}
	cr := NewCheckReport(ir)
	if cr.Empty() {
		t.Fatalf("expected a non-empty report")
	}

	var buf bytes.Buffer
	if err := cr.WriteTree(&buf); err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Invalid projects:") || !strings.Contains(out, "Orphan libraries:") {
		t.Fatalf("expected both section labels, got:\n%s", out)
	}
	if strings.Contains(out, "Dangling links:") {
		t.Fatalf("expected empty sections to be skipped, got:\n%s", out)
	}
}

func TestCheckReportWriteJSONOmitsEmptySections(t *testing.T) {
	cr := NewCheckReport(&integrity.Report{
		StaleReferences: []integrity.StaleReference{{StoreKey: "zlib:abc:macOS", LibName: "zlib"}},
	})
	var buf bytes.Buffer
	if err := cr.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := raw["danglingLinks"]; ok {
		t.Fatalf("expected danglingLinks to be omitted when empty")
	}
	if _, ok := raw["staleReferences"]; !ok {
		t.Fatalf("expected staleReferences to be present")
	}
}
