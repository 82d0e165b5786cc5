package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"astrodriz/internal/deps"
	"astrodriz/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Drizzle engine", statusError, "not available", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Drizzle engine:", "[ERROR] not available")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Intake directory", statusOK, "writable", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestResultStatusLine(t *testing.T) {
	pass := resultStatusLine(preflight.Result{Name: "Intake directory", Passed: true, Detail: "writable"}, false)
	if !strings.Contains(pass, "[OK] writable") {
		t.Fatalf("expected OK line, got %q", pass)
	}
	fail := resultStatusLine(preflight.Result{Name: "Staging directory", Passed: false, Detail: "not writable"}, false)
	if !strings.Contains(fail, "[ERROR] not writable") {
		t.Fatalf("expected error line, got %q", fail)
	}
}

func TestDependencyLines(t *testing.T) {
	statuses := []deps.Status{
		{Name: "Drizzle engine", Available: false},
		{Name: "Catalog aligner", Available: true, Command: "tweakalign"},
		{Name: "WCS updater", Available: false, Optional: true, Detail: "not on PATH"},
	}
	lines := dependencyLines(statuses, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR] not available") {
		t.Fatalf("expected error detail first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[OK] Ready (command: tweakalign)") {
		t.Fatalf("expected ready detail second, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[WARN] not on PATH") {
		t.Fatalf("expected warn detail third, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "Missing tools") || !strings.Contains(lines[3], "Drizzle engine") {
		t.Fatalf("expected missing tools summary, got %q", lines[3])
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"pending":      "Pending",
		"aligning":     "Aligning",
		"needs_review": "Needs Review",
		"":             "",
	}
	for input, want := range cases {
		if got := formatStatusLabel(input); got != want {
			t.Fatalf("formatStatusLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseRunIDs(t *testing.T) {
	ids, err := parseRunIDs([]string{"3", " 12 "})
	if err != nil {
		t.Fatalf("parseRunIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 12 {
		t.Fatalf("unexpected ids: %v", ids)
	}

	for _, bad := range []string{"zero", "0", "-4"} {
		if _, err := parseRunIDs([]string{bad}); err == nil {
			t.Fatalf("parseRunIDs(%q) should fail", bad)
		}
	}
}

func TestFormatSimilarity(t *testing.T) {
	if got := formatSimilarity(nil); got != "-" {
		t.Fatalf("formatSimilarity(nil) = %q", got)
	}
	value := 0.871
	if got := formatSimilarity(&value); got != "0.871" {
		t.Fatalf("formatSimilarity = %q", got)
	}
}
