package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
)

// seedLogFile writes n entries alternating between sessions "s0" and "s1".
func seedLogFile(t *testing.T, n int) string {
	t.Helper()
	tmp := t.TempDir() + "/seed.ndjson"
	f, err := os.Create(tmp)
	if err != nil {
		t.Fatalf("create seed: %v", err)
	}
	defer func() { _ = f.Close() }()
	for i := 0; i < n; i++ {
		_, _ = fmt.Fprintf(f, "{\"ts\":\"2026-01-01T00:00:00Z\",\"component\":\"test\",\"event\":\"e%d\",\"session_id\":\"s%d\"}\n", i, i%2)
	}
	return tmp
}

func readLines(t *testing.T, p string, skip int) []string {
	t.Helper()
	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("open %s: %v", p, err)
	}
	defer f.Close()
	var ls []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		if skip > 0 {
			skip--
			continue
		}
		ls = append(ls, s.Text())
	}
	return ls
}

func TestExportWritesBundleHeader(t *testing.T) {
	src := seedLogFile(t, 10)
	dest := t.TempDir()

	path, lines, err := Export(src, dest, "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if lines != 10 {
		t.Errorf("lines: want 10, got %d", lines)
	}

	header := readLines(t, path, 0)[0]
	var bundle DiagBundle
	if err := json.Unmarshal([]byte(header), &bundle); err != nil {
		t.Fatalf("unmarshal bundle header: %v", err)
	}
	if bundle.EntryCount != 10 {
		t.Errorf("entry_count: want 10, got %d", bundle.EntryCount)
	}
	if bundle.GoVersion == "" {
		t.Error("go_version missing")
	}
	if bundle.OS == "" {
		t.Error("os missing")
	}
}

func TestExportContainsAllLines(t *testing.T) {
	src := seedLogFile(t, 5)

	outPath, _, err := Export(src, t.TempDir(), "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	srcLines := readLines(t, src, 0)
	outLines := readLines(t, outPath, 1)

	if len(outLines) != len(srcLines) {
		t.Fatalf("want %d lines, got %d", len(srcLines), len(outLines))
	}
	for i := range srcLines {
		if outLines[i] != srcLines[i] {
			t.Errorf("line %d mismatch", i)
		}
	}
}

func TestExportFiltersBySession(t *testing.T) {
	src := seedLogFile(t, 7)

	outPath, n, err := Export(src, t.TempDir(), "s1")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 3 {
		t.Fatalf("lines: want 3, got %d", n)
	}
	for i, line := range readLines(t, outPath, 1) {
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if e.SessionID != "s1" {
			t.Errorf("line %d: session %q leaked into s1 export", i, e.SessionID)
		}
	}
}

func TestExportMissingFile(t *testing.T) {
	_, _, err := Export("/nonexistent/path/dualcap-debug.log", t.TempDir(), "")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want os.ErrNotExist, got %v", err)
	}
}
