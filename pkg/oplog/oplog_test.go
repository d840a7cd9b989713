package oplog

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecordAndParse(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	if err := l.Record("normalize", P("pad", 2048), P("floor", 1e-6), P("background", true)); err != nil {
		t.Fatal(err)
	}
	if err := l.Record("import", P("path", "/data/my scan.nc")); err != nil {
		t.Fatal(err)
	}
	if err := l.Record("free"); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "normalize pad=2048 floor=1e-06 background=true" {
		t.Errorf("line = %q", lines[0])
	}

	entries, err := Parse(strings.NewReader("# comment\n\n" + buf.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("parsed %d entries, want 3", len(entries))
	}

	pad, err := entries[0].Int("pad", 0)
	if err != nil || pad != 2048 {
		t.Errorf("pad = %d, %v", pad, err)
	}
	floor, err := entries[0].Float("floor", 0)
	if err != nil || floor != 1e-6 {
		t.Errorf("floor = %v, %v", floor, err)
	}
	bg, err := entries[0].Bool("background", false)
	if err != nil || !bg {
		t.Errorf("background = %v, %v", bg, err)
	}
	if got := entries[1].Value("path", ""); got != "/data/my scan.nc" {
		t.Errorf("path = %q", got)
	}
	if entries[2].Op != "free" || len(entries[2].Params) != 0 {
		t.Errorf("free entry = %+v", entries[2])
	}
	if entries[0].Line != 3 {
		t.Errorf("line number = %d, want 3", entries[0].Line)
	}
}

func TestParseDefaultsAndErrors(t *testing.T) {
	entries, err := Parse(strings.NewReader("center method=vo\n"))
	if err != nil {
		t.Fatal(err)
	}
	if tol, _ := entries[0].Float("tol", 0.25); tol != 0.25 {
		t.Errorf("default tol = %v", tol)
	}
	if _, err := entries[0].Int("method", 0); err == nil {
		t.Error("expected error parsing vo as int")
	}

	if _, err := Parse(strings.NewReader("center novalue\n")); err == nil {
		t.Error("expected error for missing '='")
	}
	if _, err := Parse(strings.NewReader("import path=\"unterminated\n")); err == nil {
		t.Error("expected error for bad quoting")
	}
}

func TestOpenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logfile.txt")
	for i := 0; i < 2; i++ {
		l, err := Open(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := l.Record("free"); err != nil {
			t.Fatal(err)
		}
		if err := l.Close(); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("parsed %d entries, want 2", len(entries))
	}
}

func TestNilLogDiscards(t *testing.T) {
	var l *Log
	if err := l.Record("free"); err != nil {
		t.Errorf("nil log Record = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("nil log Close = %v", err)
	}
}
