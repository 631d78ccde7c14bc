package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_JSONWithUTCTime(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("helper started", "kind", "media-info", "pid", 42)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "helper started" || rec["kind"] != "media-info" {
		t.Fatalf("record = %v", rec)
	}
	ts, _ := rec["time"].(string)
	if !strings.HasSuffix(ts, "Z") {
		t.Fatalf("time = %q, want RFC3339 UTC", ts)
	}
}

func TestNew_AutoFormatOnNonTerminalIsJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Format: "auto", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("ready")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("auto format on a buffer = %q, want JSON", buf.String())
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Format: "text", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("ready", "surfaces", 2)
	if !strings.Contains(buf.String(), "msg=ready") || !strings.Contains(buf.String(), "surfaces=2") {
		t.Fatalf("text output = %q", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Format: "text", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	child := l.With("component", "supervisor")

	child.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	if err := l.SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	child.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("derived logger did not follow SetLevel: %q", buf.String())
	}
	if err := l.SetLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"", "debug", "INFO", "warning", "error"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Errorf("ParseLevel(trace) succeeded")
	}
}

func TestRotatingFile_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "daemon.log")
	rf, err := OpenRotatingFile(path, 1, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rf.Close()

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 4; i++ {
		if _, err := rf.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s: %v", p, err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatalf("expected at most 2 rotated files, stat .3: %v", err)
	}
	info, _ := os.Stat(path)
	if info.Size() != int64(len(chunk)) {
		t.Fatalf("current size = %d, want %d", info.Size(), len(chunk))
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	l, err := New(Options{Format: "json", File: path, MaxSizeMB: 1, MaxFiles: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("written")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "written") {
		t.Fatalf("log file = %q", data)
	}
}
