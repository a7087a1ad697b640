package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intake.log")
	w, err := NewRotatingWriter(path, 64)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer w.Close()

	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 3; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current log: %v", err)
	}
	if info.Size() > 64 {
		t.Fatalf("current log size = %d, want <= 64", info.Size())
	}
}

func TestHelpersWithoutLogger(t *testing.T) {
	saved := Logger
	Logger = nil
	defer func() { Logger = saved }()

	Info("no logger", "k", "v")
	Warn("no logger")
	Error("no logger")
	Debug("no logger")
}

func TestInitWritesKeyValues(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	var buf bytes.Buffer
	Init(&buf, "debug")
	Info("listing published", "actor", "dealer-1")

	out := buf.String()
	if !strings.Contains(out, "listing published") || !strings.Contains(out, "dealer-1") {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestSanitize(t *testing.T) {
	long := strings.Repeat("a", 600)
	list := make([]interface{}, 30)
	for i := range list {
		list[i] = i
	}

	got := Sanitize(map[string]interface{}{
		"recaptchaToken": "abc",
		"Authorization":  "Bearer x",
		"actor":          "dealer-1",
		"note":           long,
		"hashes":         list,
		"nested": map[string]interface{}{
			"level2": map[string]interface{}{
				"level3": map[string]interface{}{"deep": true},
			},
		},
	})

	if got["recaptchaToken"] != redacted || got["Authorization"] != redacted {
		t.Fatalf("sensitive keys not redacted: %v", got)
	}
	if got["actor"] != "dealer-1" {
		t.Fatalf("actor = %v", got["actor"])
	}
	note := got["note"].(string)
	if len(note) != maxStringLen+3 || !strings.HasSuffix(note, "...") {
		t.Fatalf("note not truncated: len %d", len(note))
	}
	if hashes := got["hashes"].([]interface{}); len(hashes) != maxArrayLen {
		t.Fatalf("hashes len = %d, want %d", len(hashes), maxArrayLen)
	}
	level2 := got["nested"].(map[string]interface{})["level2"].(map[string]interface{})
	if level2["level3"] != truncated {
		t.Fatalf("level3 = %v, want %q", level2["level3"], truncated)
	}
}

func TestSanitizeNil(t *testing.T) {
	if Sanitize(nil) != nil {
		t.Fatal("Sanitize(nil) should be nil")
	}
}
