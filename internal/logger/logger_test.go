package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestDebugIsGated(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		Init(false)
		SetOutput(os.Stderr)
	})

	Init(false)
	Debug("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected no debug output, got %q", buf.String())
	}

	Init(true)
	buf.Reset()
	Debug("shown %d", 2)
	if !strings.Contains(buf.String(), "DEBUG: ") || !strings.Contains(buf.String(), "shown 2") {
		t.Fatalf("expected debug line, got %q", buf.String())
	}
}

func TestLevelsArePrefixed(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	Info("a")
	Warn("b")
	Error("c")
	out := buf.String()
	for _, want := range []string{"INFO: ", "WARN: ", "ERROR: "} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}
