package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "INFO", "warn", "error"} {
		l, err := New(lvl, false)
		if err != nil {
			t.Fatalf("New(%q): %v", lvl, err)
		}
		_ = l.Sync()
	}
	if _, err := New("loud", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestDebugEnablesDebugLevel(t *testing.T) {
	l, err := New("error", true)
	if err != nil {
		t.Fatal(err)
	}
	if ce := l.Check(zapcore.DebugLevel, "debug"); ce == nil {
		t.Fatal("debug entries should be enabled under --debug")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
