package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func withOutput(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	Init(lvl)
	t.Cleanup(func() {
		Init(LevelOff)
	})
	return buf
}

func TestInit_OffPrintsNothing(t *testing.T) {
	buf := withOutput(t, LevelOff)
	Info("hidden")
	Error(errors.New("hidden"))
	if buf.Len() != 0 {
		t.Errorf("expected no output at level 0, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := withOutput(t, LevelLive)
	Info("info line")
	Tick(7)
	Verbose("verbose line")
	GPIO("WritePin", 17, true)

	got := buf.String()
	if !strings.Contains(got, "[INFO] info line") {
		t.Errorf("missing info line in %q", got)
	}
	if !strings.Contains(got, "Tick #7") {
		t.Errorf("missing tick line in %q", got)
	}
	if strings.Contains(got, "verbose line") {
		t.Errorf("verbose line should be filtered at level 2: %q", got)
	}
	if strings.Contains(got, "[GPIO]") {
		t.Errorf("GPIO line should be filtered at level 2: %q", got)
	}
}

func TestPrefix(t *testing.T) {
	buf := withOutput(t, LevelInfo)
	Info("hello")
	if !strings.Contains(buf.String(), "[lifelog] ") {
		t.Errorf("expected [lifelog] prefix, got %q", buf.String())
	}
}

func TestIsEnabled(t *testing.T) {
	withOutput(t, LevelVerbose)
	if !IsEnabled(LevelInfo) || !IsEnabled(LevelVerbose) {
		t.Error("levels up to verbose should be enabled")
	}
	if IsEnabled(LevelTrace) {
		t.Error("trace should not be enabled at level 3")
	}
}

func TestFmt_DisabledReturnsEmpty(t *testing.T) {
	withOutput(t, LevelOff)
	if s := Fmt("%d", 42); s != "" {
		t.Errorf("Fmt = %q, want empty when disabled", s)
	}
}
