package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cjeanneret/lifelog/internal/config"
	"github.com/cjeanneret/lifelog/internal/hw/camera"
	"github.com/cjeanneret/lifelog/internal/hw/gpio"
	"github.com/cjeanneret/lifelog/internal/storage"
)

// ---------- validateCLIOverrides ----------

func TestValidateCLIOverrides_AllZero(t *testing.T) {
	if err := validateCLIOverrides(overrides{}); err != nil {
		t.Errorf("all zeros should be valid (use config values), got: %v", err)
	}
}

func TestValidateCLIOverrides_Valid(t *testing.T) {
	cases := []struct {
		name string
		o    overrides
	}{
		{"interval", overrides{IntervalSeconds: 1}},
		{"min_size", overrides{Width: 1, Height: 1}},
		{"max_size", overrides{Width: maxDimension, Height: maxDimension}},
		{"all", overrides{IntervalSeconds: 60, Width: 1920, Height: 1080}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.o); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateCLIOverrides_OutOfRange(t *testing.T) {
	cases := []struct {
		name string
		o    overrides
	}{
		{"interval_negative", overrides{IntervalSeconds: -1}},
		{"width_negative", overrides{Width: -1}},
		{"height_negative", overrides{Height: -1}},
		{"width_too_large", overrides{Width: maxDimension + 1}},
		{"height_too_large", overrides{Height: maxDimension + 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.o); err == nil {
				t.Error("expected error for out-of-range value, got nil")
			}
		})
	}
}

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	for _, input := range []string{"0", "65536", "-1", "abc", "8080.5"} {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- applyOverrides ----------

func newTestConfig(dir string) *config.Config {
	return &config.Config{
		Snapshot: config.SnapshotConfig{Width: 64, Height: 48, IntervalSeconds: 1},
		Camera:   config.CameraConfig{Type: "synthetic"},
		Indicator: config.IndicatorConfig{
			Pin: 17, SettleMs: 1, HoldMs: 1,
		},
		Storage: config.StorageConfig{
			Dir:       dir,
			IndexPath: filepath.Join(dir, "index.db"),
		},
		Defaults: config.DefaultsConfig{MockGPIO: true, ShutdownTimeoutSeconds: 5},
	}
}

func TestApplyOverrides_NonZero(t *testing.T) {
	cfg := newTestConfig("/snap")
	applyOverrides(cfg, overrides{IntervalSeconds: 30, Width: 1280, Height: 720})
	if cfg.Snapshot.IntervalSeconds != 30 || cfg.Snapshot.Width != 1280 || cfg.Snapshot.Height != 720 {
		t.Errorf("snapshot = %+v", cfg.Snapshot)
	}
}

func TestApplyOverrides_ZeroLeavesUnchanged(t *testing.T) {
	cfg := newTestConfig("/snap")
	orig := cfg.Snapshot
	applyOverrides(cfg, overrides{})
	if cfg.Snapshot != orig {
		t.Errorf("snapshot changed: %+v != %+v", cfg.Snapshot, orig)
	}
}

func TestApplyOverrides_Partial(t *testing.T) {
	cfg := newTestConfig("/snap")
	applyOverrides(cfg, overrides{Width: 320})
	if cfg.Snapshot.Width != 320 {
		t.Errorf("Width = %d, want 320", cfg.Snapshot.Width)
	}
	if cfg.Snapshot.Height != 48 || cfg.Snapshot.IntervalSeconds != 1 {
		t.Errorf("other fields changed: %+v", cfg.Snapshot)
	}
}

// ---------- newCameraFromConfig ----------

func TestNewCameraFromConfig_Types(t *testing.T) {
	cases := map[string]string{
		"synthetic": "*camera.Synthetic",
		"screen":    "*camera.Screen",
		"browser":   "*camera.Browser",
	}
	for typ, want := range cases {
		t.Run(typ, func(t *testing.T) {
			cfg := newTestConfig(t.TempDir())
			cfg.Camera.Type = typ
			cfg.Camera.Browser.URL = "http://localhost:3000/dashboard"

			cam, closeCam, err := newCameraFromConfig(nil, cfg)
			if err != nil {
				t.Fatalf("newCameraFromConfig: %v", err)
			}
			defer closeCam()
			if got := fmt.Sprintf("%T", cam); got != want {
				t.Errorf("camera = %s, want %s", got, want)
			}
		})
	}
}

func TestNewCameraFromConfig_Unsupported(t *testing.T) {
	cfg := newTestConfig(t.TempDir())
	cfg.Camera.Type = "nikon_d90_gpio"
	if _, _, err := newCameraFromConfig(nil, cfg); err == nil {
		t.Error("expected error for unsupported camera type")
	}
}

func TestNewCameraFromConfig_Indicator(t *testing.T) {
	cfg := newTestConfig(t.TempDir())
	cfg.Indicator.Enabled = true

	if _, _, err := newCameraFromConfig(nil, cfg); err == nil {
		t.Error("expected error when the indicator has no driver")
	}

	drv := gpio.NewMockDriver()
	cam, _, err := newCameraFromConfig(drv, cfg)
	if err != nil {
		t.Fatalf("newCameraFromConfig: %v", err)
	}
	if _, ok := cam.(*camera.GPIOTrigger); !ok {
		t.Fatalf("got %T, want *camera.GPIOTrigger", cam)
	}
	if lvl, _ := drv.ReadPin(17); lvl != gpio.High {
		t.Errorf("indicator pin should be parked HIGH, got %v", lvl)
	}
}

// ---------- run ----------

func TestRun_SavesUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	cfg := newTestConfig(dir)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	if err := run(ctx, cfg, 0); err != nil {
		t.Fatalf("run: %v", err)
	}

	idx, err := storage.OpenIndex(cfg.Storage.IndexPath)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer idx.Close()
	n, err := idx.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n < 1 {
		t.Errorf("indexed artifacts = %d, want at least 1", n)
	}
}

func TestRun_MissingStorageRootDropsSnapshots(t *testing.T) {
	cfg := newTestConfig(filepath.Join(t.TempDir(), "unmounted"))

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	if err := run(ctx, cfg, 0); err != nil {
		t.Fatalf("run: %v", err)
	}
}
