package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/cjeanneret/lifelog/internal/config"
	"github.com/cjeanneret/lifelog/internal/debug"
	"github.com/cjeanneret/lifelog/internal/hw/camera"
	"github.com/cjeanneret/lifelog/internal/hw/gpio"
	"github.com/cjeanneret/lifelog/internal/logic/snapshot"
	"github.com/cjeanneret/lifelog/internal/logic/timer"
	"github.com/cjeanneret/lifelog/internal/storage"
	"github.com/cjeanneret/lifelog/internal/web"
)

// maxDimension bounds -width and -height, like snapshot.width/height in the config.
const maxDimension = 16384

// overrides holds CLI values replacing config settings; zero keeps the config value.
type overrides struct {
	IntervalSeconds int
	Width           int
	Height          int
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start the status server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	interval := flag.Int("interval", 0, "override seconds between snapshots")
	width := flag.Int("width", 0, "override snapshot width in pixels")
	height := flag.Int("height", 0, "override snapshot height in pixels")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	o := overrides{IntervalSeconds: *interval, Width: *width, Height: *height}
	if err := validateCLIOverrides(o); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, o)

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if err := run(ctx, cfg, webPort.port()); err != nil {
		log.Fatalf("lifelog: %v", err)
	}
}

// run wires the pipeline and blocks until ctx is cancelled and in-flight
// saves have drained.
func run(ctx context.Context, cfg *config.Config, port int) error {
	// Capture source
	debug.Step(1, "Initializing camera")
	var gpioDriver gpio.Driver
	if cfg.Indicator.Enabled {
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		g, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			return fmt.Errorf("init GPIO: %w", err)
		}
		defer func() {
			if err := g.Close(); err != nil {
				debug.Errorf("closing GPIO driver failed: %v", err)
			}
		}()
		gpioDriver = g
	}
	cam, closeCam, err := newCameraFromConfig(gpioDriver, cfg)
	if err != nil {
		return fmt.Errorf("init camera: %w", err)
	}
	defer func() {
		if err := closeCam(); err != nil {
			debug.Errorf("closing camera failed: %v", err)
		}
	}()
	debug.Value("Camera type", cfg.Camera.Type)

	// Storage
	debug.Step(2, "Opening storage")
	debug.PrintStruct("Storage config", cfg.Storage)
	if _, err := os.Stat(cfg.Storage.Dir); errors.Is(err, fs.ErrNotExist) {
		debug.Info("Storage root %s is missing; snapshots are dropped until it appears", cfg.Storage.Dir)
	}
	index, err := storage.OpenIndex(cfg.Storage.IndexPath)
	if err != nil {
		debug.Errorf("artifact index unavailable, continuing without it: %v", err)
		index = nil
	} else {
		defer index.Close()
	}
	selector, err := storage.NewSelector(storage.Options{
		Dir:          cfg.Storage.Dir,
		MinFreeBytes: cfg.MinFreeBytes(),
		Index:        index,
	})
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Reporting and status server
	debug.Step(3, "Starting reporters")
	stats := &snapshot.Stats{}
	reporters := snapshot.Reporters{snapshot.LogReporter{}}

	var wg sync.WaitGroup
	srvCtx, stopServer := context.WithCancel(context.Background())
	defer func() {
		stopServer()
		wg.Wait()
	}()

	if port > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		reporters = append(reporters, web.EventReporter{B: broadcaster})

		deps := web.Deps{
			Broadcaster: broadcaster,
			Stats:       stats,
			Run: web.RunConfig{
				Width:           cfg.Snapshot.Width,
				Height:          cfg.Snapshot.Height,
				IntervalSeconds: cfg.Snapshot.IntervalSeconds,
				Camera:          cfg.Camera.Type,
				StorageDir:      cfg.Storage.Dir,
			},
		}
		// A nil *storage.Index must not become a non-nil interface.
		if index != nil {
			deps.Artifacts = index
		}
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), deps)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			// The server outlives the loop until saves have drained.
			if err := srv.Run(srvCtx); err != nil {
				debug.Errorf("status server: %v", err)
			}
		}()
	}

	// Capture loop
	debug.Step(4, "Starting capture loop")
	uc := snapshot.NewUseCase(timer.Wall{}, cam, snapshot.NewPersister(selector, nil), snapshot.Options{
		Reporter:     reporters,
		Stats:        stats,
		DrainTimeout: cfg.ShutdownTimeout(),
	})
	size := camera.Size{Width: cfg.Snapshot.Width, Height: cfg.Snapshot.Height}
	err = uc.Run(ctx, size, cfg.Interval())

	debug.Summary("Run Summary")
	debug.PrintStruct("Stats", stats.Snapshot())
	return err
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config value").
func validateCLIOverrides(o overrides) error {
	if o.IntervalSeconds < 0 {
		return fmt.Errorf("interval must be positive, got %d", o.IntervalSeconds)
	}
	if o.Width < 0 || o.Width > maxDimension {
		return fmt.Errorf("width must be between 1 and %d, got %d", maxDimension, o.Width)
	}
	if o.Height < 0 || o.Height > maxDimension {
		return fmt.Errorf("height must be between 1 and %d, got %d", maxDimension, o.Height)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero values are applied.
func applyOverrides(cfg *config.Config, o overrides) {
	if o.IntervalSeconds > 0 {
		cfg.Snapshot.IntervalSeconds = o.IntervalSeconds
	}
	if o.Width > 0 {
		cfg.Snapshot.Width = o.Width
	}
	if o.Height > 0 {
		cfg.Snapshot.Height = o.Height
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

func noClose() error { return nil }

// newCameraFromConfig selects a capture source from configuration and wraps
// it in the GPIO indicator when one is enabled. The returned func releases
// the source.
func newCameraFromConfig(g gpio.Driver, cfg *config.Config) (camera.Snapshotter, func() error, error) {
	var (
		src     camera.Snapshotter
		closeFn = noClose
	)
	switch cfg.Camera.Type {
	case "synthetic":
		src = camera.NewSynthetic()
	case "screen":
		src = camera.NewScreen()
	case "browser":
		b := camera.NewBrowser(cfg.Camera.Browser.URL, cfg.Camera.Browser.ControlURL, cfg.Camera.Browser.Stealth)
		src, closeFn = b, b.Close
		debug.Value("Browser URL", cfg.Camera.Browser.URL)
	default:
		return nil, nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}

	if cfg.Indicator.Enabled {
		if g == nil {
			return nil, nil, errors.New("indicator enabled without a GPIO driver")
		}
		debug.Value("Indicator pin", cfg.Indicator.Pin)
		src = camera.NewGPIOTrigger(g, cfg.Indicator.Pin, cfg.SettleDelay(), cfg.HoldDelay(), src)
	}
	return src, closeFn, nil
}
