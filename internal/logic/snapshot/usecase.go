// Package snapshot runs the capture loop: one synchronous capture per tick,
// each successful frame handed to its own background save.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/cjeanneret/lifelog/internal/debug"
	"github.com/cjeanneret/lifelog/internal/hw/camera"
	"github.com/cjeanneret/lifelog/internal/logic/timer"
)

// ErrDrainTimeout is returned by Run when in-flight saves outlive the drain timeout.
var ErrDrainTimeout = errors.New("in-flight saves did not finish before the drain timeout")

// cancelGrace bounds the wait for saves to unwind after the drain timeout cancels them.
const cancelGrace = 2 * time.Second

// Saver persists one captured frame. See Persister.Save.
type Saver interface {
	Save(ctx context.Context, seq uint64, img image.Image) (path string, ok bool, err error)
}

// Options tune a UseCase. The zero value logs outcomes and waits for saves indefinitely.
type Options struct {
	Reporter     Reporter      // extra outcome sink; nil = LogReporter
	Stats        *Stats        // counters to update; nil = private instance
	DrainTimeout time.Duration // how long Run waits for saves after the loop ends; 0 = forever
	Clock        func() time.Time
}

// UseCase ties the ticker, the camera and the saver together.
type UseCase struct {
	timer  timer.Repository
	camera camera.Snapshotter
	saver  Saver

	report       Reporter
	stats        *Stats
	drainTimeout time.Duration
	clock        func() time.Time
}

func NewUseCase(t timer.Repository, c camera.Snapshotter, s Saver, opts Options) *UseCase {
	stats := opts.Stats
	if stats == nil {
		stats = &Stats{}
	}
	var extra Reporter = LogReporter{}
	if opts.Reporter != nil {
		extra = opts.Reporter
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &UseCase{
		timer:        t,
		camera:       c,
		saver:        s,
		report:       Reporters{stats, extra},
		stats:        stats,
		drainTimeout: opts.DrainTimeout,
		clock:        clock,
	}
}

// Stats returns the counters updated by this use case.
func (u *UseCase) Stats() *Stats {
	return u.stats
}

// Run captures one frame per tick until ctx is cancelled or the tick sequence
// ends, then waits for the saves it launched. Capture and save failures go to
// the reporter and never stop the loop; the only errors are invalid arguments
// and ErrDrainTimeout.
func (u *UseCase) Run(ctx context.Context, size camera.Size, interval time.Duration) error {
	if err := size.Validate(); err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}

	debug.Section("Snapshot loop")
	debug.Value("Size", size)
	debug.Value("Interval", interval)
	u.stats.markStarted(u.clock())

	// Saves outlive the loop; they are cancelled only when the drain times out.
	saveCtx, cancelSaves := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSaves()
	var saves sync.WaitGroup

	var seq uint64
	for range u.timer.Ticks(ctx, interval) {
		seq++
		u.stats.tick()
		debug.Tick(seq)

		img, err := u.camera.TakePhoto(ctx, size)
		if err == nil && img == nil {
			err = camera.ErrEmptyFrame
		}
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown interrupted the capture.
				break
			}
			u.report.CaptureFailed(seq, &CaptureError{Err: err})
			continue
		}

		b := img.Bounds()
		debug.Capture(seq, b.Dx(), b.Dy())
		u.stats.captureOK()
		u.launch(saveCtx, &saves, seq, img)
	}

	debug.Live("Snapshot loop stopped after %d ticks", seq)
	return u.drain(&saves, cancelSaves)
}

// launch starts the save task for one frame. The task owns img.
func (u *UseCase) launch(ctx context.Context, wg *sync.WaitGroup, seq uint64, img image.Image) {
	u.stats.saveStarted()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer u.stats.saveDone()
		defer func() {
			if r := recover(); r != nil {
				u.report.SaveFailed(seq, fmt.Errorf("save task panicked: %v", r))
			}
		}()

		path, ok, err := u.saver.Save(ctx, seq, img)
		switch {
		case err != nil:
			u.report.SaveFailed(seq, err)
		case !ok:
			u.report.SaveSkipped(seq)
		default:
			u.report.Saved(seq, path)
		}
	}()
}

func (u *UseCase) drain(wg *sync.WaitGroup, cancelSaves context.CancelFunc) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if u.drainTimeout <= 0 {
		<-done
		return nil
	}

	t := time.NewTimer(u.drainTimeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		pending := u.stats.inFlight.Load()
		cancelSaves()
		// Cancelled saves release their staging files quickly; give them a
		// moment so callers can close shared resources behind Run.
		select {
		case <-done:
		case <-time.After(cancelGrace):
		}
		return fmt.Errorf("%w (%d still running after %v)", ErrDrainTimeout, pending, u.drainTimeout)
	}
}
