package camera

import (
	"context"
	"image"
	"time"

	"github.com/cjeanneret/lifelog/internal/debug"
	"github.com/cjeanneret/lifelog/internal/hw/gpio"
)

// GPIOTrigger wraps a Snapshotter and drives one GPIO line for the
// duration of every capture (status LED, IR illuminator, external trigger).
// The line is active LOW, like an opto-isolated remote connector:
//
// 1. line to LOW (assert)
// 2. wait for the settle delay
// 3. run the wrapped capture
// 4. wait for the hold delay
// 5. line back to HIGH (release), on every exit path
type GPIOTrigger struct {
	gpio   gpio.Driver
	pin    int
	settle time.Duration // delay between assert and capture
	hold   time.Duration // delay between capture and release
	inner  Snapshotter
}

// NewGPIOTrigger configures pin as an output, parks it HIGH (inactive)
// and returns a Snapshotter that pulses it around inner captures.
func NewGPIOTrigger(g gpio.Driver, pin int, settle, hold time.Duration, inner Snapshotter) *GPIOTrigger {
	// Configure pin as output
	_ = g.SetupPin(pin, gpio.Output)

	// By default, the line is HIGH (inactive)
	_ = g.WritePin(pin, gpio.High)

	return &GPIOTrigger{
		gpio:   g,
		pin:    pin,
		settle: settle,
		hold:   hold,
		inner:  inner,
	}
}

func (t *GPIOTrigger) TakePhoto(ctx context.Context, size Size) (image.Image, error) {
	debug.Trace("Trigger: asserting line (pin %d -> LOW)", t.pin)
	if err := t.gpio.WritePin(t.pin, gpio.Low); err != nil {
		return nil, err
	}
	defer func() {
		debug.Trace("Trigger: releasing line (pin %d -> HIGH)", t.pin)
		if err := t.gpio.WritePin(t.pin, gpio.High); err != nil {
			debug.Errorf("trigger release on pin %d: %v", t.pin, err)
		}
	}()

	if err := sleepCtx(ctx, t.settle); err != nil {
		return nil, err
	}

	img, err := t.inner.TakePhoto(ctx, size)
	if err != nil {
		return nil, err
	}

	if err := sleepCtx(ctx, t.hold); err != nil {
		return nil, err
	}
	return img, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
