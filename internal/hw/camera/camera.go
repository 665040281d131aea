package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrEmptyFrame is returned when a source reports success without an image.
var ErrEmptyFrame = errors.New("camera returned an empty frame")

// Size is the requested frame size of a capture.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate checks that both dimensions are positive.
func (s Size) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid size %s: both dimensions must be positive", s)
	}
	return nil
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Snapshotter is the high-level interface used by the rest of the application.
// It represents an abstract "camera", regardless of how frames are acquired
// (screen grab, headless browser, generated frames, etc.).
type Snapshotter interface {
	// TakePhoto synchronously acquires one frame of roughly the requested size.
	// The returned image is owned by the caller.
	TakePhoto(ctx context.Context, size Size) (image.Image, error)
}

// SnapshotterFunc adapts a plain function to the Snapshotter interface.
type SnapshotterFunc func(ctx context.Context, size Size) (image.Image, error)

func (f SnapshotterFunc) TakePhoto(ctx context.Context, size Size) (image.Image, error) {
	return f(ctx, size)
}
