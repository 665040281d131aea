package camera

import (
	"context"
	"fmt"
	"image"

	"github.com/cjeanneret/lifelog/internal/debug"
	"github.com/vova616/screenshot"
)

// Screen captures the primary display.
type Screen struct {
	grab func() (*image.RGBA, error)
}

// NewScreen returns a Snapshotter backed by a full-screen grab.
func NewScreen() *Screen {
	return &Screen{grab: screenshot.CaptureScreen}
}

func (s *Screen) TakePhoto(ctx context.Context, size Size) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := s.grab()
	if err != nil {
		return nil, fmt.Errorf("grab screen: %w", err)
	}
	if img == nil {
		return nil, ErrEmptyFrame
	}
	debug.Trace("Screen: grabbed %dx%d, scaling to %s", img.Bounds().Dx(), img.Bounds().Dy(), size)
	return Resize(img, size), nil
}
