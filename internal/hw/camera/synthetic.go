package camera

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
)

// Synthetic generates gradient frames of exactly the requested size.
// Used for development on machines without a display or browser.
type Synthetic struct {
	frames atomic.Uint64
}

// NewSynthetic returns a generated-frame source.
func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

func (s *Synthetic) TakePhoto(ctx context.Context, size Size) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := size.Validate(); err != nil {
		return nil, err
	}

	// Shift the hue every frame so consecutive snapshots differ.
	n := s.frames.Add(1)
	hue := uint8(40 + (n*37)%200)

	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: hue, G: uint8(x % 255), B: uint8(y % 255), A: 255})
		}
	}
	return img, nil
}

// Frames returns how many frames were generated.
func (s *Synthetic) Frames() uint64 {
	return s.frames.Load()
}
