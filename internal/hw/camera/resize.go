package camera

import (
	"image"

	"github.com/disintegration/imaging"
)

// Resize scales img to the requested size. Frames that already match are
// returned unchanged.
func Resize(img image.Image, size Size) image.Image {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	if b.Dx() == size.Width && b.Dy() == size.Height {
		return img
	}
	return imaging.Resize(img, size.Width, size.Height, imaging.Lanczos)
}
