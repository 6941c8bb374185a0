package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/taigrr/vbshade/pkg/math3d"
)

// StorageImage is the kernel's output target: one linear RGBA value per
// pixel, row-major.
type StorageImage struct {
	Width  int
	Height int
	Pixels []math3d.Vec4
}

// NewStorageImage creates a transparent image.
func NewStorageImage(width, height int) *StorageImage {
	return &StorageImage{
		Width:  width,
		Height: height,
		Pixels: make([]math3d.Vec4, width*height),
	}
}

// Clear fills the image with c.
func (im *StorageImage) Clear(c math3d.Vec4) {
	for i := range im.Pixels {
		im.Pixels[i] = c
	}
}

// SetPixel sets pixel (x, y). Out-of-bounds writes are ignored.
func (im *StorageImage) SetPixel(x, y int, c math3d.Vec4) {
	if x < 0 || x >= im.Width || y < 0 || y >= im.Height {
		return
	}
	im.Pixels[y*im.Width+x] = c
}

// Pixel returns pixel (x, y), or transparent black out of bounds.
func (im *StorageImage) Pixel(x, y int) math3d.Vec4 {
	if x < 0 || x >= im.Width || y < 0 || y >= im.Height {
		return math3d.Vec4{}
	}
	return im.Pixels[y*im.Width+x]
}

// Encode converts a linear color to 8-bit sRGB with straight alpha.
func Encode(c math3d.Vec4) color.NRGBA {
	if !c.Vec3().IsFinite() {
		return color.NRGBA{}
	}
	r, g, b := colorful.LinearRgb(c.X, c.Y, c.Z).Clamped().RGB255()
	a := math3d.Clamp(c.W, 0, 1)
	if !math3d.IsFinite(a) {
		a = 0
	}
	return color.NRGBA{R: r, G: g, B: b, A: uint8(a*255 + 0.5)}
}

// ToImage converts the image to 8-bit sRGB.
func (im *StorageImage) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			img.SetNRGBA(x, y, Encode(im.Pixels[y*im.Width+x]))
		}
	}
	return img
}

// SavePNG writes the image as a PNG file.
func (im *StorageImage) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, im.ToImage()); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}
