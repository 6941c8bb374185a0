package atlas

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/taigrr/vbshade/pkg/math3d"
)

var (
	// ErrTextureTooLarge is returned when a padded texture exceeds a layer.
	ErrTextureTooLarge = errors.New("atlas: texture does not fit in a layer")
	// ErrAtlasFull is returned when every allowed layer is used.
	ErrAtlasFull = errors.New("atlas: no layer left")
)

// TextureOptions describes how a texture is stored and addressed.
type TextureOptions struct {
	SRGB        bool // decode sRGB texels to linear while packing
	AddressU    AddressMode
	AddressV    AddressMode
	Sampler     int
	UvTransform int
}

// Packer places textures on shelves across layers and fills each
// texture's padding with texels folded through its address modes.
type Packer struct {
	width, height int
	padding       int
	maxLayers     int

	layers   []*image.NRGBA64
	x, y     int // shelf cursor on the last layer
	shelfH   int
	entries  []Entry
	samplers []Sampler
}

// NewPacker creates a packer for width×height layers.
func NewPacker(width, height, padding, maxLayers int) *Packer {
	return &Packer{
		width:     width,
		height:    height,
		padding:   max(padding, 0),
		maxLayers: max(maxLayers, 1),
		samplers:  []Sampler{DefaultSampler},
	}
}

// AddSampler registers a sampler and returns its index. Index 0 is
// DefaultSampler.
func (p *Packer) AddSampler(s Sampler) int {
	for i, existing := range p.samplers {
		if existing == s {
			return i
		}
	}
	p.samplers = append(p.samplers, s)
	return len(p.samplers) - 1
}

// Add packs img and returns its entry index.
func (p *Packer) Add(img image.Image, opts TextureOptions) (int, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pw, ph := w+2*p.padding, h+2*p.padding
	if w == 0 || h == 0 || pw > p.width || ph > p.height {
		return 0, fmt.Errorf("add %dx%d texture to %dx%d atlas: %w", w, h, p.width, p.height, ErrTextureTooLarge)
	}

	if err := p.reserve(pw, ph); err != nil {
		return 0, err
	}
	layer := len(p.layers) - 1
	e := Entry{
		X:           p.x + p.padding,
		Y:           p.y + p.padding,
		Width:       w,
		Height:      h,
		Layer:       layer,
		AddressU:    opts.AddressU,
		AddressV:    opts.AddressV,
		UvTransform: opts.UvTransform,
		Sampler:     opts.Sampler,
	}
	p.blit(p.layers[layer], img, e, opts.SRGB)

	p.x += pw
	p.shelfH = max(p.shelfH, ph)
	p.entries = append(p.entries, e)
	return len(p.entries) - 1, nil
}

// reserve moves the cursor to a spot with room for pw×ph, opening a new
// shelf or layer when needed.
func (p *Packer) reserve(pw, ph int) error {
	if len(p.layers) > 0 {
		if p.x+pw > p.width {
			p.x = 0
			p.y += p.shelfH
			p.shelfH = 0
		}
		if p.y+ph <= p.height {
			return nil
		}
	}
	if len(p.layers) >= p.maxLayers {
		return fmt.Errorf("reserve %dx%d: %w", pw, ph, ErrAtlasFull)
	}
	p.layers = append(p.layers, image.NewNRGBA64(image.Rect(0, 0, p.width, p.height)))
	p.x, p.y, p.shelfH = 0, 0, 0
	return nil
}

// blit copies img into dst at the entry's offset, including the padding
// ring, which repeats texels as the entry's address modes would.
func (p *Packer) blit(dst *image.NRGBA64, img image.Image, e Entry, srgb bool) {
	b := img.Bounds()
	for py := -p.padding; py < e.Height+p.padding; py++ {
		sy := e.AddressV.texelIndex(py, e.Height)
		for px := -p.padding; px < e.Width+p.padding; px++ {
			sx := e.AddressU.texelIndex(px, e.Width)
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+sx, b.Min.Y+sy)).(color.NRGBA64)
			if srgb {
				c = linearize(c)
			}
			dst.SetNRGBA64(e.X+px, e.Y+py, c)
		}
	}
}

func linearize(c color.NRGBA64) color.NRGBA64 {
	v := toVec4(c)
	r, g, b := colorful.Color{R: v.X, G: v.Y, B: v.Z}.LinearRgb()
	return fromVec4(math3d.V4(r, g, b, v.W))
}

// Build finalizes the mip chains and per-entry max levels.
func (p *Packer) Build() (*Atlas, []Entry) {
	a := &Atlas{
		Width:    p.width,
		Height:   p.height,
		Padding:  p.padding,
		Samplers: append([]Sampler(nil), p.samplers...),
	}
	for _, l := range p.layers {
		a.Layers = append(a.Layers, Layer{Mips: buildMips(l)})
	}

	entries := make([]Entry, len(p.entries))
	copy(entries, p.entries)
	top := a.NumLevels() - 1
	for i := range entries {
		e := &entries[i]
		own := int(math.Floor(math.Log2(float64(min(e.Width, e.Height)))))
		e.MaxLevel = min(own, top)
	}
	return a, entries
}
