package atlas

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/taigrr/vbshade/pkg/math3d"
)

// Atlas is a texture array: equally sized layers, each with a full mip
// chain, plus the sampler table entries refer to.
type Atlas struct {
	Width    int
	Height   int
	Padding  int
	Layers   []Layer
	Samplers []Sampler
}

// Layer holds one array slice. Mips[0] is full resolution.
type Layer struct {
	Mips []*image.NRGBA64
}

// Levels returns the number of mip levels of a width×height image.
func Levels(width, height int) int {
	return 1 + int(math.Floor(math.Log2(float64(max(width, height, 1)))))
}

// NumLevels returns the mip count shared by every layer.
func (a *Atlas) NumLevels() int {
	return Levels(a.Width, a.Height)
}

// buildMips downsamples level 0 into a full chain. Each level averages the
// previous one, so texels of neighbouring packed textures bleed together
// once a level's texel spans more than the padding.
func buildMips(base *image.NRGBA64) []*image.NRGBA64 {
	w, h := base.Bounds().Dx(), base.Bounds().Dy()
	n := Levels(w, h)
	mips := make([]*image.NRGBA64, n)
	mips[0] = base
	for i := 1; i < n; i++ {
		prev := mips[i-1]
		dw, dh := max(1, w>>i), max(1, h>>i)
		dst := image.NewNRGBA64(image.Rect(0, 0, dw, dh))
		draw.BiLinear.Scale(dst, dst.Bounds(), prev, prev.Bounds(), draw.Src, nil)
		mips[i] = dst
	}
	return mips
}

// Texel returns the linear RGBA value at integer coordinates of a level,
// clamping to the level's bounds. Out-of-range layers and levels yield
// transparent black.
func (a *Atlas) Texel(layer, level, x, y int) math3d.Vec4 {
	if layer < 0 || layer >= len(a.Layers) {
		return math3d.Vec4{}
	}
	mips := a.Layers[layer].Mips
	if level < 0 || level >= len(mips) {
		return math3d.Vec4{}
	}
	img := mips[level]
	b := img.Bounds()
	x = min(max(x, 0), b.Dx()-1)
	y = min(max(y, 0), b.Dy()-1)
	return toVec4(img.NRGBA64At(x, y))
}

// SampleLevel filters one mip level at p, given in level-0 atlas pixels
// with texel centers at half-integers.
func (a *Atlas) SampleLevel(layer, level int, p math3d.Vec2, f Filter) math3d.Vec4 {
	s := 1 / float64(int(1)<<level)
	x, y := p.X*s, p.Y*s
	if f == FilterNearest {
		return a.Texel(layer, level, int(math.Floor(x)), int(math.Floor(y)))
	}

	fx, fy := x-0.5, y-0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := fx-float64(x0), fy-float64(y0)

	c00 := a.Texel(layer, level, x0, y0)
	c10 := a.Texel(layer, level, x0+1, y0)
	c01 := a.Texel(layer, level, x0, y0+1)
	c11 := a.Texel(layer, level, x0+1, y0+1)

	top := c00.Lerp(c10, tx)
	bot := c01.Lerp(c11, tx)
	return top.Lerp(bot, ty)
}

// Sample filters at a fractional mip level using the sampler's mip mode.
func (a *Atlas) Sample(layer int, lod float64, p math3d.Vec2, smp Sampler) math3d.Vec4 {
	maxLevel := a.NumLevels() - 1
	lod = math3d.Clamp(lod, 0, float64(maxLevel))
	if smp.MipFilter == MipNearest {
		return a.SampleLevel(layer, int(math.Round(lod)), p, smp.Filter)
	}
	lo := int(math.Floor(lod))
	hi := min(lo+1, maxLevel)
	c := a.SampleLevel(layer, lo, p, smp.Filter)
	if t := lod - float64(lo); t > 0 && hi != lo {
		c = c.Lerp(a.SampleLevel(layer, hi, p, smp.Filter), t)
	}
	return c
}

func toVec4(c color.NRGBA64) math3d.Vec4 {
	const m = 0xFFFF
	return math3d.V4(float64(c.R)/m, float64(c.G)/m, float64(c.B)/m, float64(c.A)/m)
}

func fromVec4(v math3d.Vec4) color.NRGBA64 {
	q := func(f float64) uint16 { return uint16(math.Round(math3d.Clamp(f, 0, 1) * 0xFFFF)) }
	return color.NRGBA64{R: q(v.X), G: q(v.Y), B: q(v.Z), A: q(v.W)}
}
