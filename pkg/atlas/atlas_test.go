package atlas

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/vbshade/pkg/math3d"
)

func TestAddressModeApply(t *testing.T) {
	tests := []struct {
		name  string
		mode  AddressMode
		coord float64
		want  float64
	}{
		{"clamp inside", ClampToEdge, 0.25, 0.25},
		{"clamp below", ClampToEdge, -0.5, 0},
		{"clamp above", ClampToEdge, 1.5, 1},
		{"repeat above", Repeat, 1.25, 0.25},
		{"repeat below", Repeat, -0.25, 0.75},
		{"mirror first copy", MirroredRepeat, 0.25, 0.25},
		{"mirror second copy", MirroredRepeat, 1.25, 0.75},
		{"mirror below", MirroredRepeat, -0.25, 0.25},
		{"nan", Repeat, math.NaN(), 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.mode.Apply(tc.coord), 1e-12, "%v.Apply(%v)", tc.mode, tc.coord)
		})
	}
}

func TestTexelIndex(t *testing.T) {
	assert.Equal(t, 0, ClampToEdge.texelIndex(-3, 4))
	assert.Equal(t, 3, ClampToEdge.texelIndex(9, 4))
	assert.Equal(t, 3, Repeat.texelIndex(-1, 4))
	assert.Equal(t, 1, Repeat.texelIndex(5, 4))
	assert.Equal(t, 0, MirroredRepeat.texelIndex(-1, 4))
	assert.Equal(t, 3, MirroredRepeat.texelIndex(4, 4))
	assert.Equal(t, 2, MirroredRepeat.texelIndex(5, 4))
}

func TestUvTransformVectorRoundTrip(t *testing.T) {
	tr := NewUvTransform(math3d.V2(0.3, -0.2), math3d.V2(2, 0.5), math.Pi/5, math3d.V2(0.5, 0.5))
	inv, ok := tr.Inverse()
	require.True(t, ok)

	for _, d := range []math3d.Vec2{{X: 0.1}, {Y: 0.1}, {X: -0.03, Y: 0.07}} {
		back := inv.ApplyVector(tr.ApplyVector(d))
		assert.InDelta(t, d.X, back.X, 1e-12)
		assert.InDelta(t, d.Y, back.Y, 1e-12)
	}

	uv := math3d.V2(0.8, 0.1)
	back := inv.Apply(tr.Apply(uv))
	assert.InDelta(t, uv.X, back.X, 1e-12)
	assert.InDelta(t, uv.Y, back.Y, 1e-12)
}

func TestUvTransformVectorIgnoresOffset(t *testing.T) {
	tr := NewUvTransform(math3d.V2(5, 7), math3d.V2(1, 1), 0, math3d.Vec2{})
	d := tr.ApplyVector(math3d.V2(0.1, 0.2))
	assert.InDelta(t, 0.1, d.X, 1e-12)
	assert.InDelta(t, 0.2, d.Y, 1e-12)

	p := tr.Apply(math3d.V2(0.1, 0.2))
	assert.InDelta(t, 5.1, p.X, 1e-12)
	assert.InDelta(t, 7.2, p.Y, 1e-12)
}

func TestUvTransformRotationAboutOrigin(t *testing.T) {
	origin := math3d.V2(0.5, 0.5)
	tr := NewUvTransform(math3d.Vec2{}, math3d.V2(1, 1), math.Pi/2, origin)

	// The origin is fixed; a point to its right moves above it.
	o := tr.Apply(origin)
	assert.InDelta(t, 0.5, o.X, 1e-12)
	assert.InDelta(t, 0.5, o.Y, 1e-12)
	p := tr.Apply(math3d.V2(1, 0.5))
	assert.InDelta(t, 0.5, p.X, 1e-12)
	assert.InDelta(t, 1, p.Y, 1e-12)
}

func TestUvTransformSingular(t *testing.T) {
	tr := NewUvTransform(math3d.Vec2{}, math3d.V2(0, 1), 0, math3d.Vec2{})
	_, ok := tr.Inverse()
	assert.False(t, ok)
}

func TestTransformTableDedup(t *testing.T) {
	tt := NewTransformTable()
	assert.Equal(t, 0, tt.Intern(IdentityTransform))

	a := NewUvTransform(math3d.V2(0.5, 0), math3d.V2(1, 1), 0, math3d.Vec2{})
	b := NewUvTransform(math3d.V2(0, 0.5), math3d.V2(1, 1), 0, math3d.Vec2{})
	ia := tt.Intern(a)
	ib := tt.Intern(b)
	assert.Equal(t, 1, ia)
	assert.Equal(t, 2, ib)
	assert.Equal(t, ia, tt.Intern(a))
	assert.Equal(t, 3, tt.Len())

	list := tt.Transforms()
	list[0] = a
	assert.Equal(t, IdentityTransform, tt.Transforms()[0], "Transforms must return a copy")
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestPackerPlacesOnShelves(t *testing.T) {
	p := NewPacker(64, 64, 2, 2)
	red := solid(16, 16, color.NRGBA{R: 255, A: 255})

	var entries []int
	for range 6 {
		i, err := p.Add(red, TextureOptions{})
		require.NoError(t, err)
		entries = append(entries, i)
	}
	a, list := p.Build()

	require.Len(t, list, 6)
	assert.Equal(t, 2, a.Padding)
	// 20px padded cells: three fit on a 64px shelf.
	assert.Equal(t, Entry{X: 2, Y: 2, Width: 16, Height: 16, MaxLevel: 4}, list[0])
	assert.Equal(t, 22, list[1].X)
	assert.Equal(t, 42, list[2].X)
	assert.Equal(t, 2, list[3].X)
	assert.Equal(t, 22, list[3].Y)
	for _, e := range list {
		assert.Equal(t, 0, e.Layer)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, entries)
}

func TestPackerOpensLayers(t *testing.T) {
	p := NewPacker(32, 32, 0, 2)
	img := solid(32, 32, color.NRGBA{G: 255, A: 255})

	_, err := p.Add(img, TextureOptions{})
	require.NoError(t, err)
	_, err = p.Add(img, TextureOptions{})
	require.NoError(t, err)
	_, err = p.Add(img, TextureOptions{})
	assert.ErrorIs(t, err, ErrAtlasFull)

	a, list := p.Build()
	assert.Len(t, a.Layers, 2)
	assert.Equal(t, 1, list[1].Layer)
}

func TestPackerTooLarge(t *testing.T) {
	p := NewPacker(32, 32, 4, 1)
	_, err := p.Add(solid(30, 8, color.NRGBA{A: 255}), TextureOptions{})
	assert.ErrorIs(t, err, ErrTextureTooLarge)
}

func TestPackerPaddingFollowsAddressMode(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{B: 255, A: 255})

	p := NewPacker(16, 16, 1, 1)
	_, err := p.Add(img, TextureOptions{AddressU: Repeat})
	require.NoError(t, err)
	a, list := p.Build()
	e := list[0]

	// Left padding repeats the last column, right padding the first.
	left := a.Texel(0, 0, e.X-1, e.Y)
	right := a.Texel(0, 0, e.X+2, e.Y)
	assert.InDelta(t, 1, left.Z, 1e-4)
	assert.InDelta(t, 1, right.X, 1e-4)
}

func TestPackerLinearizesSRGB(t *testing.T) {
	p := NewPacker(8, 8, 0, 1)
	_, err := p.Add(solid(4, 4, color.NRGBA{R: 128, G: 128, B: 128, A: 255}), TextureOptions{SRGB: true})
	require.NoError(t, err)
	a, _ := p.Build()

	c := a.Texel(0, 0, 1, 1)
	// sRGB 128 is about 0.2159 linear.
	assert.InDelta(t, 0.2159, c.X, 2e-3)
	assert.InDelta(t, 1, c.W, 1e-4)
}

func TestAddSamplerDedup(t *testing.T) {
	p := NewPacker(8, 8, 0, 1)
	assert.Equal(t, 0, p.AddSampler(DefaultSampler))
	nearest := Sampler{Filter: FilterNearest, MipFilter: MipNearest}
	assert.Equal(t, 1, p.AddSampler(nearest))
	assert.Equal(t, 1, p.AddSampler(nearest))
}

func TestLevels(t *testing.T) {
	assert.Equal(t, 1, Levels(1, 1))
	assert.Equal(t, 9, Levels(256, 256))
	assert.Equal(t, 13, Levels(4096, 1024))
}

func TestSampleSolidTexture(t *testing.T) {
	p := NewPacker(16, 16, 0, 1)
	_, err := p.Add(solid(16, 16, color.NRGBA{R: 255, G: 255, A: 255}), TextureOptions{})
	require.NoError(t, err)
	a, _ := p.Build()

	for lod := 0.0; lod <= 4; lod += 0.5 {
		c := a.Sample(0, lod, math3d.V2(8, 8), DefaultSampler)
		assert.InDelta(t, 1, c.X, 1e-3, "lod %v", lod)
		assert.InDelta(t, 0, c.Z, 1e-3, "lod %v", lod)
	}
}

func TestSampleLevelBilinear(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, A: 255})
	p := NewPacker(2, 1, 0, 1)
	_, err := p.Add(img, TextureOptions{})
	require.NoError(t, err)
	a, _ := p.Build()

	// Halfway between the two texel centers.
	c := a.SampleLevel(0, 0, math3d.V2(1, 0.5), FilterLinear)
	assert.InDelta(t, 0.5, c.X, 1e-3)
	c = a.SampleLevel(0, 0, math3d.V2(1.2, 0.5), FilterNearest)
	assert.InDelta(t, 1, c.X, 1e-3)
}

func TestTexelOutOfRange(t *testing.T) {
	a, _ := NewPacker(4, 4, 0, 1).Build()
	assert.Equal(t, math3d.Vec4{}, a.Texel(3, 0, 0, 0))
	assert.Equal(t, math3d.Vec4{}, a.Texel(0, 99, 0, 0))
}

func BenchmarkSampleTrilinear(b *testing.B) {
	p := NewPacker(256, 256, 0, 1)
	_, _ = p.Add(solid(256, 256, color.NRGBA{R: 90, G: 40, B: 200, A: 255}), TextureOptions{})
	a, _ := p.Build()
	pt := math3d.V2(100.3, 57.8)

	for b.Loop() {
		_ = a.Sample(0, 2.4, pt, DefaultSampler)
	}
}
