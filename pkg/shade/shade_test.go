package shade

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/vbshade/pkg/atlas"
	"github.com/taigrr/vbshade/pkg/frame"
	"github.com/taigrr/vbshade/pkg/geometry"
	"github.com/taigrr/vbshade/pkg/math3d"
	"github.com/taigrr/vbshade/pkg/models"
	"github.com/taigrr/vbshade/pkg/visbuf"
	"github.com/taigrr/vbshade/pkg/vispass"
)

// target records every write so tests can check each pixel is written
// once. Distinct pixels use distinct slots, so concurrent tiles never
// share memory.
type target struct {
	w, h   int
	px     []math3d.Vec4
	writes []int
}

func newTarget(w, h int) *target {
	return &target{w: w, h: h, px: make([]math3d.Vec4, w*h), writes: make([]int, w*h)}
}

func (t *target) SetPixel(x, y int, c math3d.Vec4) {
	t.px[y*t.w+x] = c
	t.writes[y*t.w+x]++
}

func (t *target) at(x, y int) math3d.Vec4 { return t.px[y*t.w+x] }

var blue = math3d.V4(0, 0, 1, 1)

func solidBackdrop(math3d.Vec3) math3d.Vec4 { return blue }

func solid(c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func texRef(img image.Image, srgb bool) *models.TextureRef {
	return &models.TextureRef{
		Image:     img,
		Source:    -1,
		AddressU:  atlas.ClampToEdge,
		AddressV:  atlas.ClampToEdge,
		Sampler:   atlas.DefaultSampler,
		Transform: atlas.IdentityTransform,
		SRGB:      srgb,
	}
}

func unlit() models.Material {
	m := models.DefaultMaterial()
	m.Kind = models.KindUnlit
	return m
}

type scene struct {
	kernel *Kernel
	frame  *frame.Frame
	buf    *visbuf.Buffers
	view   geometry.View
}

// newScene renders a 2x2 quad at z=-2 into 16x16 buffers. The quad
// covers pixel centers 4..11 on both axes; its left edge sits at x=4.2.
func newScene(t *testing.T, w, h, samples int, mat models.Material, cfg Config) scene {
	t.Helper()
	b := frame.NewBuilder(frame.AtlasOptions{Width: 128, Height: 128, Padding: 4, MaxLayers: 1})
	_, err := b.AddMesh(models.Quad(2, 1, mat), math3d.Translate(math3d.V3(0.05, 0.03, -2)))
	require.NoError(t, err)
	f := b.Build()

	buf, err := visbuf.NewBuffers(w, h, samples, false)
	require.NoError(t, err)
	viewM := math3d.LookAt(math3d.V3(0, 0, 0), math3d.V3(0, 0, -1), math3d.V3(0, 1, 0))
	proj := math3d.PerspectiveZO(math.Pi/2, float64(w)/float64(h), 0.1, 100)
	view, err := geometry.NewView(viewM, proj, w, h)
	require.NoError(t, err)
	vispass.Rasterize(f, view, buf, vispass.Options{CullBackfaces: true})

	cfg.Samples = samples
	cfg.MSAA = samples > 1
	k, err := NewKernel(cfg, f, buf, view)
	require.NoError(t, err)
	return scene{kernel: k, frame: f, buf: buf, view: view}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Backdrop = solidBackdrop
	cfg.Workers = 2
	return cfg
}

func assertColor(t *testing.T, want, got math3d.Vec4, eps float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps, "R")
	assert.InDelta(t, want.Y, got.Y, eps, "G")
	assert.InDelta(t, want.Z, got.Z, eps, "B")
	assert.InDelta(t, want.W, got.W, eps, "A")
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
		err    error
	}{
		{"deriv mode", func(c *Config) { c.Deriv = 7 }, ErrDerivMode},
		{"sample count", func(c *Config) { c.MSAA, c.Samples = true, 3 }, visbuf.ErrSampleCount},
		{"tile size", func(c *Config) { c.TileSize = 0 }, ErrTileSize},
		{"variant", func(c *Config) { c.Variant.UVSets = frame.MaxUVSets + 1 }, ErrVariant},
		{"thresholds", func(c *Config) { c.Thresholds.NeighborDepth = -1 }, ErrThresholds},
		{"anisotropy too high", func(c *Config) { c.MaxAnisotropy = 1e6 }, ErrAnisotropy},
		{"anisotropy negative", func(c *Config) { c.MaxAnisotropy = -1 }, ErrAnisotropy},
		{"anisotropy nan", func(c *Config) { c.MaxAnisotropy = math.NaN() }, ErrAnisotropy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.err)
		})
	}
}

func TestParseDerivMode(t *testing.T) {
	for _, m := range []DerivMode{DerivGradient, DerivNoMipmap} {
		got, err := ParseDerivMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseDerivMode("bogus")
	assert.ErrorIs(t, err, ErrDerivMode)
}

func TestNewKernelErrors(t *testing.T) {
	buf, err := visbuf.NewBuffers(4, 4, 4, false)
	require.NoError(t, err)

	_, err = NewKernel(DefaultConfig(), nil, buf, geometry.View{})
	assert.ErrorIs(t, err, ErrNilInput)

	cfg := DefaultConfig()
	cfg.MSAA, cfg.Samples = true, 2
	_, err = NewKernel(cfg, &frame.Frame{}, buf, geometry.View{})
	assert.ErrorIs(t, err, ErrSampleMismatch)
}

func TestDispatchSingleSample(t *testing.T) {
	s := newScene(t, 16, 16, 1, unlit(), testConfig())
	dst := newTarget(16, 16)

	st, err := s.kernel.Dispatch(context.Background(), dst)
	require.NoError(t, err)
	assert.EqualValues(t, 256, st.Pixels)
	assert.EqualValues(t, 256, st.Invocations)
	assert.Zero(t, st.EdgePixels)

	assertColor(t, math3d.V4(1, 1, 1, 1), dst.at(8, 8), 1e-5)
	assert.Equal(t, blue, dst.at(0, 0))
	assert.Equal(t, blue, dst.at(3, 8))
}

func TestDispatchMultisample(t *testing.T) {
	s := newScene(t, 16, 16, 4, unlit(), testConfig())
	dst := newTarget(16, 16)

	st, err := s.kernel.Dispatch(context.Background(), dst)
	require.NoError(t, err)
	assert.EqualValues(t, 256, st.Pixels)
	assert.Positive(t, st.EdgePixels)
	assert.Equal(t, st.Pixels+3*st.EdgePixels, st.Invocations, "edges cost four invocations, interiors one")
	assert.Zero(t, st.Diagnostic)

	// Interior pixels shade once.
	r := s.kernel.ShadePixel(8, 8)
	assert.False(t, r.Edge())
	assert.Equal(t, 1, r.Invocations)

	// Three of pixel 4's samples lie right of x=4.2.
	r = s.kernel.ShadePixel(4, 8)
	assert.True(t, r.Edge())
	assert.Equal(t, 4, r.Invocations)
	assertColor(t, math3d.V4(0.75, 0.75, 1, 1), dst.at(4, 8), 1e-5)
}

func TestDispatchVariantMismatch(t *testing.T) {
	cfg := testConfig()
	cfg.MatchAll = false
	cfg.Variant = frame.Layout{UVSets: 2}
	s := newScene(t, 16, 16, 1, unlit(), cfg)
	dst := newTarget(16, 16)

	st, err := s.kernel.Dispatch(context.Background(), dst)
	require.NoError(t, err)
	assert.EqualValues(t, 64, st.Skipped)
	assert.EqualValues(t, 256-64, st.Pixels)
	assert.Zero(t, dst.writes[8*16+8], "another variant owns the quad")
	assert.Equal(t, 1, dst.writes[0])
}

func TestDispatchOverhangingTiles(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 3
	s := newScene(t, 13, 11, 1, unlit(), cfg)
	dst := newTarget(13, 11)

	_, err := s.kernel.Dispatch(context.Background(), dst)
	require.NoError(t, err)
	for i, n := range dst.writes {
		require.Equal(t, 1, n, "pixel %d write count", i)
	}
}

func TestDispatchCancelled(t *testing.T) {
	s := newScene(t, 16, 16, 1, unlit(), testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.kernel.Dispatch(ctx, newTarget(16, 16))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestShadeTexturedUnlit(t *testing.T) {
	for _, mode := range []DerivMode{DerivGradient, DerivNoMipmap} {
		t.Run(mode.String(), func(t *testing.T) {
			mat := unlit()
			mat.BaseColorTex = texRef(solid(color.NRGBA{R: 255, A: 255}), true)
			cfg := testConfig()
			cfg.Deriv = mode
			s := newScene(t, 16, 16, 1, mat, cfg)

			got, ok := s.kernel.ShadeSample(8, 8, 0)
			require.True(t, ok)
			assertColor(t, math3d.V4(1, 0, 0, 1), got, 1e-3)
		})
	}
}

func TestEvaluateMaterialTextures(t *testing.T) {
	tests := []struct {
		name   string
		normal color.NRGBA
		want   math3d.Vec3
	}{
		{"flat", color.NRGBA{R: 128, G: 128, B: 255, A: 255}, math3d.V3(0, 0, 1)},
		{"toward tangent", color.NRGBA{R: 255, G: 128, B: 128, A: 255}, math3d.V3(1, 0, 0)},
		{"toward bitangent", color.NRGBA{R: 128, G: 255, B: 128, A: 255}, math3d.V3(0, 1, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mat := models.DefaultMaterial()
			mat.Metallic, mat.Roughness = 1, 0.8
			mat.NormalTex = texRef(solid(tc.normal), false)
			mat.MetallicRoughnessTex = texRef(solid(color.NRGBA{G: 128, B: 255, A: 255}), false)
			s := newScene(t, 16, 16, 1, mat, testConfig())

			dec := s.kernel.decoder
			smp, status := dec.Decode(8, 8, 0)
			require.Equal(t, geometry.StatusOK, status)
			fm, ok := s.frame.Material(smp.Meta.Material)
			require.True(t, ok)

			surf := s.kernel.evaluate(smp, fm)
			assert.InDelta(t, tc.want.X, surf.Normal.X, 0.02)
			assert.InDelta(t, tc.want.Y, surf.Normal.Y, 0.02)
			assert.InDelta(t, tc.want.Z, surf.Normal.Z, 0.02)
			assert.InDelta(t, 1, surf.GeometricNormal.Z, 1e-3)
			assert.InDelta(t, 0.8*128.0/255, surf.Roughness, 5e-3)
			assert.InDelta(t, 1, surf.Metallic, 5e-3)
			assert.InDelta(t, 1, surf.View.Len(), 1e-9)
		})
	}
}

func TestShadeExtensions(t *testing.T) {
	mat := models.DefaultMaterial()
	mat.Clearcoat = &models.Clearcoat{Factor: 0.5, Roughness: 0.2}
	mat.Sheen = &models.Sheen{Color: [3]float64{0.3, 0.2, 0.1}, Roughness: 0.4}
	mat.Transmission = &models.Transmission{Factor: 0.25, Tex: texRef(solid(color.NRGBA{R: 128, A: 255}), false)}
	s := newScene(t, 16, 16, 1, mat, testConfig())

	smp, status := s.kernel.decoder.Decode(8, 8, 0)
	require.Equal(t, geometry.StatusOK, status)
	fm, _ := s.frame.Material(smp.Meta.Material)
	surf := s.kernel.evaluate(smp, fm)

	assert.InDelta(t, 0.5, surf.Clearcoat, 1e-9)
	assert.InDelta(t, 0.2, surf.ClearcoatRoughness, 1e-9)
	assert.Equal(t, math3d.V3(0.3, 0.2, 0.1), surf.Sheen)
	assert.InDelta(t, 0.25*128.0/255, surf.Transmission, 5e-3)
}

func TestDirectionalLight(t *testing.T) {
	l := DefaultLight()
	surf := Surface{
		Normal:    l.Direction,
		View:      l.Direction,
		BaseColor: math3d.V4(0.5, 0.5, 0.5, 1),
		Roughness: 0.5,
		Occlusion: 1,
	}
	lit := l.Shade(&surf)

	surf.Normal = l.Direction.Negate()
	dark := l.Shade(&surf)
	assert.Greater(t, lit.X, dark.X)
	assert.InDelta(t, l.Ambient.X*0.5, dark.X, 1e-9, "facing away leaves only ambient")

	surf.Emissive = math3d.V3(1, 0, 0)
	glow := l.Shade(&surf)
	assert.InDelta(t, dark.X+1, glow.X, 1e-9)
}

func TestSkyColor(t *testing.T) {
	sky := DefaultSky()
	assert.Equal(t, math3d.V4FromV3(sky.Zenith, 1), sky.Color(math3d.V3(0, 1, 0)))
	assert.Equal(t, math3d.V4FromV3(sky.Horizon, 1), sky.Color(math3d.V3(1, 0, 0)))
	assert.Equal(t, math3d.V4FromV3(sky.Ground, 1), sky.Color(math3d.V3(0, -1, 0)))
	assert.Equal(t, math3d.V4FromV3(sky.Horizon, 1), sky.Color(math3d.Vec3{}), "degenerate rays fall back to the horizon")
}

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })
	assert.False(t, Logger().Enabled(context.Background(), 0))
	SetLogger(nil)
	assert.NotNil(t, Logger())
}

func BenchmarkDispatch(b *testing.B) {
	bld := frame.NewBuilder(frame.AtlasOptions{Width: 512, Height: 512, Padding: 8, MaxLayers: 1})
	if _, err := bld.AddMesh(models.Cube(1, 2, models.CheckerMaterial()), math3d.Translate(math3d.V3(0, 0, -2)).Mul(math3d.RotateY(0.6))); err != nil {
		b.Fatal(err)
	}
	f := bld.Build()
	buf, err := visbuf.NewBuffers(128, 128, 4, false)
	if err != nil {
		b.Fatal(err)
	}
	view, err := geometry.NewView(
		math3d.LookAt(math3d.V3(0, 0.8, 0), math3d.V3(0, 0, -2), math3d.V3(0, 1, 0)),
		math3d.PerspectiveZO(math.Pi/3, 1, 0.1, 100), 128, 128)
	if err != nil {
		b.Fatal(err)
	}
	vispass.Rasterize(f, view, buf, vispass.Options{CullBackfaces: true})
	cfg := DefaultConfig()
	cfg.MSAA, cfg.Samples = true, 4
	k, err := NewKernel(cfg, f, buf, view)
	if err != nil {
		b.Fatal(err)
	}
	dst := newTarget(128, 128)
	for b.Loop() {
		if _, err := k.Dispatch(context.Background(), dst); err != nil {
			b.Fatal(err)
		}
	}
}
