package shade

import (
	"math"

	"github.com/taigrr/vbshade/pkg/frame"
	"github.com/taigrr/vbshade/pkg/math3d"
)

// Surface is a material evaluated at one sample, in linear color and world
// space.
type Surface struct {
	Kind frame.MaterialKind

	Position        math3d.Vec3
	Normal          math3d.Vec3 // after normal mapping
	GeometricNormal math3d.Vec3
	View            math3d.Vec3 // unit vector toward the eye

	BaseColor math3d.Vec4
	Metallic  float64
	Roughness float64
	Occlusion float64
	Emissive  math3d.Vec3

	Clearcoat          float64
	ClearcoatRoughness float64
	Sheen              math3d.Vec3
	SheenRoughness     float64
	Transmission       float64
}

// Lighting turns a lit surface into outgoing radiance. The kernel treats
// it as opaque; Unlit surfaces never reach it.
type Lighting func(s *Surface) math3d.Vec3

// Backdrop colors samples that see no geometry. dir is the unit view ray.
type Backdrop func(dir math3d.Vec3) math3d.Vec4

// DirectionalLight is a single distant light plus a constant ambient term.
type DirectionalLight struct {
	Direction math3d.Vec3 // from the surface toward the light
	Color     math3d.Vec3
	Ambient   math3d.Vec3
}

// DefaultLight returns a warm key light from the upper right.
func DefaultLight() DirectionalLight {
	return DirectionalLight{
		Direction: math3d.V3(0.5, 1, 0.6).Normalize(),
		Color:     math3d.V3(1, 0.97, 0.92),
		Ambient:   math3d.V3(0.25, 0.27, 0.3),
	}
}

// blinn returns a normalized Blinn-Phong lobe for the given roughness.
func blinn(ndh, roughness float64) float64 {
	a := math.Max(roughness*roughness, 1e-3)
	shininess := math.Max(2/(a*a)-2, 1)
	return math.Pow(ndh, shininess) * (shininess + 8) / (8 * math.Pi)
}

// Shade evaluates a metallic-roughness split lit by l.
func (l DirectionalLight) Shade(s *Surface) math3d.Vec3 {
	n := s.Normal
	dir := l.Direction.Normalize()
	ndl := math.Max(n.Dot(dir), 0)
	ndv := math.Max(n.Dot(s.View), 0)
	h := dir.Add(s.View).Normalize()
	ndh := math.Max(n.Dot(h), 0)

	base := s.BaseColor.Vec3()
	m := math3d.Clamp(s.Metallic, 0, 1)
	diffuse := base.Scale((1 - m) * (1 - math3d.Clamp(s.Transmission, 0, 1)))
	f0 := math3d.V3(0.04, 0.04, 0.04).Scale(1 - m).Add(base.Scale(m))
	spec := f0.Scale(blinn(ndh, s.Roughness))

	direct := diffuse.Add(spec)
	if s.Clearcoat > 0 {
		coat := s.Clearcoat * 0.04 * blinn(ndh, s.ClearcoatRoughness)
		direct = direct.Scale(1 - 0.04*s.Clearcoat).Add(math3d.V3(coat, coat, coat))
	}
	if s.Sheen != (math3d.Vec3{}) {
		direct = direct.Add(s.Sheen.Scale(math.Pow(1-ndv, 5) * (1 - s.SheenRoughness*0.5)))
	}
	out := direct.Mul(l.Color).Scale(ndl)
	out = out.Add(l.Ambient.Mul(base).Scale(s.Occlusion))
	return out.Add(s.Emissive)
}

// Sky is a three-stop vertical gradient.
type Sky struct {
	Zenith, Horizon, Ground math3d.Vec3
}

// DefaultSky returns a pale blue sky over a grey ground.
func DefaultSky() Sky {
	return Sky{
		Zenith:  math3d.V3(0.18, 0.36, 0.7),
		Horizon: math3d.V3(0.72, 0.8, 0.9),
		Ground:  math3d.V3(0.2, 0.19, 0.18),
	}
}

func lerp3(a, b math3d.Vec3, t float64) math3d.Vec3 {
	return a.Scale(1 - t).Add(b.Scale(t))
}

// Color returns the opaque sky color along dir.
func (s Sky) Color(dir math3d.Vec3) math3d.Vec4 {
	t := math3d.Clamp(dir.Normalize().Y, -1, 1)
	if !math3d.IsFinite(t) {
		t = 0
	}
	if t >= 0 {
		return math3d.V4FromV3(lerp3(s.Horizon, s.Zenith, t), 1)
	}
	return math3d.V4FromV3(lerp3(s.Horizon, s.Ground, -t), 1)
}
