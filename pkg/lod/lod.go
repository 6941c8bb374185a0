// Package lod turns local UV derivatives into a mip level of the shared
// atlas. Derivatives are rescaled by where and how large the texture is
// packed before they are reduced, so the level tracks the texture's real
// texel density instead of a fixed constant.
package lod

import (
	"math"

	"github.com/taigrr/vbshade/pkg/atlas"
	"github.com/taigrr/vbshade/pkg/deriv"
	"github.com/taigrr/vbshade/pkg/math3d"
)

const (
	// Epsilon keeps log2 away from zero gradients.
	Epsilon = 1.0 / 65536
	// DefaultMaxAnisotropy bounds the anisotropy ratio.
	DefaultMaxAnisotropy = 16.0
)

// Result is a selected level plus, for anisotropic reduction, the ratio
// and which screen axis carries the larger gradient.
type Result struct {
	LOD    float64
	Ratio  float64
	AlongY bool
}

// Mapper selects levels for one atlas.
type Mapper struct {
	AtlasWidth    int
	AtlasHeight   int
	Padding       int
	Bias          float64
	Anisotropic   bool
	MaxAnisotropy float64
}

// NewMapper returns an isotropic mapper for a.
func NewMapper(a *atlas.Atlas, bias float64) Mapper {
	return Mapper{
		AtlasWidth:    a.Width,
		AtlasHeight:   a.Height,
		Padding:       a.Padding,
		Bias:          bias,
		MaxAnisotropy: DefaultMaxAnisotropy,
	}
}

// Scale returns the per-axis factor (size-1)/atlas dimension of e.
func (m Mapper) Scale(e atlas.Entry) math3d.Vec2 {
	sx, sy := e.TexelSpan()
	return math3d.V2(sx/float64(max(m.AtlasWidth, 1)), sy/float64(max(m.AtlasHeight, 1)))
}

// AtlasGradient converts local derivatives into atlas-space gradients:
// first into local texels by (size-1), then by the atlas scale factor.
// The result is d·(size-1)²/atlas dimension, so doubling both the packed
// size and the atlas raises the level by one rather than holding it.
func (m Mapper) AtlasGradient(d deriv.UvDerivs, e atlas.Entry) (ddx, ddy math3d.Vec2) {
	sx, sy := e.TexelSpan()
	texels := math3d.V2(sx, sy)
	s := m.Scale(e)
	return d.DDX.Mul(texels).Mul(s), d.DDY.Mul(texels).Mul(s)
}

// Select reduces the derivatives to a level clamped to [0, e.MaxLevel].
// Any non-finite intermediate yields level 0.
func (m Mapper) Select(d deriv.UvDerivs, e atlas.Entry) Result {
	ddx, ddy := m.AtlasGradient(d, e)
	lx, ly := ddx.Len(), ddy.Len()
	if !math3d.IsFinite(lx) || !math3d.IsFinite(ly) {
		return Result{Ratio: 1}
	}

	r := Result{Ratio: 1, AlongY: ly > lx}
	rho := math.Max(lx, ly)
	if m.Anisotropic {
		minor := math.Min(lx, ly)
		limit := math.Max(m.MaxAnisotropy, 1)
		ratio := math.Min(rho/math.Max(minor, Epsilon), limit)
		if math3d.IsFinite(ratio) && ratio > 1 {
			r.Ratio = ratio
			rho /= ratio
		}
	}

	lod := math.Log2(math.Max(rho, Epsilon)) + m.Bias
	if !math3d.IsFinite(lod) {
		return Result{Ratio: 1}
	}
	r.LOD = math3d.Clamp(lod, 0, float64(max(e.MaxLevel, 0)))
	return r
}

// PaddingLimit is the highest level whose texels still fit inside the
// atlas padding.
func (m Mapper) PaddingLimit() float64 {
	return math.Log2(float64(max(m.Padding, 1)))
}

// Cap lowers r.LOD to PaddingLimit when the sample is outside the
// texture's valid region under its address mode: raw is the coordinate
// before the address mode, wrapped the coordinate after it. A sample is
// outside when a clamped axis had to pull it back into [0, 1], or when the
// filter footprint at the selected level reaches past the texture's edge.
// Repeating axes fold raw onto a valid coordinate, so only the footprint
// of wrapped counts for them.
func (m Mapper) Cap(r Result, raw, wrapped math3d.Vec2, e atlas.Entry) Result {
	limit := m.PaddingLimit()
	if r.LOD <= limit {
		return r
	}
	if m.outside(r.LOD, raw, wrapped, e) {
		r.LOD = limit
	}
	return r
}

func (m Mapper) outside(level float64, raw, wrapped math3d.Vec2, e atlas.Entry) bool {
	if !raw.IsFinite() || clamped(raw.X, e.AddressU) || clamped(raw.Y, e.AddressV) {
		return true
	}
	half := math.Exp2(level) / 2
	sx, sy := e.TexelSpan()
	px := wrapped.X*sx + 0.5
	py := wrapped.Y*sy + 0.5
	dx := math.Min(px, float64(e.Width)-px)
	dy := math.Min(py, float64(e.Height)-py)
	return dx < half || dy < half
}

// clamped reports whether mode pulls c back onto the texture's edge.
func clamped(c float64, mode atlas.AddressMode) bool {
	return mode == atlas.ClampToEdge && (c < 0 || c > 1)
}
