// Package fetch samples logical textures out of the atlas. A fetch
// resolves the texture's entry, applies its UV transform, folds the
// coordinate through the address modes and filters the atlas either at
// a level derived from gradients or at an explicit level.
package fetch

import (
	"math"

	"github.com/taigrr/vbshade/pkg/atlas"
	"github.com/taigrr/vbshade/pkg/deriv"
	"github.com/taigrr/vbshade/pkg/lod"
	"github.com/taigrr/vbshade/pkg/math3d"
)

// Mode selects how the mip level of a fetch is chosen.
type Mode int

const (
	ModeGradient Mode = iota // Level from UV derivatives
	ModeLevel                // Explicit level
)

// String returns the flag spelling of the mode.
func (m Mode) String() string {
	if m == ModeLevel {
		return "level"
	}
	return "gradient"
}

// Transparent is returned for any fetch that cannot be resolved.
var Transparent = math3d.Vec4{}

// Fetcher reads from one atlas. All tables are shared and read-only.
type Fetcher struct {
	Atlas      *atlas.Atlas
	Entries    []atlas.Entry
	Transforms []atlas.UvTransform
	Mapper     lod.Mapper
}

// New returns a fetcher with an isotropic mapper.
func New(a *atlas.Atlas, entries []atlas.Entry, transforms []atlas.UvTransform, bias float64) *Fetcher {
	return &Fetcher{
		Atlas:      a,
		Entries:    entries,
		Transforms: transforms,
		Mapper:     lod.NewMapper(a, bias),
	}
}

type resolved struct {
	entry   atlas.Entry
	xf      atlas.UvTransform
	sampler atlas.Sampler
}

// resolve looks up everything a fetch needs, rejecting any index that
// falls outside its table.
func (f *Fetcher) resolve(index int) (resolved, bool) {
	if f == nil || f.Atlas == nil || index < 0 || index >= len(f.Entries) {
		return resolved{}, false
	}
	e := f.Entries[index]
	if e.Layer < 0 || e.Layer >= len(f.Atlas.Layers) {
		return resolved{}, false
	}
	if e.Sampler < 0 || e.Sampler >= len(f.Atlas.Samplers) {
		return resolved{}, false
	}
	xf := atlas.IdentityTransform
	if e.UvTransform != 0 {
		if e.UvTransform < 0 || e.UvTransform >= len(f.Transforms) {
			return resolved{}, false
		}
		xf = f.Transforms[e.UvTransform]
	}
	return resolved{entry: e, xf: xf, sampler: f.Atlas.Samplers[e.Sampler]}, true
}

// wrap folds a transformed coordinate through the entry's address modes.
func wrap(e atlas.Entry, uv math3d.Vec2) math3d.Vec2 {
	return math3d.V2(e.AddressU.Apply(uv.X), e.AddressV.Apply(uv.Y))
}

// texelPoint maps a folded coordinate to level-0 atlas pixels. 1.0 lands
// on the center of the last texel.
func texelPoint(e atlas.Entry, uv math3d.Vec2) math3d.Vec2 {
	sx, sy := e.TexelSpan()
	return math3d.V2(
		float64(e.X)+uv.X*sx+0.5,
		float64(e.Y)+uv.Y*sy+0.5,
	)
}

// Level samples texture index at uv using an explicit mip level.
func (f *Fetcher) Level(index int, uv math3d.Vec2, level float64) math3d.Vec4 {
	r, ok := f.resolve(index)
	if !ok || !uv.IsFinite() {
		return Transparent
	}
	if !math3d.IsFinite(level) {
		level = 0
	}
	level = math3d.Clamp(level, 0, float64(max(r.entry.MaxLevel, 0)))
	p := texelPoint(r.entry, wrap(r.entry, r.xf.Apply(uv)))
	return f.Atlas.Sample(r.entry.Layer, level, p, r.sampler)
}

// Grad samples texture index at uv with derivatives d, both in the
// texture's local UV space. The derivatives pass through the transform's
// matrix only; they are never wrapped.
func (f *Fetcher) Grad(index int, uv math3d.Vec2, d deriv.UvDerivs) math3d.Vec4 {
	r, ok := f.resolve(index)
	if !ok || !uv.IsFinite() {
		return Transparent
	}

	raw := r.xf.Apply(uv)
	td := deriv.UvDerivs{DDX: r.xf.ApplyVector(d.DDX), DDY: r.xf.ApplyVector(d.DDY)}
	wrapped := wrap(r.entry, raw)

	sel := f.Mapper.Select(td, r.entry)
	sel = f.Mapper.Cap(sel, raw, wrapped, r.entry)

	if sel.Ratio <= 1 {
		return f.Atlas.Sample(r.entry.Layer, sel.LOD, texelPoint(r.entry, wrapped), r.sampler)
	}
	return f.anisotropic(r, raw, td, sel)
}

// anisotropic averages taps spread along the major gradient axis. Each
// tap's coordinate is folded on its own.
func (f *Fetcher) anisotropic(r resolved, raw math3d.Vec2, d deriv.UvDerivs, sel lod.Result) math3d.Vec4 {
	major := d.DDX
	if sel.AlongY {
		major = d.DDY
	}
	n := int(math.Ceil(sel.Ratio))
	var sum math3d.Vec4
	for i := range n {
		t := (float64(i)+0.5)/float64(n) - 0.5
		uv := wrap(r.entry, raw.Add(major.Scale(t)))
		sum = sum.Add(f.Atlas.Sample(r.entry.Layer, sel.LOD, texelPoint(r.entry, uv), r.sampler))
	}
	return sum.Scale(1 / float64(n))
}

// Fetch dispatches on mode. level is used only by ModeLevel.
func (f *Fetcher) Fetch(mode Mode, index int, uv math3d.Vec2, d deriv.UvDerivs, level float64) math3d.Vec4 {
	if mode == ModeLevel {
		return f.Level(index, uv, level)
	}
	return f.Grad(index, uv, d)
}

// LevelFor reports the level a gradient fetch of index would use. It is
// exposed for diagnostics and tests.
func (f *Fetcher) LevelFor(index int, uv math3d.Vec2, d deriv.UvDerivs) (float64, bool) {
	r, ok := f.resolve(index)
	if !ok {
		return 0, false
	}
	raw := r.xf.Apply(uv)
	td := deriv.UvDerivs{DDX: r.xf.ApplyVector(d.DDX), DDY: r.xf.ApplyVector(d.DDY)}
	sel := f.Mapper.Select(td, r.entry)
	return f.Mapper.Cap(sel, raw, wrap(r.entry, raw), r.entry).LOD, true
}
