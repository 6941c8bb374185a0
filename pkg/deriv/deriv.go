// Package deriv computes analytic screen-space derivatives of per-vertex
// attribute coordinates. It needs no neighbouring pixels: the derivative
// of any linearly interpolated attribute follows from the triangle's
// screen edges and the attribute's edges.
package deriv

import (
	"math"

	"github.com/taigrr/vbshade/pkg/math3d"
	"github.com/taigrr/vbshade/pkg/visbuf"
)

const (
	// DetEpsilon is the smallest screen-edge determinant, in square
	// pixels, that still yields a derivative.
	DetEpsilon = 1e-8
	// Limit bounds each derivative component, in attribute units per pixel.
	Limit = 1024.0
)

// UvDerivs holds d(uv)/dx and d(uv)/dy for one pixel.
type UvDerivs struct {
	DDX, DDY math3d.Vec2
}

// IsZero reports whether both derivatives are zero.
func (d UvDerivs) IsZero() bool {
	return d.DDX == (math3d.Vec2{}) && d.DDY == (math3d.Vec2{})
}

// Gradients are the screen-space derivatives of the barycentric weights
// b1 and b2. They are shared by every attribute of the triangle, so one
// solve serves all UV sets.
type Gradients struct {
	DB1DX, DB1DY float64
	DB2DX, DB2DY float64
}

// FromScreen inverts the screen-edge matrix of a triangle with screen
// positions s0, s1, s2 in pixels. ok is false for a degenerate triangle,
// in which case the zero Gradients are returned.
func FromScreen(s0, s1, s2 math3d.Vec2) (g Gradients, ok bool) {
	e1 := s1.Sub(s0)
	e2 := s2.Sub(s0)
	det := e1.Cross(e2)
	if !math3d.IsFinite(det) || math.Abs(det) < DetEpsilon {
		return Gradients{}, false
	}
	inv := 1 / det
	g = Gradients{
		DB1DX: e2.Y * inv,
		DB2DX: -e1.Y * inv,
		DB1DY: -e2.X * inv,
		DB2DY: e1.X * inv,
	}
	if !g.finite() {
		return Gradients{}, false
	}
	return g, true
}

// FromBuffer converts stored barycentric derivatives.
func FromBuffer(d visbuf.BaryDerivs) Gradients {
	g := Gradients{
		DB1DX: float64(d.DB1DX),
		DB1DY: float64(d.DB1DY),
		DB2DX: float64(d.DB2DX),
		DB2DY: float64(d.DB2DY),
	}
	if !g.finite() {
		return Gradients{}
	}
	return g
}

func (g Gradients) finite() bool {
	return math3d.IsFinite(g.DB1DX) && math3d.IsFinite(g.DB1DY) &&
		math3d.IsFinite(g.DB2DX) && math3d.IsFinite(g.DB2DY)
}

// Derivs applies the gradients to an attribute with vertex values a0, a1,
// a2. Components are clamped to ±Limit; a non-finite result collapses to
// zero derivatives.
func (g Gradients) Derivs(a0, a1, a2 math3d.Vec2) UvDerivs {
	f1 := a1.Sub(a0)
	f2 := a2.Sub(a0)
	d := UvDerivs{
		DDX: f1.Scale(g.DB1DX).Add(f2.Scale(g.DB2DX)),
		DDY: f1.Scale(g.DB1DY).Add(f2.Scale(g.DB2DY)),
	}
	return d.sanitize()
}

func (d UvDerivs) sanitize() UvDerivs {
	if !d.DDX.IsFinite() || !d.DDY.IsFinite() {
		return UvDerivs{}
	}
	d.DDX = d.DDX.Clamp(-Limit, Limit)
	d.DDY = d.DDY.Clamp(-Limit, Limit)
	return d
}

// Compute solves [e1 e2]·D = [f1 f2] for one attribute. It is FromScreen
// followed by Derivs; callers shading several UV sets of the same
// triangle should keep the Gradients instead.
func Compute(s0, s1, s2, a0, a1, a2 math3d.Vec2) UvDerivs {
	g, ok := FromScreen(s0, s1, s2)
	if !ok {
		return UvDerivs{}
	}
	return g.Derivs(a0, a1, a2)
}

// Cache memoizes per-UV-set derivatives for one sample.
type Cache struct {
	grad  Gradients
	valid uint8
	sets  [MaxUVSets]UvDerivs
}

// MaxUVSets is the number of UV sets a Cache can hold.
const MaxUVSets = 8

// Reset starts a new sample with the given gradients.
func (c *Cache) Reset(g Gradients) {
	c.grad = g
	c.valid = 0
}

// Get returns the derivatives of UV set i, computing them with load on
// first use. Sets beyond MaxUVSets are never cached.
func (c *Cache) Get(i int, load func() (a0, a1, a2 math3d.Vec2)) UvDerivs {
	if i < 0 || i >= MaxUVSets {
		return c.grad.Derivs(load())
	}
	if c.valid&(1<<i) == 0 {
		c.sets[i] = c.grad.Derivs(load())
		c.valid |= 1 << i
	}
	return c.sets[i]
}
