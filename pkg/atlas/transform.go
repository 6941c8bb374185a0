package atlas

import (
	"math"

	"github.com/taigrr/vbshade/pkg/math3d"
)

// UvTransform is an affine map of texture coordinates: uv' = M·uv + T.
// M is row-major.
type UvTransform struct {
	M [2][2]float64
	T math3d.Vec2
}

// IdentityTransform leaves coordinates unchanged.
var IdentityTransform = UvTransform{M: [2][2]float64{{1, 0}, {0, 1}}}

// NewUvTransform builds a transform that scales, then rotates
// counter-clockwise by rotation radians, both about origin, and finally
// translates by offset.
func NewUvTransform(offset, scale math3d.Vec2, rotation float64, origin math3d.Vec2) UvTransform {
	c, s := math.Cos(rotation), math.Sin(rotation)
	m := [2][2]float64{
		{c * scale.X, -s * scale.Y},
		{s * scale.X, c * scale.Y},
	}
	t := UvTransform{M: m}
	// uv' = M(uv - origin) + origin + offset
	shift := t.ApplyVector(origin)
	t.T = origin.Sub(shift).Add(offset)
	return t
}

// Apply transforms a coordinate, including the translation.
func (t UvTransform) Apply(uv math3d.Vec2) math3d.Vec2 {
	return t.ApplyVector(uv).Add(t.T)
}

// ApplyVector transforms a derivative or direction: the matrix only.
func (t UvTransform) ApplyVector(d math3d.Vec2) math3d.Vec2 {
	return math3d.V2(
		t.M[0][0]*d.X+t.M[0][1]*d.Y,
		t.M[1][0]*d.X+t.M[1][1]*d.Y,
	)
}

// Determinant returns det(M).
func (t UvTransform) Determinant() float64 {
	return t.M[0][0]*t.M[1][1] - t.M[0][1]*t.M[1][0]
}

// Inverse returns the inverse transform. ok is false when M is singular.
func (t UvTransform) Inverse() (UvTransform, bool) {
	det := t.Determinant()
	if math.Abs(det) < 1e-12 || !math3d.IsFinite(det) {
		return IdentityTransform, false
	}
	inv := UvTransform{M: [2][2]float64{
		{t.M[1][1] / det, -t.M[0][1] / det},
		{-t.M[1][0] / det, t.M[0][0] / det},
	}}
	inv.T = inv.ApplyVector(t.T).Scale(-1)
	return inv, true
}

// TransformTable deduplicates transforms while a frame is assembled.
// Index 0 is always the identity.
type TransformTable struct {
	list  []UvTransform
	index map[UvTransform]int
}

// NewTransformTable returns a table holding only the identity.
func NewTransformTable() *TransformTable {
	return &TransformTable{
		list:  []UvTransform{IdentityTransform},
		index: map[UvTransform]int{IdentityTransform: 0},
	}
}

// Intern returns the index of t, adding it on first use.
func (tt *TransformTable) Intern(t UvTransform) int {
	if i, ok := tt.index[t]; ok {
		return i
	}
	i := len(tt.list)
	tt.list = append(tt.list, t)
	tt.index[t] = i
	return i
}

// Len returns the number of distinct transforms.
func (tt *TransformTable) Len() int {
	return len(tt.list)
}

// Transforms returns a copy of the table for the immutable frame.
func (tt *TransformTable) Transforms() []UvTransform {
	out := make([]UvTransform, len(tt.list))
	copy(out, tt.list)
	return out
}
