package vispass

import (
	"github.com/taigrr/vbshade/pkg/math3d"
)

// Plane is Ax + By + Cz + D = 0 with (A, B, C) the normal.
type Plane struct {
	Normal math3d.Vec3
	D      float64
}

// Normalize rescales the plane so its normal has unit length.
func (p *Plane) Normalize() {
	l := p.Normal.Len()
	if l == 0 {
		return
	}
	p.Normal = p.Normal.Scale(1 / l)
	p.D /= l
}

// Distance returns the signed distance to point, positive on the normal's
// side.
func (p Plane) Distance(point math3d.Vec3) float64 {
	return p.Normal.Dot(point) + p.D
}

// Frustum holds six inward-facing planes: left, right, bottom, top, near,
// far.
type Frustum struct {
	Planes [6]Plane
}

const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// NewFrustum extracts the planes of a zero-to-one depth view-projection
// matrix (Gribb/Hartmann). The near plane is row 2 alone because clip z
// starts at 0 rather than -w.
func NewFrustum(m math3d.Mat4) Frustum {
	// Column-major: row i, column j is m[i+4*j].
	row := func(i int) (math3d.Vec3, float64) {
		return math3d.V3(m[i], m[i+4], m[i+8]), m[i+12]
	}
	r0, d0 := row(0)
	r1, d1 := row(1)
	r2, d2 := row(2)
	r3, d3 := row(3)

	var f Frustum
	f.Planes[FrustumLeft] = Plane{r3.Add(r0), d3 + d0}
	f.Planes[FrustumRight] = Plane{r3.Sub(r0), d3 - d0}
	f.Planes[FrustumBottom] = Plane{r3.Add(r1), d3 + d1}
	f.Planes[FrustumTop] = Plane{r3.Sub(r1), d3 - d1}
	f.Planes[FrustumNear] = Plane{r2, d2}
	f.Planes[FrustumFar] = Plane{r3.Sub(r2), d3 - d2}
	for i := range f.Planes {
		f.Planes[i].Normalize()
	}
	return f
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max math3d.Vec3
}

// Transform bounds the eight transformed corners of b.
func (b AABB) Transform(m math3d.Mat4) AABB {
	out := AABB{Min: m.MulVec3(b.Min), Max: m.MulVec3(b.Min)}
	for i := 1; i < 8; i++ {
		c := b.Min
		if i&1 != 0 {
			c.X = b.Max.X
		}
		if i&2 != 0 {
			c.Y = b.Max.Y
		}
		if i&4 != 0 {
			c.Z = b.Max.Z
		}
		p := m.MulVec3(c)
		out.Min = out.Min.Min(p)
		out.Max = out.Max.Max(p)
	}
	return out
}

// Intersects reports whether any part of box may be inside f. It tests
// the corner furthest along each plane normal.
func (f Frustum) Intersects(box AABB) bool {
	for _, p := range f.Planes {
		pv := box.Min
		if p.Normal.X >= 0 {
			pv.X = box.Max.X
		}
		if p.Normal.Y >= 0 {
			pv.Y = box.Max.Y
		}
		if p.Normal.Z >= 0 {
			pv.Z = box.Max.Z
		}
		if p.Distance(pv) < 0 {
			return false
		}
	}
	return true
}

// Contains reports whether point lies inside every plane.
func (f Frustum) Contains(point math3d.Vec3) bool {
	for _, p := range f.Planes {
		if p.Distance(point) < 0 {
			return false
		}
	}
	return true
}
