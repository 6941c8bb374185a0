// Package vispass is the geometry pass that feeds the shading kernel. It
// rasterizes every mesh of a frame into visibility buffers: per sample it
// stores the covering triangle, perspective-correct barycentrics, the
// packed world-space tangent frame and clip-space depth.
package vispass

import (
	"math"

	"github.com/taigrr/vbshade/pkg/frame"
	"github.com/taigrr/vbshade/pkg/geometry"
	"github.com/taigrr/vbshade/pkg/math3d"
	"github.com/taigrr/vbshade/pkg/visbuf"
)

// Options tunes the pass.
type Options struct {
	CullBackfaces bool
}

// Stats counts what one pass did.
type Stats struct {
	Meshes    int
	Culled    int // meshes rejected by the frustum test
	Triangles int
	Clipped   int // triangles split by the near plane
	Covered   int // sample writes that passed the depth test
}

// clipVertex is a clip-space position with its weights relative to the
// source triangle, so clipped vertices still map back to it.
type clipVertex struct {
	clip math3d.Vec4
	bary math3d.Vec3
}

// screenVertex is a clipVertex after the perspective divide.
type screenVertex struct {
	X, Y, Z float64
	InvW    float64
	bary    math3d.Vec3
}

// source is the triangle being drawn, in world space.
type source struct {
	vis      visbuf.PackedVisibility
	normals  [3]math3d.Vec3
	tangents [3]math3d.Vec3
	sign     float64
	face     math3d.Vec3
}

type rasterizer struct {
	buf   *visbuf.Buffers
	view  geometry.View
	opts  Options
	stats Stats
	src   source
}

// Rasterize clears buf and draws every mesh of f as seen through view.
func Rasterize(f *frame.Frame, view geometry.View, buf *visbuf.Buffers, opts Options) Stats {
	buf.Clear()
	r := &rasterizer{buf: buf, view: view, opts: opts}
	frustum := NewFrustum(view.ViewProj)

	for mi, meta := range f.Metas {
		r.stats.Meshes++
		xf := f.Transform(meta.Transform)
		if !frustum.Intersects(meshBounds(f, meta).Transform(xf.Model)) {
			r.stats.Culled++
			continue
		}
		mvp := view.ViewProj.Mul(xf.Model)
		for tri := range meta.TriangleCount {
			verts, ok := f.TriangleVertices(meta, tri)
			if !ok {
				continue
			}
			r.stats.Triangles++
			r.bind(f, meta, xf, verts, visbuf.VisibilitySample{Triangle: tri, MetaOffset: uint32(mi)})

			poly := []clipVertex{
				{mvp.MulVec4(math3d.V4FromV3(f.Position(meta, verts[0]), 1)), math3d.V3(1, 0, 0)},
				{mvp.MulVec4(math3d.V4FromV3(f.Position(meta, verts[1]), 1)), math3d.V3(0, 1, 0)},
				{mvp.MulVec4(math3d.V4FromV3(f.Position(meta, verts[2]), 1)), math3d.V3(0, 0, 1)},
			}
			clipped := clipNear(poly)
			if len(clipped) < 3 {
				continue
			}
			if poly[0].clip.Z < 0 || poly[1].clip.Z < 0 || poly[2].clip.Z < 0 {
				r.stats.Clipped++
			}
			for i := 1; i+1 < len(clipped); i++ {
				r.drawTriangle(r.project(clipped[0]), r.project(clipped[i]), r.project(clipped[i+1]))
			}
		}
	}
	return r.stats
}

// meshBounds returns the object-space bounds of a mesh's vertices.
func meshBounds(f *frame.Frame, m frame.MeshMeta) AABB {
	if m.VertexCount == 0 {
		return AABB{}
	}
	p := f.Position(m, 0)
	b := AABB{Min: p, Max: p}
	for v := uint32(1); v < m.VertexCount; v++ {
		p = f.Position(m, v)
		b.Min = b.Min.Min(p)
		b.Max = b.Max.Max(p)
	}
	return b
}

// bind loads the world-space tangent frame of a triangle.
func (r *rasterizer) bind(f *frame.Frame, m frame.MeshMeta, xf frame.Transform, v [3]uint32, vis visbuf.VisibilitySample) {
	r.src.vis = visbuf.PackVisibility(vis)
	var world [3]math3d.Vec3
	for k := range 3 {
		world[k] = xf.Model.MulVec3(f.Position(m, v[k]))
		r.src.normals[k] = xf.Normal.MulVec3Dir(f.Normal(m, v[k]))
		r.src.tangents[k] = xf.Model.MulVec3Dir(f.Tangent(m, v[k]).Vec3())
	}
	r.src.face = world[1].Sub(world[0]).Cross(world[2].Sub(world[0])).Normalize()
	r.src.sign = 1
	if f.Tangent(m, v[0]).W < 0 {
		r.src.sign = -1
	}
}

// clipNear clips a convex polygon against clip z >= 0.
func clipNear(in []clipVertex) []clipVertex {
	out := make([]clipVertex, 0, len(in)+1)
	for i := range in {
		a, b := in[i], in[(i+1)%len(in)]
		da, db := a.clip.Z, b.clip.Z
		if da >= 0 {
			out = append(out, a)
		}
		if (da >= 0) != (db >= 0) {
			t := da / (da - db)
			out = append(out, clipVertex{
				clip: a.clip.Lerp(b.clip, t),
				bary: a.bary.Scale(1 - t).Add(b.bary.Scale(t)),
			})
		}
	}
	return out
}

func (r *rasterizer) project(v clipVertex) screenVertex {
	invW := 1 / v.clip.W
	return screenVertex{
		X:    (v.clip.X*invW + 1) * 0.5 * float64(r.buf.Width),
		Y:    (1 - v.clip.Y*invW) * 0.5 * float64(r.buf.Height),
		Z:    v.clip.Z * invW,
		InvW: invW,
		bary: v.bary,
	}
}

// edgeCoeffs returns A, B, C of edge(x, y) = A*x + B*y + C, positive to
// the left of (x0,y0)->(x1,y1).
func edgeCoeffs(x0, y0, x1, y1 float64) (A, B, C float64) {
	A = y0 - y1
	B = x1 - x0
	C = x0*y1 - x1*y0
	return
}

func edgeFunc(A, B, C, x, y float64) float64 {
	return A*x + B*y + C
}

// edges holds the three edge functions of a screen triangle, each
// normalized by twice the signed area so they evaluate to the
// screen-linear weight of the opposite vertex.
type edges [3][3]float64

func (e *edges) weights(x, y float64) (l0, l1, l2 float64) {
	return edgeFunc(e[0][0], e[0][1], e[0][2], x, y),
		edgeFunc(e[1][0], e[1][1], e[1][2], x, y),
		edgeFunc(e[2][0], e[2][1], e[2][2], x, y)
}

// sourceBary returns the perspective-correct weights of the source
// triangle at screen-linear weights l.
func sourceBary(sv *[3]screenVertex, l0, l1, l2 float64) (math3d.Vec3, bool) {
	q0, q1, q2 := l0*sv[0].InvW, l1*sv[1].InvW, l2*sv[2].InvW
	sum := q0 + q1 + q2
	if math.Abs(sum) < 1e-20 {
		return math3d.Vec3{}, false
	}
	inv := 1 / sum
	b := sv[0].bary.Scale(q0 * inv).Add(sv[1].bary.Scale(q1 * inv)).Add(sv[2].bary.Scale(q2 * inv))
	return b, true
}

func (r *rasterizer) drawTriangle(v0, v1, v2 screenVertex) {
	area2 := (v1.X-v0.X)*(v2.Y-v0.Y) - (v1.Y-v0.Y)*(v2.X-v0.X)
	if area2 == 0 || math.IsNaN(area2) {
		return
	}
	// Counter-clockwise in NDC is clockwise once y points down.
	if r.opts.CullBackfaces && area2 > 0 {
		return
	}
	sv := [3]screenVertex{v0, v1, v2}

	minX := max(0, int(math.Floor(min(v0.X, v1.X, v2.X))))
	maxX := min(r.buf.Width-1, int(math.Ceil(max(v0.X, v1.X, v2.X))))
	minY := max(0, int(math.Floor(min(v0.Y, v1.Y, v2.Y))))
	maxY := min(r.buf.Height-1, int(math.Ceil(max(v0.Y, v1.Y, v2.Y))))
	if minX > maxX || minY > maxY {
		return
	}

	inv := 1 / area2
	var e edges
	for k := range 3 {
		a, b := sv[(k+1)%3], sv[(k+2)%3]
		A, B, C := edgeCoeffs(a.X, a.Y, b.X, b.Y)
		e[k] = [3]float64{A * inv, B * inv, C * inv}
	}

	samples := r.buf.Samples
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			for s := range samples {
				p := visbuf.SamplePosition(samples, s)
				px, py := float64(x)+p.X, float64(y)+p.Y
				l0, l1, l2 := e.weights(px, py)
				if l0 < 0 || l1 < 0 || l2 < 0 {
					continue
				}
				z := l0*v0.Z + l1*v1.Z + l2*v2.Z
				i := r.buf.Index(x, y, s)
				if z < 0 || z > 1 || z >= float64(r.buf.Depth[i]) {
					continue
				}
				bary, ok := sourceBary(&sv, l0, l1, l2)
				if !ok {
					continue
				}
				r.write(i, bary, z)
				if r.buf.HasDerivs() {
					r.buf.BaryDerivs[i] = r.derivs(&sv, &e, px, py, bary)
				}
			}
		}
	}
}

// derivs differentiates the perspective-correct weights one pixel to the
// right and one pixel down, the way a quad of hardware invocations would.
func (r *rasterizer) derivs(sv *[3]screenVertex, e *edges, px, py float64, b math3d.Vec3) visbuf.BaryDerivs {
	x0, x1, x2 := e.weights(px+1, py)
	y0, y1, y2 := e.weights(px, py+1)
	bx, okx := sourceBary(sv, x0, x1, x2)
	by, oky := sourceBary(sv, y0, y1, y2)
	if !okx || !oky {
		return visbuf.BaryDerivs{}
	}
	dx, dy := bx.Sub(b), by.Sub(b)
	return visbuf.BaryDerivs{
		DB1DX: float32(dx.Y),
		DB1DY: float32(dy.Y),
		DB2DX: float32(dx.Z),
		DB2DY: float32(dy.Z),
	}
}

func (r *rasterizer) write(i int, b math3d.Vec3, z float64) {
	src := &r.src
	n := src.normals[0].Scale(b.X).Add(src.normals[1].Scale(b.Y)).Add(src.normals[2].Scale(b.Z)).Normalize()
	if n == (math3d.Vec3{}) {
		n = src.face
	}
	t := src.tangents[0].Scale(b.X).Add(src.tangents[1].Scale(b.Y)).Add(src.tangents[2].Scale(b.Z))
	t = t.Sub(n.Scale(n.Dot(t))).Normalize()
	if t == (math3d.Vec3{}) {
		t = perpendicular(n)
	}

	r.buf.Visibility[i] = src.vis
	r.buf.Bary[i] = visbuf.Barycentric{B1: float32(b.Y), B2: float32(b.Z)}
	r.buf.NormalTangent[i] = visbuf.PackNormalTangent(n, t, src.sign)
	r.buf.Depth[i] = float32(z)
	r.stats.Covered++
}

// perpendicular returns some unit vector orthogonal to n.
func perpendicular(n math3d.Vec3) math3d.Vec3 {
	axis := math3d.V3(1, 0, 0)
	if math.Abs(n.X) > 0.9 {
		axis = math3d.V3(0, 1, 0)
	}
	return n.Cross(axis).Normalize()
}
