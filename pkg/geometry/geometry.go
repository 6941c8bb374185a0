// Package geometry decodes one visibility-buffer sample into everything
// shading needs: the triangle's metadata and vertex indices, barycentric
// weights, the decoded tangent frame, and the world position rebuilt
// from depth through the inverse projection and inverse view.
package geometry

import (
	"errors"
	"fmt"

	"github.com/taigrr/vbshade/pkg/frame"
	"github.com/taigrr/vbshade/pkg/math3d"
	"github.com/taigrr/vbshade/pkg/visbuf"
)

// ErrSingular is returned when a camera matrix cannot be inverted.
var ErrSingular = errors.New("geometry: camera matrix is singular")

// View is the camera state of a frame, with the inverses precomputed.
type View struct {
	Width, Height int
	View          math3d.Mat4
	Proj          math3d.Mat4
	ViewProj      math3d.Mat4
	InvView       math3d.Mat4
	InvProj       math3d.Mat4
	Eye           math3d.Vec3
}

// NewView prepares view and zero-to-one projection matrices for a
// width×height target.
func NewView(view, proj math3d.Mat4, width, height int) (View, error) {
	invView, ok := view.Inverse()
	if !ok {
		return View{}, fmt.Errorf("invert view: %w", ErrSingular)
	}
	invProj, ok := proj.Inverse()
	if !ok {
		return View{}, fmt.Errorf("invert projection: %w", ErrSingular)
	}
	return View{
		Width:    width,
		Height:   height,
		View:     view,
		Proj:     proj,
		ViewProj: proj.Mul(view),
		InvView:  invView,
		InvProj:  invProj,
		Eye:      invView.MulVec3(math3d.Vec3{}),
	}, nil
}

// NDC maps a pixel-space position to normalized device x/y. Pixel y grows
// downward, NDC y upward.
func (v View) NDC(p math3d.Vec2) math3d.Vec2 {
	return math3d.V2(
		2*p.X/float64(v.Width)-1,
		1-2*p.Y/float64(v.Height),
	)
}

// Project maps a world position to pixel space and clip-space depth. ok
// is false behind the eye.
func (v View) Project(world math3d.Vec3) (p math3d.Vec2, depth float64, ok bool) {
	clip := v.ViewProj.MulVec4(math3d.V4FromV3(world, 1))
	if clip.W <= 1e-9 {
		return math3d.Vec2{}, 0, false
	}
	ndc := clip.PerspectiveDivide()
	return math3d.V2(
		(ndc.X+1)*0.5*float64(v.Width),
		(1-ndc.Y)*0.5*float64(v.Height),
	), ndc.Z, true
}

// viewPosition rebuilds the view-space position of a sample.
func (v View) viewPosition(p math3d.Vec2, depth float64) math3d.Vec3 {
	ndc := v.NDC(p)
	return v.InvProj.MulVec4(math3d.V4(ndc.X, ndc.Y, depth, 1)).PerspectiveDivide()
}

// Unproject rebuilds the world position of a pixel-space point at a
// clip-space depth in [0,1].
func (v View) Unproject(p math3d.Vec2, depth float64) math3d.Vec3 {
	return v.InvView.MulVec3(v.viewPosition(p, depth))
}

// ViewDepth returns the positive view-space distance of a sample.
func (v View) ViewDepth(p math3d.Vec2, depth float64) float64 {
	return -v.viewPosition(p, depth).Z
}

// Status is the outcome of decoding one sample.
type Status int

const (
	StatusOK         Status = iota
	StatusBackground        // No geometry; defer to the backdrop
	StatusSkipped           // Layout does not match this variant
	StatusInvalid           // Dangling metadata, triangle or vertex reference
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusBackground:
		return "background"
	case StatusSkipped:
		return "skipped"
	case StatusInvalid:
		return "invalid"
	default:
		return "ok"
	}
}

// Sample is a decoded visibility sample.
type Sample struct {
	X, Y, S    int
	Pixel      math3d.Vec2 // sample position in pixels
	Triangle   uint32
	MetaOffset uint32
	Meta       frame.MeshMeta
	Vertices   [3]uint32
	Bary       [3]float64
	Frame      visbuf.NormalTangent
	Depth      float64
	World      math3d.Vec3
}

// Decoder reads samples of one frame. It holds no mutable state and may be
// shared by every worker of a dispatch.
type Decoder struct {
	Frame   *frame.Frame
	Buffers *visbuf.Buffers
	View    View

	// Variant is the layout this decoder accepts. MatchAll accepts any.
	Variant  frame.Layout
	MatchAll bool
}

// Accepts reports whether meta's layout matches the decoder's variant.
func (d *Decoder) Accepts(meta frame.MeshMeta) bool {
	return d.MatchAll || meta.Layout() == d.Variant
}

// Samples returns the per-pixel sample count of the buffers.
func (d *Decoder) Samples() int {
	return d.Buffers.Samples
}

// InBounds reports whether (x, y) lies inside the logical image.
func (d *Decoder) InBounds(x, y int) bool {
	return d.Buffers.InBounds(x, y)
}

// SamplePixel returns the pixel-space position of sample s of (x, y).
func (d *Decoder) SamplePixel(x, y, s int) math3d.Vec2 {
	return math3d.V2(float64(x), float64(y)).Add(visbuf.SamplePosition(d.Buffers.Samples, s))
}

// Visibility returns the visibility of a sample, or background when the
// coordinates fall outside the buffers.
func (d *Decoder) Visibility(x, y, s int) visbuf.VisibilitySample {
	if !d.Buffers.InBounds(x, y) || s < 0 || s >= d.Buffers.Samples {
		return visbuf.VisibilitySample{Triangle: visbuf.NoGeometry}
	}
	return d.Buffers.VisibilityAt(x, y, s)
}

// Normal returns the decoded normal of a sample without the rest of its
// frame. The caller bounds-checks.
func (d *Decoder) Normal(x, y, s int) math3d.Vec3 {
	return d.Buffers.NormalTangent[d.Buffers.Index(x, y, s)].DecodeNormal()
}

// ViewDepth returns the view-space distance of a sample. The caller
// bounds-checks.
func (d *Decoder) ViewDepth(x, y, s int) float64 {
	depth := float64(d.Buffers.Depth[d.Buffers.Index(x, y, s)])
	return d.View.ViewDepth(d.SamplePixel(x, y, s), depth)
}

// Decode fully decodes sample s of pixel (x, y).
func (d *Decoder) Decode(x, y, s int) (Sample, Status) {
	smp := Sample{X: x, Y: y, S: s}
	if !d.Buffers.InBounds(x, y) || s < 0 || s >= d.Buffers.Samples {
		return smp, StatusInvalid
	}
	i := d.Buffers.Index(x, y, s)
	vis := d.Buffers.Visibility[i].Unpack()
	smp.Pixel = d.SamplePixel(x, y, s)
	if vis.Background() {
		return smp, StatusBackground
	}

	meta, ok := d.Frame.Meta(vis.MetaOffset)
	if !ok {
		return smp, StatusInvalid
	}
	if !d.Accepts(meta) {
		return smp, StatusSkipped
	}
	verts, ok := d.Frame.TriangleVertices(meta, vis.Triangle)
	if !ok {
		return smp, StatusInvalid
	}

	smp.Triangle = vis.Triangle
	smp.MetaOffset = vis.MetaOffset
	smp.Meta = meta
	smp.Vertices = verts
	b0, b1, b2 := d.Buffers.Bary[i].Weights()
	smp.Bary = [3]float64{b0, b1, b2}
	smp.Frame = d.Buffers.NormalTangent[i].Decode()
	smp.Depth = float64(d.Buffers.Depth[i])
	smp.World = d.View.Unproject(smp.Pixel, smp.Depth)
	return smp, StatusOK
}

// ScreenPositions projects the sample's triangle to pixel space. ok is
// false when any vertex is behind the eye.
func (d *Decoder) ScreenPositions(smp Sample) (s [3]math3d.Vec2, ok bool) {
	model := d.Frame.Transform(smp.Meta.Transform).Model
	for k, v := range smp.Vertices {
		world := model.MulVec3(d.Frame.Position(smp.Meta, v))
		if s[k], _, ok = d.View.Project(world); !ok {
			return s, false
		}
	}
	return s, true
}

// Interpolate2 blends a per-vertex attribute with the sample's weights.
func (smp Sample) Interpolate2(a [3]math3d.Vec2) math3d.Vec2 {
	return math3d.Blend(a, smp.weights())
}

// Interpolate4 blends a per-vertex Vec4 attribute with the sample's weights.
func (smp Sample) Interpolate4(a [3]math3d.Vec4) math3d.Vec4 {
	return math3d.Blend(a, smp.weights())
}

func (smp Sample) weights() math3d.Vec3 {
	return math3d.V3(smp.Bary[0], smp.Bary[1], smp.Bary[2])
}
