package render

import (
	"math"

	"github.com/taigrr/vbshade/pkg/frame"
	"github.com/taigrr/vbshade/pkg/geometry"
	"github.com/taigrr/vbshade/pkg/math3d"
)

// Overlay colors.
var (
	ColorRed   = math3d.V4(1, 0, 0, 1)
	ColorGreen = math3d.V4(0, 1, 0, 1)
	ColorBlue  = math3d.V4(0, 0, 1, 1)
	ColorWire  = math3d.V4(0, 1, 0.5, 1)
)

// Wireframe draws debug lines over a shaded image.
type Wireframe struct {
	View  geometry.View
	Image *StorageImage
}

// NewWireframe creates a wireframe renderer for img seen through view.
func NewWireframe(view geometry.View, img *StorageImage) *Wireframe {
	return &Wireframe{View: view, Image: img}
}

// DrawLine draws a line from (x0, y0) to (x1, y1) using Bresenham's algorithm.
func (w *Wireframe) DrawLine(x0, y0, x1, y1 int, c math3d.Vec4) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		w.Image.SetPixel(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// DrawLine3D draws a world-space segment. Segments with an endpoint
// behind the eye are skipped.
func (w *Wireframe) DrawLine3D(p1, p2 math3d.Vec3, c math3d.Vec4) {
	a, _, ok1 := w.View.Project(p1)
	b, _, ok2 := w.View.Project(p2)
	if !ok1 || !ok2 {
		return
	}
	// Keep Bresenham bounded for nearly grazing segments.
	const limit = 1 << 16
	if math.Abs(a.X) > limit || math.Abs(a.Y) > limit || math.Abs(b.X) > limit || math.Abs(b.Y) > limit {
		return
	}
	w.DrawLine(int(math.Floor(a.X)), int(math.Floor(a.Y)), int(math.Floor(b.X)), int(math.Floor(b.Y)), c)
}

// DrawFrame outlines every triangle of f.
func (w *Wireframe) DrawFrame(f *frame.Frame, c math3d.Vec4) {
	for _, meta := range f.Metas {
		model := f.Transform(meta.Transform).Model
		for tri := range meta.TriangleCount {
			v, ok := f.TriangleVertices(meta, tri)
			if !ok {
				continue
			}
			var p [3]math3d.Vec3
			for k := range 3 {
				p[k] = model.MulVec3(f.Position(meta, v[k]))
			}
			w.DrawLine3D(p[0], p[1], c)
			w.DrawLine3D(p[1], p[2], c)
			w.DrawLine3D(p[2], p[0], c)
		}
	}
}

// DrawAxes draws the coordinate axes at the origin.
func (w *Wireframe) DrawAxes(length float64) {
	var origin math3d.Vec3
	w.DrawLine3D(origin, math3d.V3(length, 0, 0), ColorRed)
	w.DrawLine3D(origin, math3d.V3(0, length, 0), ColorGreen)
	w.DrawLine3D(origin, math3d.V3(0, 0, length), ColorBlue)
}
