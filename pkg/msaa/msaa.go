// Package msaa decides, per pixel, whether multisampled shading is needed
// and resolves it. Interior pixels shade sample 0 once; pixels on a
// silhouette, crease or depth discontinuity shade every sample and
// average the results.
package msaa

import (
	"math"

	"github.com/taigrr/vbshade/pkg/math3d"
	"github.com/taigrr/vbshade/pkg/visbuf"
)

// Diagnostic is written when an edge pixel has no valid sample. It marks
// an upstream invariant violation, not a normal outcome.
var Diagnostic = math3d.V4(1, 0, 1, 1)

// Thresholds tune edge detection.
type Thresholds struct {
	// NormalCos is the smallest normal dot product still considered the
	// same surface.
	NormalCos float64
	// NeighborDepth is the largest relative view-depth difference to a
	// neighbour still considered the same surface.
	NeighborDepth float64
	// SampleDepth is the largest relative view-depth range among a
	// pixel's own samples.
	SampleDepth float64
}

// DefaultThresholds returns an 18° crease angle, a 10% neighbour depth
// ratio and a 5% sub-sample depth ratio.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NormalCos:     math.Cos(18 * math.Pi / 180),
		NeighborDepth: 0.1,
		SampleDepth:   0.05,
	}
}

// Source is the read-only view of the visibility buffers the classifier
// needs. Coordinates passed to Normal and ViewDepth are in bounds.
type Source interface {
	Samples() int
	InBounds(x, y int) bool
	Visibility(x, y, s int) visbuf.VisibilitySample
	Normal(x, y, s int) math3d.Vec3
	ViewDepth(x, y, s int) float64
}

// Reason records which test marked a pixel as an edge.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonSilhouette
	ReasonNeighborNormal
	ReasonNeighborDepth
	ReasonSampleNormal
	ReasonSampleDepth
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonSilhouette:
		return "silhouette"
	case ReasonNeighborNormal:
		return "neighbor-normal"
	case ReasonNeighborDepth:
		return "neighbor-depth"
	case ReasonSampleNormal:
		return "sample-normal"
	case ReasonSampleDepth:
		return "sample-depth"
	default:
		return "none"
	}
}

var neighbors = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// Classifier applies Thresholds to one frame's buffers.
type Classifier struct {
	Source     Source
	Thresholds Thresholds
}

// relDiff returns |a-b| relative to ref.
func relDiff(a, b, ref float64) float64 {
	return math.Abs(a-b) / math.Max(math.Abs(ref), 1e-6)
}

// Classify reports whether pixel (x, y) needs per-sample shading. Checks
// run cheapest first and stop at the first edge.
func (c *Classifier) Classify(x, y int) Reason {
	src := c.Source
	n := src.Samples()
	if n <= 1 || !src.InBounds(x, y) {
		return ReasonNone
	}

	// Mixed coverage: some samples see geometry, others background.
	bg0 := src.Visibility(x, y, 0).Background()
	for s := 1; s < n; s++ {
		if src.Visibility(x, y, s).Background() != bg0 {
			return ReasonSilhouette
		}
	}
	if bg0 {
		return ReasonNone
	}

	th := c.Thresholds
	normal := src.Normal(x, y, 0)
	depth, depthLoaded := 0.0, false
	for _, o := range neighbors {
		nx, ny := x+o[0], y+o[1]
		if !src.InBounds(nx, ny) || src.Visibility(nx, ny, 0).Background() {
			continue
		}
		if normal.Dot(src.Normal(nx, ny, 0)) < th.NormalCos {
			return ReasonNeighborNormal
		}
		if !depthLoaded {
			depth, depthLoaded = src.ViewDepth(x, y, 0), true
		}
		if relDiff(src.ViewDepth(nx, ny, 0), depth, depth) > th.NeighborDepth {
			return ReasonNeighborDepth
		}
	}

	if !depthLoaded {
		depth = src.ViewDepth(x, y, 0)
	}
	lo, hi := depth, depth
	for s := 1; s < n; s++ {
		if normal.Dot(src.Normal(x, y, s)) < th.NormalCos {
			return ReasonSampleNormal
		}
		d := src.ViewDepth(x, y, s)
		lo, hi = math.Min(lo, d), math.Max(hi, d)
	}
	if relDiff(hi, lo, lo) > th.SampleDepth {
		return ReasonSampleDepth
	}
	return ReasonNone
}

// ShadeFunc runs the full pipeline for one sample. ok is false when the
// sample belongs to another shading variant.
type ShadeFunc func(x, y, s int) (color math3d.Vec4, ok bool)

// Result is the resolved color of a pixel and how it was obtained.
type Result struct {
	Color       math3d.Vec4
	Written     bool // false when the pixel belongs to another variant
	Reason      Reason
	Invocations int
	Valid       int
}

// Edge reports whether every sample was shaded.
func (r Result) Edge() bool {
	return r.Reason != ReasonNone
}

// Resolve shades pixel (x, y). Non-edge pixels cost one invocation; edge
// pixels cost one per sample, averaged over the valid ones.
func (c *Classifier) Resolve(x, y int, shade ShadeFunc) Result {
	reason := c.Classify(x, y)
	if reason == ReasonNone {
		col, ok := shade(x, y, 0)
		r := Result{Invocations: 1}
		if ok {
			r.Color, r.Written, r.Valid = col, true, 1
		}
		return r
	}

	r := Result{Reason: reason, Written: true}
	var sum math3d.Vec4
	for s := range c.Source.Samples() {
		r.Invocations++
		col, ok := shade(x, y, s)
		if !ok {
			continue
		}
		sum = sum.Add(col)
		r.Valid++
	}
	if r.Valid == 0 {
		r.Color = Diagnostic
		return r
	}
	r.Color = sum.Scale(1 / float64(r.Valid))
	return r
}
