package msaa

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taigrr/vbshade/pkg/math3d"
	"github.com/taigrr/vbshade/pkg/visbuf"
)

type fakeSample struct {
	tri    uint32
	normal math3d.Vec3
	depth  float64
}

// fakeSource is a tiny in-memory visibility buffer.
type fakeSource struct {
	w, h, n     int
	samples     []fakeSample
	depthLoads  map[[3]int]int
	normalLoads int
}

func newFake(w, h, n int) *fakeSource {
	f := &fakeSource{w: w, h: h, n: n, samples: make([]fakeSample, w*h*n), depthLoads: map[[3]int]int{}}
	f.fill(fakeSample{tri: 0, normal: math3d.V3(0, 0, 1), depth: 10})
	return f
}

func (f *fakeSource) fill(s fakeSample) {
	for i := range f.samples {
		f.samples[i] = s
	}
}

func (f *fakeSource) at(x, y, s int) *fakeSample { return &f.samples[(y*f.w+x)*f.n+s] }

func (f *fakeSource) setPixel(x, y int, s fakeSample) {
	for i := range f.n {
		*f.at(x, y, i) = s
	}
}

func (f *fakeSource) Samples() int { return f.n }
func (f *fakeSource) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.w && y < f.h
}

func (f *fakeSource) Visibility(x, y, s int) visbuf.VisibilitySample {
	return visbuf.VisibilitySample{Triangle: f.at(x, y, s).tri}
}

func (f *fakeSource) Normal(x, y, s int) math3d.Vec3 {
	f.normalLoads++
	return f.at(x, y, s).normal
}

func (f *fakeSource) ViewDepth(x, y, s int) float64 {
	f.depthLoads[[3]int{x, y, s}]++
	return f.at(x, y, s).depth
}

func tilted(deg float64) math3d.Vec3 {
	r := deg * math.Pi / 180
	return math3d.V3(math.Sin(r), 0, math.Cos(r))
}

func classifier(src Source) *Classifier {
	return &Classifier{Source: src, Thresholds: DefaultThresholds()}
}

// shadeByTriangle colors samples of triangle 0 red and triangle 1 blue.
func shadeByTriangle(src *fakeSource) (ShadeFunc, *int) {
	calls := 0
	return func(x, y, s int) (math3d.Vec4, bool) {
		calls++
		if src.at(x, y, s).tri == 1 {
			return math3d.V4(0, 0, 1, 1), true
		}
		return math3d.V4(1, 0, 0, 1), true
	}, &calls
}

func TestUniformPixelShadesOnce(t *testing.T) {
	src := newFake(3, 3, 4)
	c := classifier(src)

	assert.Equal(t, ReasonNone, c.Classify(1, 1))
	shade, calls := shadeByTriangle(src)
	r := c.Resolve(1, 1, shade)
	assert.Equal(t, 1, r.Invocations)
	assert.Equal(t, 1, *calls)
	assert.False(t, r.Edge())
	assert.True(t, r.Written)
	assert.Equal(t, math3d.V4(1, 0, 0, 1), r.Color)
}

func TestStraddlingPixelAverages(t *testing.T) {
	src := newFake(1, 1, 4)
	*src.at(0, 0, 2) = fakeSample{tri: 1, normal: tilted(30), depth: 10}
	*src.at(0, 0, 3) = fakeSample{tri: 1, normal: tilted(30), depth: 10}
	c := classifier(src)

	assert.Equal(t, ReasonSampleNormal, c.Classify(0, 0))
	shade, calls := shadeByTriangle(src)
	r := c.Resolve(0, 0, shade)
	assert.True(t, r.Edge())
	assert.Equal(t, 4, r.Invocations)
	assert.Equal(t, 4, *calls)
	assert.Equal(t, 4, r.Valid)
	assert.Equal(t, math3d.V4(0.5, 0, 0.5, 1), r.Color)
}

func TestSameTriangleDifferentIndicesIsNotEdge(t *testing.T) {
	// Two coplanar triangles meeting inside the pixel.
	src := newFake(1, 1, 4)
	*src.at(0, 0, 1) = fakeSample{tri: 1, normal: math3d.V3(0, 0, 1), depth: 10}
	assert.Equal(t, ReasonNone, classifier(src).Classify(0, 0))
}

func TestSilhouette(t *testing.T) {
	tests := []struct {
		name       string
		background int
	}{
		{"sample 0 background", 0},
		{"other sample background", 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := newFake(1, 1, 4)
			src.at(0, 0, tc.background).tri = visbuf.NoGeometry
			c := classifier(src)
			assert.Equal(t, ReasonSilhouette, c.Classify(0, 0))
			assert.Zero(t, src.normalLoads, "silhouette check loads no normals")
		})
	}
}

func TestAllBackgroundIsNotEdge(t *testing.T) {
	src := newFake(1, 1, 4)
	src.fill(fakeSample{tri: visbuf.NoGeometry})
	assert.Equal(t, ReasonNone, classifier(src).Classify(0, 0))
}

func TestNeighborNormalSkipsDepthLoad(t *testing.T) {
	src := newFake(3, 1, 2)
	src.setPixel(0, 0, fakeSample{tri: 1, normal: tilted(40), depth: 10})
	c := classifier(src)

	assert.Equal(t, ReasonNeighborNormal, c.Classify(1, 0))
	assert.Zero(t, src.depthLoads[[3]int{1, 0, 0}], "center depth must load only after a normal test passes")
}

func TestNeighborDepth(t *testing.T) {
	src := newFake(3, 3, 2)
	src.setPixel(1, 2, fakeSample{tri: 1, normal: math3d.V3(0, 0, 1), depth: 14})
	c := classifier(src)

	assert.Equal(t, ReasonNeighborDepth, c.Classify(1, 1))
	assert.Equal(t, 1, src.depthLoads[[3]int{1, 1, 0}], "center depth loads once")
}

func TestBackgroundNeighborsSkipped(t *testing.T) {
	src := newFake(3, 3, 2)
	for _, p := range [][2]int{{0, 1}, {2, 1}, {1, 0}, {1, 2}} {
		src.setPixel(p[0], p[1], fakeSample{tri: visbuf.NoGeometry})
	}
	assert.Equal(t, ReasonNone, classifier(src).Classify(1, 1))
}

func TestSampleDepthRange(t *testing.T) {
	src := newFake(1, 1, 4)
	src.at(0, 0, 3).depth = 11
	c := classifier(src)
	assert.Equal(t, ReasonSampleDepth, c.Classify(0, 0))

	c.Thresholds.SampleDepth = 0.2
	assert.Equal(t, ReasonNone, c.Classify(0, 0))
}

func TestThresholdsConfigurable(t *testing.T) {
	src := newFake(1, 1, 4)
	src.at(0, 0, 1).normal = tilted(30)
	c := classifier(src)
	assert.Equal(t, ReasonSampleNormal, c.Classify(0, 0))

	c.Thresholds.NormalCos = math.Cos(45 * math.Pi / 180)
	assert.Equal(t, ReasonNone, c.Classify(0, 0))
}

func TestSingleSampleNeverEdge(t *testing.T) {
	src := newFake(3, 1, 1)
	src.setPixel(0, 0, fakeSample{tri: 1, normal: tilted(80), depth: 1})
	assert.Equal(t, ReasonNone, classifier(src).Classify(1, 0))
}

func TestZeroValidSamplesIsDiagnostic(t *testing.T) {
	src := newFake(1, 1, 4)
	src.at(0, 0, 1).normal = tilted(60)
	none := func(x, y, s int) (math3d.Vec4, bool) { return math3d.Vec4{}, false }

	r := classifier(src).Resolve(0, 0, none)
	assert.True(t, r.Edge())
	assert.True(t, r.Written)
	assert.Equal(t, 0, r.Valid)
	assert.Equal(t, Diagnostic, r.Color)
}

func TestPartialValidAveragesValidOnly(t *testing.T) {
	src := newFake(1, 1, 4)
	src.at(0, 0, 1).normal = tilted(60)
	onlyEven := func(x, y, s int) (math3d.Vec4, bool) {
		if s%2 == 1 {
			return math3d.V4(9, 9, 9, 9), false
		}
		return math3d.V4(0, 1, 0, 0.5), true
	}

	r := classifier(src).Resolve(0, 0, onlyEven)
	assert.Equal(t, 2, r.Valid)
	assert.Equal(t, math3d.V4(0, 1, 0, 0.5), r.Color)
}

func TestInteriorSkippedSampleNotWritten(t *testing.T) {
	src := newFake(1, 1, 4)
	none := func(x, y, s int) (math3d.Vec4, bool) { return math3d.Vec4{}, false }
	r := classifier(src).Resolve(0, 0, none)
	assert.False(t, r.Written)
	assert.Equal(t, 1, r.Invocations)
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "silhouette", ReasonSilhouette.String())
	assert.Equal(t, "none", ReasonNone.String())
}

func BenchmarkClassifyInterior(b *testing.B) {
	src := newFake(3, 3, 4)
	c := classifier(src)
	for b.Loop() {
		_ = c.Classify(1, 1)
	}
}
