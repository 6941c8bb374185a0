package deriv

import (
	"math"
	"testing"

	"github.com/taigrr/vbshade/pkg/math3d"
	"github.com/taigrr/vbshade/pkg/visbuf"
)

const eps = 1e-12

func vecNear(a, b math3d.Vec2) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps
}

func TestComputeAxisAligned(t *testing.T) {
	d := Compute(
		math3d.V2(0, 0), math3d.V2(10, 0), math3d.V2(0, 10),
		math3d.V2(0, 0), math3d.V2(1, 0), math3d.V2(0, 1),
	)
	if !vecNear(d.DDX, math3d.V2(0.1, 0)) {
		t.Errorf("ddx = %v, want (0.1, 0)", d.DDX)
	}
	if !vecNear(d.DDY, math3d.V2(0, 0.1)) {
		t.Errorf("ddy = %v, want (0, 0.1)", d.DDY)
	}
}

func TestComputeMatchesFiniteDifferences(t *testing.T) {
	s0, s1, s2 := math3d.V2(3, 4), math3d.V2(40, 12), math3d.V2(-7, 33)
	a0, a1, a2 := math3d.V2(0.2, 0.9), math3d.V2(0.7, 0.1), math3d.V2(0.1, 0.3)

	// Interpolate the attribute at a point and its +x / +y neighbours.
	attrAt := func(p math3d.Vec2) math3d.Vec2 {
		e1, e2, q := s1.Sub(s0), s2.Sub(s0), p.Sub(s0)
		det := e1.Cross(e2)
		b1 := q.Cross(e2) / det
		b2 := e1.Cross(q) / det
		return a0.Scale(1 - b1 - b2).Add(a1.Scale(b1)).Add(a2.Scale(b2))
	}
	p := math3d.V2(10, 15)
	wantX := attrAt(p.Add(math3d.V2(1, 0))).Sub(attrAt(p))
	wantY := attrAt(p.Add(math3d.V2(0, 1))).Sub(attrAt(p))

	d := Compute(s0, s1, s2, a0, a1, a2)
	if math.Abs(d.DDX.X-wantX.X) > 1e-9 || math.Abs(d.DDX.Y-wantX.Y) > 1e-9 {
		t.Errorf("ddx = %v, want %v", d.DDX, wantX)
	}
	if math.Abs(d.DDY.X-wantY.X) > 1e-9 || math.Abs(d.DDY.Y-wantY.Y) > 1e-9 {
		t.Errorf("ddy = %v, want %v", d.DDY, wantY)
	}
}

func TestComputeDegenerate(t *testing.T) {
	tests := []struct {
		name       string
		s0, s1, s2 math3d.Vec2
	}{
		{"zero area", math3d.V2(0, 0), math3d.V2(5, 5), math3d.V2(10, 10)},
		{"collapsed", math3d.V2(2, 2), math3d.V2(2, 2), math3d.V2(2, 2)},
		{"sliver", math3d.V2(0, 0), math3d.V2(1e5, 0), math3d.V2(1e5, 1e-14)},
		{"nan vertex", math3d.V2(math.NaN(), 0), math3d.V2(1, 0), math3d.V2(0, 1)},
		{"inf vertex", math3d.V2(0, 0), math3d.V2(math.Inf(1), 0), math3d.V2(0, 1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Compute(tc.s0, tc.s1, tc.s2, math3d.V2(0, 0), math3d.V2(1, 0), math3d.V2(0, 1))
			if !d.IsZero() {
				t.Errorf("derivs = %+v, want zero", d)
			}
		})
	}
}

func TestDerivsClamped(t *testing.T) {
	// Barely above the epsilon: huge but finite derivatives.
	s0, s1, s2 := math3d.V2(0, 0), math3d.V2(5e-4, 0), math3d.V2(0, 5e-4)
	d := Compute(s0, s1, s2, math3d.V2(0, 0), math3d.V2(1, 0), math3d.V2(0, 1))
	if d.DDX.X != Limit {
		t.Errorf("ddx.x = %v, want clamp to %v", d.DDX.X, Limit)
	}
	if d.DDY.Y != Limit {
		t.Errorf("ddy.y = %v, want clamp to %v", d.DDY.Y, Limit)
	}
}

func TestDerivsNonFiniteAttribute(t *testing.T) {
	g, ok := FromScreen(math3d.V2(0, 0), math3d.V2(10, 0), math3d.V2(0, 10))
	if !ok {
		t.Fatal("FromScreen rejected a valid triangle")
	}
	d := g.Derivs(math3d.V2(0, 0), math3d.V2(math.Inf(1), 0), math3d.V2(0, 1))
	if !d.IsZero() {
		t.Errorf("derivs = %+v, want zero", d)
	}
}

func TestFromBufferMatchesScreenSolve(t *testing.T) {
	g, _ := FromScreen(math3d.V2(0, 0), math3d.V2(10, 0), math3d.V2(0, 10))
	fb := FromBuffer(visbuf.BaryDerivs{DB1DX: 0.1, DB2DY: 0.1})

	a0, a1, a2 := math3d.V2(0, 0), math3d.V2(1, 0), math3d.V2(0, 1)
	want := g.Derivs(a0, a1, a2)
	got := fb.Derivs(a0, a1, a2)
	if math.Abs(got.DDX.X-want.DDX.X) > 1e-7 || math.Abs(got.DDY.Y-want.DDY.Y) > 1e-7 {
		t.Errorf("buffer derivs = %+v, screen derivs = %+v", got, want)
	}

	nan := FromBuffer(visbuf.BaryDerivs{DB1DX: float32(math.NaN())})
	if nan != (Gradients{}) {
		t.Errorf("non-finite buffer derivs = %+v, want zero", nan)
	}
}

func TestCacheReusesPerSet(t *testing.T) {
	g, _ := FromScreen(math3d.V2(0, 0), math3d.V2(10, 0), math3d.V2(0, 10))
	var c Cache
	c.Reset(g)

	loads := 0
	load := func() (math3d.Vec2, math3d.Vec2, math3d.Vec2) {
		loads++
		return math3d.V2(0, 0), math3d.V2(1, 0), math3d.V2(0, 1)
	}
	first := c.Get(0, load)
	second := c.Get(0, load)
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
	if first != second {
		t.Errorf("cached derivs differ: %+v vs %+v", first, second)
	}
	c.Get(1, load)
	if loads != 2 {
		t.Errorf("loads = %d, want 2 after a second set", loads)
	}

	c.Reset(g)
	c.Get(0, load)
	if loads != 3 {
		t.Errorf("loads = %d, want 3 after reset", loads)
	}
}

func BenchmarkCompute(b *testing.B) {
	s0, s1, s2 := math3d.V2(3, 4), math3d.V2(40, 12), math3d.V2(-7, 33)
	a0, a1, a2 := math3d.V2(0.2, 0.9), math3d.V2(0.7, 0.1), math3d.V2(0.1, 0.3)
	for b.Loop() {
		_ = Compute(s0, s1, s2, a0, a1, a2)
	}
}
