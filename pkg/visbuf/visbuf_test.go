package visbuf

import (
	"errors"
	"math"
	"testing"

	"github.com/taigrr/vbshade/pkg/math3d"
)

func TestPackVisibility(t *testing.T) {
	tests := []struct {
		name string
		v    VisibilitySample
	}{
		{"zero", VisibilitySample{}},
		{"small", VisibilitySample{Triangle: 7, MetaOffset: 3}},
		{"high words", VisibilitySample{Triangle: 0x12345678, MetaOffset: 0xCAFEBABE}},
		{"background", VisibilitySample{Triangle: NoGeometry, MetaOffset: 0}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := PackVisibility(tc.v)
			if got := p.Unpack(); got != tc.v {
				t.Errorf("Unpack(Pack(%v)) = %v", tc.v, got)
			}
		})
	}

	p := PackVisibility(VisibilitySample{Triangle: 0x00010002, MetaOffset: 0x00030004})
	if p != (PackedVisibility{2, 1, 4, 3}) {
		t.Errorf("word order = %v, want [2 1 4 3]", p)
	}
}

func TestBackgroundSentinel(t *testing.T) {
	if !BackgroundVisibility.Unpack().Background() {
		t.Error("cleared visibility should be background")
	}
	if (VisibilitySample{Triangle: 0}).Background() {
		t.Error("triangle 0 is real geometry")
	}
}

func TestBarycentricWeightsSumToOne(t *testing.T) {
	cases := []Barycentric{
		{0, 0}, {1, 0}, {0, 1}, {0.25, 0.5}, {0.1, 0.2}, {1.0 / 3, 1.0 / 3}, {0.999, 0.0005},
	}
	for _, b := range cases {
		b0, b1, b2 := b.Weights()
		if s := b0 + b1 + b2; math.Abs(s-1) > 1e-12 {
			t.Errorf("weights of %v sum to %v", b, s)
		}
	}
}

func TestNormalTangentRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		n, t math3d.Vec3
		sign float64
	}{
		{"up", math3d.V3(0, 1, 0), math3d.V3(1, 0, 0), 1},
		{"forward negative sign", math3d.V3(0, 0, 1), math3d.V3(0, 1, 0), -1},
		{"lower hemisphere", math3d.V3(0.3, -0.4, -0.866).Normalize(), math3d.V3(1, 0, 0.3464).Normalize(), 1},
		{"diagonal", math3d.V3(1, 1, 1).Normalize(), math3d.V3(1, -1, 0).Normalize(), -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := PackNormalTangent(tc.n, tc.t, tc.sign).Decode()
			if d := got.N.Dot(tc.n); d < 0.9999 {
				t.Errorf("normal drift: dot = %v (got %v)", d, got.N)
			}
			if d := got.T.Dot(tc.t); d < 0.999 {
				t.Errorf("tangent drift: dot = %v (got %v)", d, got.T)
			}
			if got.Sign != tc.sign {
				t.Errorf("sign = %v, want %v", got.Sign, tc.sign)
			}
			wantB := tc.n.Cross(tc.t).Scale(tc.sign)
			if d := got.B.Dot(wantB); d < 0.998 {
				t.Errorf("bitangent drift: dot = %v", d)
			}
		})
	}
}

func TestSamplePositionsInsidePixel(t *testing.T) {
	for _, n := range []int{1, 2, 4, 8} {
		for s := range n {
			p := SamplePosition(n, s)
			if p.X <= 0 || p.X >= 1 || p.Y <= 0 || p.Y >= 1 {
				t.Errorf("sample %d of %d at %v lies outside the pixel", s, n, p)
			}
		}
	}
	if p := SamplePosition(1, 0); p != math3d.V2(0.5, 0.5) {
		t.Errorf("single sample = %v, want pixel center", p)
	}
}

func TestNewBuffers(t *testing.T) {
	if _, err := NewBuffers(4, 4, 3, false); !errors.Is(err, ErrSampleCount) {
		t.Errorf("3 samples: err = %v, want ErrSampleCount", err)
	}
	if _, err := NewBuffers(0, 4, 1, false); !errors.Is(err, ErrBufferSize) {
		t.Errorf("zero width: err = %v, want ErrBufferSize", err)
	}

	b, err := NewBuffers(3, 2, 4, true)
	if err != nil {
		t.Fatalf("NewBuffers: %v", err)
	}
	if !b.HasDerivs() {
		t.Error("derivative plane missing")
	}
	if got := b.Index(2, 1, 3); got != (1*3+2)*4+3 {
		t.Errorf("Index(2,1,3) = %d", got)
	}
	for y := range 2 {
		for x := range 3 {
			for s := range 4 {
				if !b.VisibilityAt(x, y, s).Background() {
					t.Fatalf("sample (%d,%d,%d) not cleared", x, y, s)
				}
				if b.Depth[b.Index(x, y, s)] != 1 {
					t.Fatalf("depth (%d,%d,%d) not at far plane", x, y, s)
				}
			}
		}
	}
	if b.InBounds(3, 0) || b.InBounds(0, -1) || !b.InBounds(2, 1) {
		t.Error("InBounds disagrees with dimensions")
	}
}
