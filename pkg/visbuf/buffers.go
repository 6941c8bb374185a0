package visbuf

import (
	"errors"
	"fmt"
)

var (
	// ErrSampleCount is returned for a sample count without a standard pattern.
	ErrSampleCount = errors.New("visbuf: sample count must be 1, 2, 4 or 8")
	// ErrBufferSize is returned for non-positive dimensions.
	ErrBufferSize = errors.New("visbuf: buffer dimensions must be positive")
)

// Buffers holds one frame of geometry-pass output. Every plane is indexed
// by Index(x, y, s); all samples of a pixel are contiguous.
type Buffers struct {
	Width   int
	Height  int
	Samples int

	Visibility    []PackedVisibility
	Bary          []Barycentric
	BaryDerivs    []BaryDerivs // nil when the producer has no derivatives
	NormalTangent []PackedNormalTangent
	Depth         []float32 // clip-space depth in [0, 1]
}

// NewBuffers allocates cleared planes. withDerivs allocates the optional
// barycentric-derivative plane.
func NewBuffers(width, height, samples int, withDerivs bool) (*Buffers, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("new buffers %dx%d: %w", width, height, ErrBufferSize)
	}
	if !ValidSampleCount(samples) {
		return nil, fmt.Errorf("new buffers with %d samples: %w", samples, ErrSampleCount)
	}

	n := width * height * samples
	b := &Buffers{
		Width:         width,
		Height:        height,
		Samples:       samples,
		Visibility:    make([]PackedVisibility, n),
		Bary:          make([]Barycentric, n),
		NormalTangent: make([]PackedNormalTangent, n),
		Depth:         make([]float32, n),
	}
	if withDerivs {
		b.BaryDerivs = make([]BaryDerivs, n)
	}
	b.Clear()
	return b, nil
}

// Clear marks every sample as background at the far plane.
func (b *Buffers) Clear() {
	for i := range b.Visibility {
		b.Visibility[i] = BackgroundVisibility
		b.Depth[i] = 1
		b.Bary[i] = Barycentric{}
		b.NormalTangent[i] = PackedNormalTangent{}
	}
	for i := range b.BaryDerivs {
		b.BaryDerivs[i] = BaryDerivs{}
	}
}

// InBounds reports whether (x, y) lies inside the logical image.
func (b *Buffers) InBounds(x, y int) bool {
	return x >= 0 && x < b.Width && y >= 0 && y < b.Height
}

// Index returns the plane index of sample s at (x, y). The caller must
// bounds-check first.
func (b *Buffers) Index(x, y, s int) int {
	return (y*b.Width+x)*b.Samples + s
}

// HasDerivs reports whether barycentric derivatives were produced.
func (b *Buffers) HasDerivs() bool {
	return b.BaryDerivs != nil
}

// VisibilityAt decodes the visibility of sample s at (x, y).
func (b *Buffers) VisibilityAt(x, y, s int) VisibilitySample {
	return b.Visibility[b.Index(x, y, s)].Unpack()
}
