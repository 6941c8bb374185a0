package atlas

// Filter selects texel filtering within one mip level.
type Filter int

const (
	FilterNearest Filter = iota // Nearest texel
	FilterLinear                // Bilinear blend of four texels
)

// MipFilter selects how neighbouring mip levels combine.
type MipFilter int

const (
	MipNearest MipFilter = iota // Round to the closest level
	MipLinear                   // Blend the two closest levels
)

// Sampler describes texel and mip filtering.
type Sampler struct {
	Filter    Filter
	MipFilter MipFilter
}

// DefaultSampler is trilinear filtering.
var DefaultSampler = Sampler{Filter: FilterLinear, MipFilter: MipLinear}

// Entry locates one logical texture inside the atlas.
type Entry struct {
	X, Y          int // pixel offset of the texture's first texel
	Width, Height int // size in pixels
	Layer         int
	AddressU      AddressMode
	AddressV      AddressMode
	UvTransform   int // index into the frame's transform table
	Sampler       int // index into Atlas.Samplers
	MaxLevel      int
}

// TexelSpan returns (size-1) per axis: the distance in texels between the
// centers of the first and last texel. Coordinate 1.0 maps onto the last
// texel's center, never one past it.
func (e Entry) TexelSpan() (float64, float64) {
	return float64(max(e.Width-1, 0)), float64(max(e.Height-1, 0))
}
