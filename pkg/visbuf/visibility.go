// Package visbuf defines the per-pixel, per-sample planes written by the
// geometry pass and read by the shading kernel: visibility references,
// barycentric weights, packed normal/tangent frames and depth.
package visbuf

// NoGeometry is the triangle index that marks a background sample.
const NoGeometry uint32 = 0xFFFFFFFF

// VisibilitySample references the triangle covering a sample and the
// material-metadata record of the mesh that owns it.
type VisibilitySample struct {
	Triangle   uint32
	MetaOffset uint32
}

// Background reports whether the sample saw no geometry.
func (v VisibilitySample) Background() bool {
	return v.Triangle == NoGeometry
}

// PackedVisibility is the four-word storage layout of a VisibilitySample:
// triangle low, triangle high, meta low, meta high.
type PackedVisibility [4]uint16

// PackVisibility splits both 32-bit values into 16-bit halves.
func PackVisibility(v VisibilitySample) PackedVisibility {
	return PackedVisibility{
		uint16(v.Triangle),
		uint16(v.Triangle >> 16),
		uint16(v.MetaOffset),
		uint16(v.MetaOffset >> 16),
	}
}

// Unpack joins the halves back into the two logical values.
func (p PackedVisibility) Unpack() VisibilitySample {
	return VisibilitySample{
		Triangle:   uint32(p[0]) | uint32(p[1])<<16,
		MetaOffset: uint32(p[2]) | uint32(p[3])<<16,
	}
}

// BackgroundVisibility is the packed form of a cleared sample.
var BackgroundVisibility = PackVisibility(VisibilitySample{Triangle: NoGeometry})

// Barycentric holds the weights of the second and third vertex. The first
// weight is implied so the three always sum to one.
type Barycentric struct {
	B1, B2 float32
}

// Weights returns (b0, b1, b2).
func (b Barycentric) Weights() (b0, b1, b2 float64) {
	b1, b2 = float64(b.B1), float64(b.B2)
	return 1 - b1 - b2, b1, b2
}

// BaryDerivs are the screen-space derivatives of b1 and b2, available only
// when the geometry pass could compute them.
type BaryDerivs struct {
	DB1DX, DB1DY float32
	DB2DX, DB2DY float32
}
