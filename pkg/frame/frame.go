// Package frame holds the read-only tables one shading dispatch consumes:
// mesh metadata, index and attribute streams, transforms, materials with
// their extension blocks, and the texture atlas with its entry and UV
// transform tables. A Frame is assembled once by a Builder and never
// mutated while pixels are shaded.
package frame

import (
	"github.com/taigrr/vbshade/pkg/atlas"
	"github.com/taigrr/vbshade/pkg/math3d"
)

// MaxUVSets is the number of UV sets a mesh layout can describe.
const MaxUVSets = 2

// MeshMeta is the material-metadata record a visibility sample points
// at. Offsets are in float32 units of the attribute stream.
type MeshMeta struct {
	VertexBase     uint32
	VertexCount    uint32
	Stride         uint32
	PositionOffset uint32
	NormalOffset   uint32
	TangentOffset  uint32
	UVOffset       [MaxUVSets]uint32
	ColorOffset    uint32
	UVSets         uint32
	ColorSets      uint32
	IndexBase      uint32
	TriangleCount  uint32
	Transform      uint32
	Material       uint32
}

// Layout is the static attribute layout a shading variant is compiled for.
type Layout struct {
	UVSets    int
	ColorSets int
}

// Layout returns the attribute layout of the mesh.
func (m MeshMeta) Layout() Layout {
	return Layout{UVSets: int(m.UVSets), ColorSets: int(m.ColorSets)}
}

// Transform carries a mesh's model matrix and the matrix for its normals.
type Transform struct {
	Model  math3d.Mat4
	Normal math3d.Mat4
}

// NewTransform derives the normal matrix from model.
func NewTransform(model math3d.Mat4) Transform {
	return Transform{Model: model, Normal: model.NormalMatrix()}
}

// MaterialKind is the closed set of shading paths.
type MaterialKind uint8

const (
	KindPBR MaterialKind = iota
	KindUnlit
)

// String returns the kind name.
func (k MaterialKind) String() string {
	if k == KindUnlit {
		return "unlit"
	}
	return "pbr"
}

// TextureSlot binds a material property to an atlas entry and a UV set.
type TextureSlot struct {
	Entry    int32 // atlas entry index, -1 when absent
	TexCoord uint8
}

// NoTexture is an unbound slot.
var NoTexture = TextureSlot{Entry: -1}

// Bound reports whether the slot references a texture.
func (s TextureSlot) Bound() bool {
	return s.Entry >= 0
}

// Material is one row of the material property table. Extension indices
// address the extension tables; index 0 means the feature is absent.
type Material struct {
	Kind              MaterialKind
	BaseColor         math3d.Vec4
	Metallic          float64
	Roughness         float64
	Emissive          math3d.Vec3
	NormalScale       float64
	OcclusionStrength float64

	BaseColorTex         TextureSlot
	MetallicRoughnessTex TextureSlot
	NormalTex            TextureSlot
	OcclusionTex         TextureSlot
	EmissiveTex          TextureSlot

	Clearcoat    uint32
	Sheen        uint32
	Transmission uint32
}

// Clearcoat is an extension block of the clearcoat table.
type Clearcoat struct {
	Factor    float64
	Roughness float64
	Tex       TextureSlot
}

// Sheen is an extension block of the sheen table.
type Sheen struct {
	Color     math3d.Vec3
	Roughness float64
	ColorTex  TextureSlot
}

// Transmission is an extension block of the transmission table.
type Transmission struct {
	Factor float64
	Tex    TextureSlot
}

// Frame is the immutable input of one dispatch.
type Frame struct {
	Metas      []MeshMeta
	Indices    []uint32
	Attributes []float32
	Transforms []Transform
	Materials  []Material

	// Extension tables. Slot 0 of each is a reserved placeholder.
	Clearcoats    []Clearcoat
	Sheens        []Sheen
	Transmissions []Transmission

	Atlas        *atlas.Atlas
	Entries      []atlas.Entry
	UvTransforms []atlas.UvTransform
}

// Meta returns the metadata record at offset.
func (f *Frame) Meta(offset uint32) (MeshMeta, bool) {
	if int(offset) >= len(f.Metas) {
		return MeshMeta{}, false
	}
	return f.Metas[offset], true
}

// TriangleVertices fetches the three vertex indices of triangle tri.
func (f *Frame) TriangleVertices(m MeshMeta, tri uint32) ([3]uint32, bool) {
	if tri >= m.TriangleCount {
		return [3]uint32{}, false
	}
	i := uint64(m.IndexBase) + uint64(tri)*3
	if i+3 > uint64(len(f.Indices)) {
		return [3]uint32{}, false
	}
	v := [3]uint32{f.Indices[i], f.Indices[i+1], f.Indices[i+2]}
	if v[0] >= m.VertexCount || v[1] >= m.VertexCount || v[2] >= m.VertexCount {
		return [3]uint32{}, false
	}
	return v, true
}

// floats returns n attribute floats of vertex v at sub-offset off, or nil
// when they fall outside the stream.
func (f *Frame) floats(m MeshMeta, v, off, n uint32) []float32 {
	start := uint64(m.VertexBase) + uint64(v)*uint64(m.Stride) + uint64(off)
	end := start + uint64(n)
	if end > uint64(len(f.Attributes)) {
		return nil
	}
	return f.Attributes[start:end]
}

// Position returns the object-space position of vertex v.
func (f *Frame) Position(m MeshMeta, v uint32) math3d.Vec3 {
	p := f.floats(m, v, m.PositionOffset, 3)
	if p == nil {
		return math3d.Vec3{}
	}
	return math3d.V3(float64(p[0]), float64(p[1]), float64(p[2]))
}

// Normal returns the object-space normal of vertex v.
func (f *Frame) Normal(m MeshMeta, v uint32) math3d.Vec3 {
	p := f.floats(m, v, m.NormalOffset, 3)
	if p == nil {
		return math3d.Vec3{}
	}
	return math3d.V3(float64(p[0]), float64(p[1]), float64(p[2]))
}

// Tangent returns the object-space tangent of vertex v; W is the
// bitangent sign.
func (f *Frame) Tangent(m MeshMeta, v uint32) math3d.Vec4 {
	p := f.floats(m, v, m.TangentOffset, 4)
	if p == nil {
		return math3d.Vec4{}
	}
	return math3d.V4(float64(p[0]), float64(p[1]), float64(p[2]), float64(p[3]))
}

// UV returns texture coordinate set of vertex v. Sets the mesh does not
// carry read as zero.
func (f *Frame) UV(m MeshMeta, set int, v uint32) math3d.Vec2 {
	if set < 0 || set >= int(m.UVSets) || set >= MaxUVSets {
		return math3d.Vec2{}
	}
	p := f.floats(m, v, m.UVOffset[set], 2)
	if p == nil {
		return math3d.Vec2{}
	}
	return math3d.V2(float64(p[0]), float64(p[1]))
}

// Color returns vertex color set 0 of vertex v, or opaque white when the
// mesh has none.
func (f *Frame) Color(m MeshMeta, v uint32) math3d.Vec4 {
	white := math3d.V4(1, 1, 1, 1)
	if m.ColorSets == 0 {
		return white
	}
	p := f.floats(m, v, m.ColorOffset, 4)
	if p == nil {
		return white
	}
	return math3d.V4(float64(p[0]), float64(p[1]), float64(p[2]), float64(p[3]))
}

// Transform returns transform i, or the identity when out of range.
func (f *Frame) Transform(i uint32) Transform {
	if int(i) >= len(f.Transforms) {
		return NewTransform(math3d.Identity())
	}
	return f.Transforms[i]
}

// Material returns material i.
func (f *Frame) Material(i uint32) (Material, bool) {
	if int(i) >= len(f.Materials) {
		return Material{}, false
	}
	return f.Materials[i], true
}

// ClearcoatBlock returns the clearcoat block at i. Index 0 is absent.
func (f *Frame) ClearcoatBlock(i uint32) (Clearcoat, bool) {
	if i == 0 || int(i) >= len(f.Clearcoats) {
		return Clearcoat{}, false
	}
	return f.Clearcoats[i], true
}

// SheenBlock returns the sheen block at i. Index 0 is absent.
func (f *Frame) SheenBlock(i uint32) (Sheen, bool) {
	if i == 0 || int(i) >= len(f.Sheens) {
		return Sheen{}, false
	}
	return f.Sheens[i], true
}

// TransmissionBlock returns the transmission block at i. Index 0 is absent.
func (f *Frame) TransmissionBlock(i uint32) (Transmission, bool) {
	if i == 0 || int(i) >= len(f.Transmissions) {
		return Transmission{}, false
	}
	return f.Transmissions[i], true
}
