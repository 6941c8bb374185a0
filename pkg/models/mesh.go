// Package models provides mesh and material loading for vbshade.
package models

import (
	"image"
	"math"

	"github.com/taigrr/vbshade/pkg/atlas"
	"github.com/taigrr/vbshade/pkg/math3d"
)

const (
	// MaxUVSets is the number of texture coordinate sets kept per vertex.
	MaxUVSets = 2
	// MaxColorSets is the number of vertex color sets kept per vertex.
	MaxColorSets = 1
)

// Mesh represents a 3D mesh with vertices, faces, and materials.
type Mesh struct {
	Name      string
	Vertices  []MeshVertex
	Faces     []Face
	Materials []Material

	// Attribute layout shared by every vertex.
	UVSets    int
	ColorSets int

	// Bounding box (calculated on load)
	BoundsMin math3d.Vec3
	BoundsMax math3d.Vec3
}

// MeshVertex holds all vertex attributes.
type MeshVertex struct {
	Position math3d.Vec3
	Normal   math3d.Vec3
	Tangent  math3d.Vec4 // W is the bitangent sign
	UV       [MaxUVSets]math3d.Vec2
	Color    [MaxColorSets]math3d.Vec4
}

// Face represents a triangle face with vertex indices and material reference.
type Face struct {
	V        [3]int // Indices into Mesh.Vertices
	Material int    // Index into Mesh.Materials (-1 for no material)
}

// MaterialKind selects the shading path of a material.
type MaterialKind int

const (
	KindPBR   MaterialKind = iota // Metallic-roughness
	KindUnlit                     // Base color only
)

// Material represents a glTF material.
type Material struct {
	Name      string
	Kind      MaterialKind
	BaseColor [4]float64 // RGBA in 0-1 range
	Metallic  float64    // 0 = dielectric, 1 = metal
	Roughness float64    // 0 = smooth, 1 = rough
	Emissive  [3]float64

	NormalScale       float64
	OcclusionStrength float64

	BaseColorTex         *TextureRef
	MetallicRoughnessTex *TextureRef
	NormalTex            *TextureRef
	OcclusionTex         *TextureRef
	EmissiveTex          *TextureRef

	Clearcoat    *Clearcoat
	Sheen        *Sheen
	Transmission *Transmission
}

// DefaultMaterial returns glTF's default material.
func DefaultMaterial() Material {
	return Material{
		Name:              "default",
		BaseColor:         [4]float64{1, 1, 1, 1},
		Metallic:          1,
		Roughness:         1,
		NormalScale:       1,
		OcclusionStrength: 1,
	}
}

// TextureRef is one texture binding of a material.
type TextureRef struct {
	Image     image.Image
	Source    int // image index in the document, for sharing
	TexCoord  int
	AddressU  atlas.AddressMode
	AddressV  atlas.AddressMode
	Sampler   atlas.Sampler
	Transform atlas.UvTransform
	SRGB      bool
}

// Clearcoat mirrors KHR_materials_clearcoat.
type Clearcoat struct {
	Factor    float64
	Roughness float64
	Tex       *TextureRef
}

// Sheen mirrors KHR_materials_sheen.
type Sheen struct {
	Color     [3]float64
	Roughness float64
	ColorTex  *TextureRef
}

// Transmission mirrors KHR_materials_transmission.
type Transmission struct {
	Factor float64
	Tex    *TextureRef
}

// NewMesh creates an empty mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:     name,
		Vertices: make([]MeshVertex, 0),
		Faces:    make([]Face, 0),
	}
}

// CalculateBounds computes the axis-aligned bounding box.
func (m *Mesh) CalculateBounds() {
	if len(m.Vertices) == 0 {
		return
	}

	m.BoundsMin = m.Vertices[0].Position
	m.BoundsMax = m.Vertices[0].Position

	for _, v := range m.Vertices[1:] {
		m.BoundsMin = m.BoundsMin.Min(v.Position)
		m.BoundsMax = m.BoundsMax.Max(v.Position)
	}
}

// Center returns the center of the bounding box.
func (m *Mesh) Center() math3d.Vec3 {
	return m.BoundsMin.Add(m.BoundsMax).Scale(0.5)
}

// Size returns the dimensions of the bounding box.
func (m *Mesh) Size() math3d.Vec3 {
	return m.BoundsMax.Sub(m.BoundsMin)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Faces)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// CalculateSmoothNormals computes area-weighted vertex normals.
func (m *Mesh) CalculateSmoothNormals() {
	for i := range m.Vertices {
		m.Vertices[i].Normal = math3d.Vec3{}
	}

	for _, f := range m.Faces {
		v0 := m.Vertices[f.V[0]].Position
		v1 := m.Vertices[f.V[1]].Position
		v2 := m.Vertices[f.V[2]].Position
		normal := v1.Sub(v0).Cross(v2.Sub(v0)) // area weighted

		for _, vi := range f.V {
			m.Vertices[vi].Normal = m.Vertices[vi].Normal.Add(normal)
		}
	}

	for i := range m.Vertices {
		m.Vertices[i].Normal = m.Vertices[i].Normal.Normalize()
	}
}

// CalculateTangents derives per-vertex tangents from UV set 0. Vertices
// without a usable UV gradient get a tangent perpendicular to the normal.
func (m *Mesh) CalculateTangents() {
	tan := make([]math3d.Vec3, len(m.Vertices))
	bit := make([]math3d.Vec3, len(m.Vertices))

	for _, f := range m.Faces {
		a, b, c := m.Vertices[f.V[0]], m.Vertices[f.V[1]], m.Vertices[f.V[2]]
		e1 := b.Position.Sub(a.Position)
		e2 := c.Position.Sub(a.Position)
		d1 := b.UV[0].Sub(a.UV[0])
		d2 := c.UV[0].Sub(a.UV[0])

		det := d1.Cross(d2)
		if det == 0 || !math3d.IsFinite(det) {
			continue
		}
		r := 1 / det
		t := e1.Scale(d2.Y).Sub(e2.Scale(d1.Y)).Scale(r)
		bt := e2.Scale(d1.X).Sub(e1.Scale(d2.X)).Scale(r)
		for _, vi := range f.V {
			tan[vi] = tan[vi].Add(t)
			bit[vi] = bit[vi].Add(bt)
		}
	}

	for i := range m.Vertices {
		n := m.Vertices[i].Normal
		// Gram-Schmidt against the normal.
		t := tan[i].Sub(n.Scale(n.Dot(tan[i])))
		if t.Len() < 1e-9 {
			t = anyPerpendicular(n)
		}
		t = t.Normalize()
		// V grows downward, so the bitangent points toward decreasing v.
		sign := 1.0
		if n.Cross(t).Dot(bit[i]) > 0 {
			sign = -1
		}
		m.Vertices[i].Tangent = math3d.V4FromV3(t, sign)
	}
}

func anyPerpendicular(n math3d.Vec3) math3d.Vec3 {
	axis := math3d.V3(1, 0, 0)
	if math.Abs(n.X) > 0.9 {
		axis = math3d.V3(0, 1, 0)
	}
	return axis.Sub(n.Scale(n.Dot(axis)))
}

// Transform applies a transformation matrix to all vertices.
func (m *Mesh) Transform(mat math3d.Mat4) {
	nm := mat.NormalMatrix()
	for i := range m.Vertices {
		v := &m.Vertices[i]
		v.Position = mat.MulVec3(v.Position)
		v.Normal = nm.MulVec3Dir(v.Normal).Normalize()
		t := mat.MulVec3Dir(v.Tangent.Vec3()).Normalize()
		v.Tangent = math3d.V4FromV3(t, v.Tangent.W)
	}
	m.CalculateBounds()
}

// GetMaterial returns the material at index i.
// Returns nil if index is out of bounds or -1.
func (m *Mesh) GetMaterial(i int) *Material {
	if i < 0 || i >= len(m.Materials) {
		return nil
	}
	return &m.Materials[i]
}

// MaterialCount returns the number of materials.
func (m *Mesh) MaterialCount() int {
	return len(m.Materials)
}
