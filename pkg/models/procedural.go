package models

import (
	"image"
	"image/color"

	"github.com/taigrr/vbshade/pkg/atlas"
	"github.com/taigrr/vbshade/pkg/math3d"
)

// Checker returns a size×size texture of cells×cells alternating squares.
func Checker(size, cells int, a, b color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	cell := max(size/max(cells, 1), 1)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// CheckerMaterial is a rough dielectric with a repeating checker base color.
func CheckerMaterial() Material {
	m := DefaultMaterial()
	m.Name = "checker"
	m.Metallic = 0
	m.Roughness = 0.6
	m.BaseColorTex = &TextureRef{
		Image:     Checker(256, 8, color.NRGBA{R: 230, G: 230, B: 220, A: 255}, color.NRGBA{R: 200, G: 60, B: 40, A: 255}),
		Source:    -1,
		AddressU:  atlas.Repeat,
		AddressV:  atlas.Repeat,
		Sampler:   atlas.DefaultSampler,
		Transform: atlas.IdentityTransform,
		SRGB:      true,
	}
	return m
}

// cubeFaces lists normal, tangent and bitangent of each cube face.
var cubeFaces = [6][3]math3d.Vec3{
	{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
	{{X: 0, Y: 0, Z: -1}, {X: -1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
	{{X: 1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: -1}, {X: 0, Y: 1, Z: 0}},
	{{X: -1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 0}},
	{{X: 0, Y: 1, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: -1}},
	{{X: 0, Y: -1, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 1}},
}

// Cube returns an axis-aligned cube of edge length size centered on the
// origin. Each face has its own four vertices, UVs spanning uvScale
// repeats, and counter-clockwise front faces.
func Cube(size, uvScale float64, mat Material) *Mesh {
	m := NewMesh("cube")
	m.Materials = []Material{mat}
	m.UVSets = 1
	m.ColorSets = 0
	h := size / 2

	corners := [4]math3d.Vec2{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}
	for _, f := range cubeFaces {
		n, t, b := f[0], f[1], f[2]
		base := len(m.Vertices)
		for _, c := range corners {
			p := n.Add(t.Scale(c.X)).Add(b.Scale(c.Y)).Scale(h)
			v := MeshVertex{
				Position: p,
				Normal:   n,
				Tangent:  math3d.V4FromV3(t, 1),
				Color:    [MaxColorSets]math3d.Vec4{{X: 1, Y: 1, Z: 1, W: 1}},
			}
			// V grows downward in image space.
			v.UV[0] = math3d.V2((c.X+1)/2*uvScale, (1-c.Y)/2*uvScale)
			m.Vertices = append(m.Vertices, v)
		}
		m.Faces = append(m.Faces,
			Face{V: [3]int{base, base + 1, base + 2}},
			Face{V: [3]int{base, base + 2, base + 3}},
		)
	}
	m.CalculateBounds()
	return m
}

// Quad returns a size×size square in the XY plane facing +Z.
func Quad(size, uvScale float64, mat Material) *Mesh {
	m := NewMesh("quad")
	m.Materials = []Material{mat}
	m.UVSets = 1
	h := size / 2
	corners := [4]math3d.Vec2{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}
	for _, c := range corners {
		v := MeshVertex{
			Position: math3d.V3(c.X*h, c.Y*h, 0),
			Normal:   math3d.V3(0, 0, 1),
			Tangent:  math3d.V4(1, 0, 0, 1),
			Color:    [MaxColorSets]math3d.Vec4{{X: 1, Y: 1, Z: 1, W: 1}},
		}
		v.UV[0] = math3d.V2((c.X+1)/2*uvScale, (1-c.Y)/2*uvScale)
		m.Vertices = append(m.Vertices, v)
	}
	m.Faces = []Face{{V: [3]int{0, 1, 2}}, {V: [3]int{0, 2, 3}}}
	m.CalculateBounds()
	return m
}
