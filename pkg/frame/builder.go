package frame

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"golang.org/x/image/draw"

	"github.com/taigrr/vbshade/pkg/atlas"
	"github.com/taigrr/vbshade/pkg/math3d"
	"github.com/taigrr/vbshade/pkg/models"
)

// ErrEmptyMesh is returned when a mesh has no triangles.
var ErrEmptyMesh = errors.New("frame: mesh has no triangles")

// AtlasOptions sizes the atlas layers a Builder packs textures into.
type AtlasOptions struct {
	Width     int
	Height    int
	Padding   int
	MaxLayers int
}

// DefaultAtlasOptions returns 2048×2048 layers with 8 pixels of padding.
func DefaultAtlasOptions() AtlasOptions {
	return AtlasOptions{Width: 2048, Height: 2048, Padding: 8, MaxLayers: 4}
}

type textureKey struct {
	img       image.Image
	addressU  atlas.AddressMode
	addressV  atlas.AddressMode
	sampler   atlas.Sampler
	transform int
	srgb      bool
}

// Builder assembles a Frame. It is not safe for concurrent use.
type Builder struct {
	opts     AtlasOptions
	packer   *atlas.Packer
	xforms   *atlas.TransformTable
	textures map[textureKey]int32
	f        Frame
}

// NewBuilder returns an empty builder.
func NewBuilder(opts AtlasOptions) *Builder {
	return &Builder{
		opts:     opts,
		packer:   atlas.NewPacker(opts.Width, opts.Height, opts.Padding, opts.MaxLayers),
		xforms:   atlas.NewTransformTable(),
		textures: make(map[textureKey]int32),
		f: Frame{
			Clearcoats:    []Clearcoat{{}},
			Sheens:        []Sheen{{}},
			Transmissions: []Transmission{{}},
		},
	}
}

// AddMesh appends m with the given model matrix. Faces are split per
// material; the returned meta offsets are in material order.
func (b *Builder) AddMesh(m *models.Mesh, model math3d.Mat4) ([]uint32, error) {
	if m.TriangleCount() == 0 {
		return nil, fmt.Errorf("add mesh %q: %w", m.Name, ErrEmptyMesh)
	}

	uvSets := min(max(m.UVSets, 0), MaxUVSets)
	colorSets := min(max(m.ColorSets, 0), 1)
	stride := uint32(3 + 3 + 4 + 2*uvSets + 4*colorSets)

	base := MeshMeta{
		VertexBase:     uint32(len(b.f.Attributes)),
		VertexCount:    uint32(len(m.Vertices)),
		Stride:         stride,
		PositionOffset: 0,
		NormalOffset:   3,
		TangentOffset:  6,
		UVSets:         uint32(uvSets),
		ColorSets:      uint32(colorSets),
		Transform:      uint32(len(b.f.Transforms)),
	}
	off := uint32(10)
	for set := range uvSets {
		base.UVOffset[set] = off
		off += 2
	}
	base.ColorOffset = off

	for _, v := range m.Vertices {
		b.f.Attributes = append(b.f.Attributes,
			float32(v.Position.X), float32(v.Position.Y), float32(v.Position.Z),
			float32(v.Normal.X), float32(v.Normal.Y), float32(v.Normal.Z),
			float32(v.Tangent.X), float32(v.Tangent.Y), float32(v.Tangent.Z), float32(v.Tangent.W),
		)
		for set := range uvSets {
			b.f.Attributes = append(b.f.Attributes, float32(v.UV[set].X), float32(v.UV[set].Y))
		}
		if colorSets > 0 {
			c := v.Color[0]
			b.f.Attributes = append(b.f.Attributes, float32(c.X), float32(c.Y), float32(c.Z), float32(c.W))
		}
	}
	b.f.Transforms = append(b.f.Transforms, NewTransform(model))

	byMaterial := map[int][]models.Face{}
	for _, face := range m.Faces {
		byMaterial[face.Material] = append(byMaterial[face.Material], face)
	}
	keys := make([]int, 0, len(byMaterial))
	for k := range byMaterial {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var offsets []uint32
	for _, k := range keys {
		mat := models.DefaultMaterial()
		if p := m.GetMaterial(k); p != nil {
			mat = *p
		}
		matIdx, err := b.addMaterial(mat, uvSets)
		if err != nil {
			return nil, fmt.Errorf("add mesh %q: %w", m.Name, err)
		}

		meta := base
		meta.Material = matIdx
		meta.IndexBase = uint32(len(b.f.Indices))
		meta.TriangleCount = uint32(len(byMaterial[k]))
		for _, face := range byMaterial[k] {
			b.f.Indices = append(b.f.Indices, uint32(face.V[0]), uint32(face.V[1]), uint32(face.V[2]))
		}
		offsets = append(offsets, uint32(len(b.f.Metas)))
		b.f.Metas = append(b.f.Metas, meta)
	}
	return offsets, nil
}

func (b *Builder) addMaterial(m models.Material, uvSets int) (uint32, error) {
	out := Material{
		Kind:              KindPBR,
		BaseColor:         math3d.V4(m.BaseColor[0], m.BaseColor[1], m.BaseColor[2], m.BaseColor[3]),
		Metallic:          m.Metallic,
		Roughness:         m.Roughness,
		Emissive:          math3d.V3(m.Emissive[0], m.Emissive[1], m.Emissive[2]),
		NormalScale:       m.NormalScale,
		OcclusionStrength: m.OcclusionStrength,
	}
	if m.Kind == models.KindUnlit {
		out.Kind = KindUnlit
	}

	var err error
	slot := func(ref *models.TextureRef) TextureSlot {
		if err != nil {
			return NoTexture
		}
		var s TextureSlot
		s, err = b.texture(ref, uvSets)
		return s
	}
	out.BaseColorTex = slot(m.BaseColorTex)
	out.MetallicRoughnessTex = slot(m.MetallicRoughnessTex)
	out.NormalTex = slot(m.NormalTex)
	out.OcclusionTex = slot(m.OcclusionTex)
	out.EmissiveTex = slot(m.EmissiveTex)

	if cc := m.Clearcoat; cc != nil {
		out.Clearcoat = uint32(len(b.f.Clearcoats))
		b.f.Clearcoats = append(b.f.Clearcoats, Clearcoat{Factor: cc.Factor, Roughness: cc.Roughness, Tex: slot(cc.Tex)})
	}
	if sh := m.Sheen; sh != nil {
		out.Sheen = uint32(len(b.f.Sheens))
		b.f.Sheens = append(b.f.Sheens, Sheen{
			Color:     math3d.V3(sh.Color[0], sh.Color[1], sh.Color[2]),
			Roughness: sh.Roughness,
			ColorTex:  slot(sh.ColorTex),
		})
	}
	if tr := m.Transmission; tr != nil {
		out.Transmission = uint32(len(b.f.Transmissions))
		b.f.Transmissions = append(b.f.Transmissions, Transmission{Factor: tr.Factor, Tex: slot(tr.Tex)})
	}
	if err != nil {
		return 0, fmt.Errorf("add material %q: %w", m.Name, err)
	}

	b.f.Materials = append(b.f.Materials, out)
	return uint32(len(b.f.Materials) - 1), nil
}

// texture packs ref once per distinct image and sampling state. A
// reference to a UV set the mesh lacks leaves the slot unbound.
func (b *Builder) texture(ref *models.TextureRef, uvSets int) (TextureSlot, error) {
	if ref == nil || ref.Image == nil || ref.TexCoord < 0 || ref.TexCoord >= uvSets {
		return NoTexture, nil
	}

	key := textureKey{
		img:       ref.Image,
		addressU:  ref.AddressU,
		addressV:  ref.AddressV,
		sampler:   ref.Sampler,
		transform: b.xforms.Intern(ref.Transform),
		srgb:      ref.SRGB,
	}
	if idx, ok := b.textures[key]; ok {
		return TextureSlot{Entry: idx, TexCoord: uint8(ref.TexCoord)}, nil
	}

	idx, err := b.packer.Add(b.fit(ref.Image), atlas.TextureOptions{
		SRGB:        ref.SRGB,
		AddressU:    ref.AddressU,
		AddressV:    ref.AddressV,
		Sampler:     b.packer.AddSampler(ref.Sampler),
		UvTransform: key.transform,
	})
	if err != nil {
		return NoTexture, fmt.Errorf("pack texture: %w", err)
	}
	b.textures[key] = int32(idx)
	return TextureSlot{Entry: int32(idx), TexCoord: uint8(ref.TexCoord)}, nil
}

// fit downscales img so it fits a layer with its padding.
func (b *Builder) fit(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	maxW := b.opts.Width - 2*b.opts.Padding
	maxH := b.opts.Height - 2*b.opts.Padding
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return img
	}
	s := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	dst := image.NewNRGBA(image.Rect(0, 0, max(int(float64(w)*s), 1), max(int(float64(h)*s), 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

// Build packs the atlas and returns the finished frame. The builder must
// not be used afterwards.
func (b *Builder) Build() *Frame {
	f := b.f
	f.Atlas, f.Entries = b.packer.Build()
	f.UvTransforms = b.xforms.Transforms()
	return &f
}
