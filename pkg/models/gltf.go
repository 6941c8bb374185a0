package models

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/taigrr/vbshade/pkg/atlas"
	"github.com/taigrr/vbshade/pkg/math3d"
)

// Extension names read from materials and texture infos.
const (
	extUnlit            = "KHR_materials_unlit"
	extTextureTransform = "KHR_texture_transform"
	extClearcoat        = "KHR_materials_clearcoat"
	extSheen            = "KHR_materials_sheen"
	extTransmission     = "KHR_materials_transmission"
)

// ErrNoGeometry is returned for documents without triangle primitives.
var ErrNoGeometry = errors.New("models: no triangle primitives")

// GLTFLoader loads GLTF/GLB files into Mesh format.
type GLTFLoader struct {
	// Options
	CalculateNormals  bool
	CalculateTangents bool
}

// NewGLTFLoader creates a new GLTF loader with default options.
func NewGLTFLoader() *GLTFLoader {
	return &GLTFLoader{
		CalculateNormals:  true,
		CalculateTangents: true,
	}
}

// LoadGLB loads a .glb or .gltf file with the default loader.
func LoadGLB(path string) (*Mesh, error) {
	loader := NewGLTFLoader()
	return loader.Load(path)
}

// Load loads a GLTF or GLB file and returns a Mesh.
func (l *GLTFLoader) Load(path string) (*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return l.Decode(doc, filepath.Base(path), filepath.Dir(path))
}

// Decode converts an opened document. dir resolves relative image URIs.
func (l *GLTFLoader) Decode(doc *gltf.Document, name, dir string) (*Mesh, error) {
	mesh := NewMesh(name)
	mesh.UVSets = MaxUVSets
	mesh.ColorSets = MaxColorSets
	images := &imageCache{doc: doc, dir: dir, decoded: map[int]image.Image{}}

	for i, m := range doc.Materials {
		mesh.Materials = append(mesh.Materials, l.convertMaterial(doc, images, m, i))
	}

	var missing []int // faces without a material
	hasTangents := true
	for _, m := range doc.Meshes {
		first := len(mesh.Faces)
		tangents, err := l.processMesh(doc, m, mesh)
		if err != nil {
			return nil, fmt.Errorf("process mesh %q: %w", m.Name, err)
		}
		hasTangents = hasTangents && tangents
		for i := first; i < len(mesh.Faces); i++ {
			if mesh.Faces[i].Material < 0 {
				missing = append(missing, i)
			}
		}
	}
	if len(mesh.Faces) == 0 {
		return nil, fmt.Errorf("decode %s: %w", name, ErrNoGeometry)
	}
	if len(missing) > 0 {
		mesh.Materials = append(mesh.Materials, DefaultMaterial())
		for _, i := range missing {
			mesh.Faces[i].Material = len(mesh.Materials) - 1
		}
	}

	hasNormals := false
	for _, v := range mesh.Vertices {
		if v.Normal.Len() > 0.001 {
			hasNormals = true
			break
		}
	}
	if l.CalculateNormals && !hasNormals {
		mesh.CalculateSmoothNormals()
	}
	if l.CalculateTangents && !hasTangents {
		mesh.CalculateTangents()
	}

	mesh.CalculateBounds()
	return mesh, nil
}

// processMesh extracts geometry from a GLTF mesh. It reports whether
// every primitive carried tangents.
func (l *GLTFLoader) processMesh(doc *gltf.Document, m *gltf.Mesh, mesh *Mesh) (bool, error) {
	allTangents := true
	for _, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != 0 {
			// Skip non-triangle primitives (lines, points, etc)
			continue
		}

		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := readVectors(doc, posIdx, 3)
		if err != nil {
			return false, fmt.Errorf("read positions: %w", err)
		}

		var normals, tangents, colors [][4]float64
		if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
			if normals, err = readVectors(doc, idx, 3); err != nil {
				return false, fmt.Errorf("read normals: %w", err)
			}
		}
		if idx, ok := prim.Attributes["TANGENT"]; ok {
			if tangents, err = readVectors(doc, idx, 4); err != nil {
				return false, fmt.Errorf("read tangents: %w", err)
			}
		}
		if idx, ok := prim.Attributes["COLOR_0"]; ok {
			if colors, err = readVectors(doc, idx, 4); err != nil {
				return false, fmt.Errorf("read colors: %w", err)
			}
		}
		var uvs [MaxUVSets][][4]float64
		uvSets := 0
		for set := range MaxUVSets {
			idx, ok := prim.Attributes[fmt.Sprintf("TEXCOORD_%d", set)]
			if !ok {
				break
			}
			if uvs[set], err = readVectors(doc, idx, 2); err != nil {
				return false, fmt.Errorf("read uv set %d: %w", set, err)
			}
			uvSets++
		}
		colorSets := 0
		if colors != nil {
			colorSets = 1
		}
		mesh.UVSets = min(mesh.UVSets, uvSets)
		mesh.ColorSets = min(mesh.ColorSets, colorSets)
		allTangents = allTangents && tangents != nil

		baseVertex := len(mesh.Vertices)
		for i, p := range positions {
			v := MeshVertex{
				Position: math3d.V3(p[0], p[1], p[2]),
				Color:    [MaxColorSets]math3d.Vec4{{X: 1, Y: 1, Z: 1, W: 1}},
			}
			if i < len(normals) {
				v.Normal = math3d.V3(normals[i][0], normals[i][1], normals[i][2])
			}
			if i < len(tangents) {
				t := tangents[i]
				v.Tangent = math3d.V4(t[0], t[1], t[2], t[3])
			}
			for set := range uvSets {
				if i < len(uvs[set]) {
					v.UV[set] = math3d.V2(uvs[set][i][0], uvs[set][i][1])
				}
			}
			if i < len(colors) {
				c := colors[i]
				v.Color[0] = math3d.V4(c[0], c[1], c[2], c[3])
			}
			mesh.Vertices = append(mesh.Vertices, v)
		}

		material := -1
		if prim.Material != nil && *prim.Material < len(mesh.Materials) {
			material = *prim.Material
		}

		var indices []int
		if prim.Indices != nil {
			if indices, err = readIndices(doc, *prim.Indices); err != nil {
				return false, fmt.Errorf("read indices: %w", err)
			}
		} else {
			// No indices, assume sequential triangles
			indices = make([]int, len(positions))
			for i := range indices {
				indices[i] = i
			}
		}
		for i := 0; i+2 < len(indices); i += 3 {
			f := Face{
				V:        [3]int{baseVertex + indices[i], baseVertex + indices[i+1], baseVertex + indices[i+2]},
				Material: material,
			}
			if f.V[0] >= len(mesh.Vertices) || f.V[1] >= len(mesh.Vertices) || f.V[2] >= len(mesh.Vertices) {
				return false, fmt.Errorf("index out of range in primitive of %d vertices", len(positions))
			}
			mesh.Faces = append(mesh.Faces, f)
		}
	}

	return allTangents, nil
}

// readVectors reads up to n components per element as float64, expanding
// normalized integer components to [0,1]. Missing components of a VEC3
// read as VEC4 default to 1.
func readVectors(doc *gltf.Document, accessorIdx, n int) ([][4]float64, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]

	comps := 0
	switch accessor.Type {
	case gltf.AccessorScalar:
		comps = 1
	case gltf.AccessorVec2:
		comps = 2
	case gltf.AccessorVec3:
		comps = 3
	case gltf.AccessorVec4:
		comps = 4
	default:
		return nil, fmt.Errorf("unsupported accessor type %v", accessor.Type)
	}

	size := componentSize(accessor.ComponentType)
	if size == 0 {
		return nil, fmt.Errorf("unsupported component type %v", accessor.ComponentType)
	}
	data, stride, err := accessorBytes(doc, accessor, comps*size)
	if err != nil {
		return nil, err
	}

	out := make([][4]float64, accessor.Count)
	for i := range out {
		out[i] = [4]float64{0, 0, 0, 1}
		base := i * stride
		for j := range min(comps, n) {
			b := data[base+j*size:]
			switch accessor.ComponentType {
			case gltf.ComponentFloat:
				out[i][j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
			case gltf.ComponentUbyte:
				out[i][j] = float64(b[0]) / 0xFF
			case gltf.ComponentUshort:
				out[i][j] = float64(binary.LittleEndian.Uint16(b)) / 0xFFFF
			default:
				return nil, fmt.Errorf("unsupported component type %v for vectors", accessor.ComponentType)
			}
		}
	}
	return out, nil
}

// readIndices reads index data from a GLTF accessor.
func readIndices(doc *gltf.Document, accessorIdx int) ([]int, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	size := componentSize(accessor.ComponentType)
	if accessor.Type != gltf.AccessorScalar || size == 0 || accessor.ComponentType == gltf.ComponentFloat {
		return nil, fmt.Errorf("unexpected index accessor %v / %v", accessor.Type, accessor.ComponentType)
	}
	data, stride, err := accessorBytes(doc, accessor, size)
	if err != nil {
		return nil, err
	}

	result := make([]int, accessor.Count)
	for i := range result {
		b := data[i*stride:]
		switch size {
		case 1:
			result[i] = int(b[0])
		case 2:
			result[i] = int(binary.LittleEndian.Uint16(b))
		default:
			result[i] = int(binary.LittleEndian.Uint32(b))
		}
	}
	return result, nil
}

func componentSize(ct gltf.ComponentType) int {
	switch ct {
	case gltf.ComponentUbyte:
		return 1
	case gltf.ComponentUshort:
		return 2
	case gltf.ComponentUint, gltf.ComponentFloat:
		return 4
	}
	return 0
}

// accessorBytes returns the accessor's bytes starting at its first
// element, with the element stride, after checking every element fits.
func accessorBytes(doc *gltf.Document, accessor *gltf.Accessor, elemSize int) ([]byte, int, error) {
	if accessor.BufferView == nil {
		return nil, 0, fmt.Errorf("accessor has no buffer view")
	}
	if *accessor.BufferView >= len(doc.BufferViews) {
		return nil, 0, fmt.Errorf("buffer view %d out of range", *accessor.BufferView)
	}
	bufferView := doc.BufferViews[*accessor.BufferView]
	if bufferView.Buffer >= len(doc.Buffers) {
		return nil, 0, fmt.Errorf("buffer %d out of range", bufferView.Buffer)
	}
	bufData := doc.Buffers[bufferView.Buffer].Data
	if bufData == nil {
		return nil, 0, fmt.Errorf("buffer has no data")
	}

	stride := bufferView.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	start := bufferView.ByteOffset + accessor.ByteOffset
	if accessor.Count > 0 {
		end := start + (accessor.Count-1)*stride + elemSize
		if end > len(bufData) {
			return nil, 0, fmt.Errorf("accessor reads past buffer end (%d > %d)", end, len(bufData))
		}
	}
	return bufData[start:], stride, nil
}

// textureInfo is the JSON form of a texture reference inside extensions.
type textureInfo struct {
	Index      int                        `json:"index"`
	TexCoord   int                        `json:"texCoord"`
	Extensions map[string]json.RawMessage `json:"extensions"`
}

type textureTransform struct {
	Offset   [2]float64  `json:"offset"`
	Rotation float64     `json:"rotation"`
	Scale    *[2]float64 `json:"scale"`
	TexCoord *int        `json:"texCoord"`
}

// extension decodes a named extension into out. The value may be raw JSON
// or a type registered by another package.
func extension(exts map[string]any, name string, out any) bool {
	v, ok := exts[name]
	if !ok {
		return false
	}
	raw, ok := v.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return false
		}
		raw = b
	}
	return json.Unmarshal(raw, out) == nil
}

func rawExtensions(exts map[string]json.RawMessage) map[string]any {
	out := make(map[string]any, len(exts))
	for k, v := range exts {
		out[k] = v
	}
	return out
}

func (l *GLTFLoader) convertMaterial(doc *gltf.Document, images *imageCache, m *gltf.Material, index int) Material {
	mat := DefaultMaterial()
	mat.Name = m.Name
	if mat.Name == "" {
		mat.Name = fmt.Sprintf("material_%d", index)
	}
	if _, ok := m.Extensions[extUnlit]; ok {
		mat.Kind = KindUnlit
	}

	if pbr := m.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			mat.BaseColor = *pbr.BaseColorFactor
		}
		if pbr.MetallicFactor != nil {
			mat.Metallic = *pbr.MetallicFactor
		}
		if pbr.RoughnessFactor != nil {
			mat.Roughness = *pbr.RoughnessFactor
		}
		if ti := pbr.BaseColorTexture; ti != nil {
			mat.BaseColorTex = images.ref(ti.Index, ti.TexCoord, ti.Extensions, true)
		}
		if ti := pbr.MetallicRoughnessTexture; ti != nil {
			mat.MetallicRoughnessTex = images.ref(ti.Index, ti.TexCoord, ti.Extensions, false)
		}
	}
	if nt := m.NormalTexture; nt != nil && nt.Index != nil {
		mat.NormalTex = images.ref(*nt.Index, nt.TexCoord, nt.Extensions, false)
		if nt.Scale != nil {
			mat.NormalScale = *nt.Scale
		}
	}
	if ot := m.OcclusionTexture; ot != nil && ot.Index != nil {
		mat.OcclusionTex = images.ref(*ot.Index, ot.TexCoord, ot.Extensions, false)
		if ot.Strength != nil {
			mat.OcclusionStrength = *ot.Strength
		}
	}
	mat.Emissive = m.EmissiveFactor
	if ti := m.EmissiveTexture; ti != nil {
		mat.EmissiveTex = images.ref(ti.Index, ti.TexCoord, ti.Extensions, true)
	}

	var cc struct {
		Factor    float64      `json:"clearcoatFactor"`
		Roughness float64      `json:"clearcoatRoughnessFactor"`
		Texture   *textureInfo `json:"clearcoatTexture"`
	}
	if extension(m.Extensions, extClearcoat, &cc) {
		mat.Clearcoat = &Clearcoat{Factor: cc.Factor, Roughness: cc.Roughness, Tex: images.refInfo(cc.Texture, false)}
	}

	var sh struct {
		Color     [3]float64   `json:"sheenColorFactor"`
		Roughness float64      `json:"sheenRoughnessFactor"`
		Texture   *textureInfo `json:"sheenColorTexture"`
	}
	if extension(m.Extensions, extSheen, &sh) {
		mat.Sheen = &Sheen{Color: sh.Color, Roughness: sh.Roughness, ColorTex: images.refInfo(sh.Texture, true)}
	}

	var tr struct {
		Factor  float64      `json:"transmissionFactor"`
		Texture *textureInfo `json:"transmissionTexture"`
	}
	if extension(m.Extensions, extTransmission, &tr) {
		mat.Transmission = &Transmission{Factor: tr.Factor, Tex: images.refInfo(tr.Texture, false)}
	}
	return mat
}

// imageCache decodes each document image once.
type imageCache struct {
	doc     *gltf.Document
	dir     string
	decoded map[int]image.Image
}

func (c *imageCache) refInfo(ti *textureInfo, srgb bool) *TextureRef {
	if ti == nil {
		return nil
	}
	return c.ref(ti.Index, ti.TexCoord, rawExtensions(ti.Extensions), srgb)
}

// ref resolves a texture index into a TextureRef, or nil when the texture
// or its image cannot be used.
func (c *imageCache) ref(texIdx, texCoord int, exts map[string]any, srgb bool) *TextureRef {
	if texIdx < 0 || texIdx >= len(c.doc.Textures) {
		return nil
	}
	tex := c.doc.Textures[texIdx]
	if tex.Source == nil {
		return nil
	}
	img := c.image(*tex.Source)
	if img == nil {
		return nil
	}

	ref := &TextureRef{
		Image:     img,
		Source:    *tex.Source,
		TexCoord:  texCoord,
		Sampler:   atlas.DefaultSampler,
		Transform: atlas.IdentityTransform,
		SRGB:      srgb,
	}
	if tex.Sampler != nil && *tex.Sampler < len(c.doc.Samplers) {
		s := c.doc.Samplers[*tex.Sampler]
		ref.AddressU = addressMode(s.WrapS)
		ref.AddressV = addressMode(s.WrapT)
		if s.MagFilter == gltf.MagNearest {
			ref.Sampler.Filter = atlas.FilterNearest
		}
		switch s.MinFilter {
		case gltf.MinNearestMipMapNearest, gltf.MinLinearMipMapNearest, gltf.MinNearest, gltf.MinLinear:
			ref.Sampler.MipFilter = atlas.MipNearest
		}
	} else {
		ref.AddressU, ref.AddressV = atlas.Repeat, atlas.Repeat
	}

	var tt textureTransform
	if extension(exts, extTextureTransform, &tt) {
		scale := [2]float64{1, 1}
		if tt.Scale != nil {
			scale = *tt.Scale
		}
		// KHR_texture_transform rotates clockwise in UV space.
		ref.Transform = atlas.NewUvTransform(
			math3d.V2(tt.Offset[0], tt.Offset[1]),
			math3d.V2(scale[0], scale[1]),
			-tt.Rotation,
			math3d.Vec2{},
		)
		if tt.TexCoord != nil {
			ref.TexCoord = *tt.TexCoord
		}
	}
	return ref
}

func addressMode(w gltf.WrappingMode) atlas.AddressMode {
	switch w {
	case gltf.WrapClampToEdge:
		return atlas.ClampToEdge
	case gltf.WrapMirroredRepeat:
		return atlas.MirroredRepeat
	default:
		return atlas.Repeat
	}
}

// image returns the decoded image at index i, or nil when it cannot be read.
func (c *imageCache) image(i int) image.Image {
	if img, ok := c.decoded[i]; ok {
		return img
	}
	var img image.Image
	if data, err := c.imageBytes(i); err == nil {
		img, _, _ = image.Decode(bytes.NewReader(data))
	}
	c.decoded[i] = img
	return img
}

func (c *imageCache) imageBytes(i int) ([]byte, error) {
	if i < 0 || i >= len(c.doc.Images) {
		return nil, fmt.Errorf("image %d out of range", i)
	}
	img := c.doc.Images[i]
	switch {
	case img.BufferView != nil:
		if *img.BufferView >= len(c.doc.BufferViews) {
			return nil, fmt.Errorf("buffer view %d out of range", *img.BufferView)
		}
		bv := c.doc.BufferViews[*img.BufferView]
		if bv.Buffer >= len(c.doc.Buffers) {
			return nil, fmt.Errorf("buffer %d out of range", bv.Buffer)
		}
		data := c.doc.Buffers[bv.Buffer].Data
		end := bv.ByteOffset + bv.ByteLength
		if end > len(data) {
			return nil, fmt.Errorf("image %d reads past buffer end", i)
		}
		return data[bv.ByteOffset:end], nil
	case strings.HasPrefix(img.URI, "data:"):
		_, payload, ok := strings.Cut(img.URI, ";base64,")
		if !ok {
			return nil, fmt.Errorf("image %d: unsupported data uri", i)
		}
		return base64.StdEncoding.DecodeString(payload)
	case img.URI != "":
		// External texture file
		return os.ReadFile(filepath.Join(c.dir, filepath.FromSlash(img.URI)))
	}
	return nil, fmt.Errorf("image %d has no source", i)
}
