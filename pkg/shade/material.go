package shade

import (
	"github.com/taigrr/vbshade/pkg/deriv"
	"github.com/taigrr/vbshade/pkg/frame"
	"github.com/taigrr/vbshade/pkg/geometry"
	"github.com/taigrr/vbshade/pkg/math3d"
)

// sampleState carries per-sample lazily computed values across the
// texture fetches of one material.
type sampleState struct {
	k   *Kernel
	smp geometry.Sample

	gradLoaded bool
	cache      deriv.Cache

	uvLoaded uint8
	uv       [frame.MaxUVSets]math3d.Vec2
}

func (st *sampleState) vertexUVs(set int) (a0, a1, a2 math3d.Vec2) {
	f, m, v := st.k.frame, st.smp.Meta, st.smp.Vertices
	return f.UV(m, set, v[0]), f.UV(m, set, v[1]), f.UV(m, set, v[2])
}

// texCoord returns the interpolated coordinate of UV set i.
func (st *sampleState) texCoord(set int) math3d.Vec2 {
	if set < 0 || set >= frame.MaxUVSets {
		return math3d.Vec2{}
	}
	if st.uvLoaded&(1<<set) == 0 {
		a0, a1, a2 := st.vertexUVs(set)
		st.uv[set] = st.smp.Interpolate2([3]math3d.Vec2{a0, a1, a2})
		st.uvLoaded |= 1 << set
	}
	return st.uv[set]
}

// derivs returns the UV derivatives of set, computing the triangle's
// gradients on first use.
func (st *sampleState) derivs(set int) deriv.UvDerivs {
	if !st.gradLoaded {
		st.cache.Reset(st.k.gradients(st.smp))
		st.gradLoaded = true
	}
	return st.cache.Get(set, func() (a0, a1, a2 math3d.Vec2) {
		return st.vertexUVs(set)
	})
}

// texture fetches slot. ok is false when the slot is unbound.
func (st *sampleState) texture(slot frame.TextureSlot) (math3d.Vec4, bool) {
	if !slot.Bound() {
		return math3d.Vec4{}, false
	}
	set := int(slot.TexCoord)
	uv := st.texCoord(set)
	if st.k.cfg.Deriv == DerivNoMipmap {
		return st.k.fetcher.Level(int(slot.Entry), uv, 0), true
	}
	return st.k.fetcher.Grad(int(slot.Entry), uv, st.derivs(set)), true
}

// evaluate resolves every material property of smp.
func (k *Kernel) evaluate(smp geometry.Sample, mat frame.Material) Surface {
	st := sampleState{k: k, smp: smp}
	f, m, v := k.frame, smp.Meta, smp.Vertices

	surf := Surface{
		Kind:      mat.Kind,
		Position:  smp.World,
		View:      k.decoder.View.Eye.Sub(smp.World).Normalize(),
		BaseColor: mat.BaseColor,
		Metallic:  mat.Metallic,
		Roughness: mat.Roughness,
		Occlusion: 1,
		Emissive:  mat.Emissive,
	}

	if m.ColorSets > 0 {
		vc := smp.Interpolate4([3]math3d.Vec4{f.Color(m, v[0]), f.Color(m, v[1]), f.Color(m, v[2])})
		surf.BaseColor = surf.BaseColor.Mul(vc)
	}
	if t, ok := st.texture(mat.BaseColorTex); ok {
		surf.BaseColor = surf.BaseColor.Mul(t)
	}
	if mat.Kind == frame.KindUnlit {
		return surf
	}

	if t, ok := st.texture(mat.MetallicRoughnessTex); ok {
		surf.Roughness *= t.Y
		surf.Metallic *= t.Z
	}
	if t, ok := st.texture(mat.OcclusionTex); ok {
		surf.Occlusion = 1 + mat.OcclusionStrength*(t.X-1)
	}
	if t, ok := st.texture(mat.EmissiveTex); ok {
		surf.Emissive = surf.Emissive.Mul(t.Vec3())
	}

	n := smp.Frame.N.Normalize()
	surf.GeometricNormal = n
	surf.Normal = n
	if t, ok := st.texture(mat.NormalTex); ok {
		tx := (t.X*2 - 1) * mat.NormalScale
		ty := (t.Y*2 - 1) * mat.NormalScale
		tz := t.Z*2 - 1
		p := smp.Frame.T.Scale(tx).Add(smp.Frame.B.Scale(ty)).Add(n.Scale(tz)).Normalize()
		if p != (math3d.Vec3{}) {
			surf.Normal = p
		}
	}

	if cc, ok := f.ClearcoatBlock(mat.Clearcoat); ok {
		surf.Clearcoat, surf.ClearcoatRoughness = cc.Factor, cc.Roughness
		if t, ok := st.texture(cc.Tex); ok {
			surf.Clearcoat *= t.X
			surf.ClearcoatRoughness *= t.Y
		}
	}
	if sh, ok := f.SheenBlock(mat.Sheen); ok {
		surf.Sheen, surf.SheenRoughness = sh.Color, sh.Roughness
		if t, ok := st.texture(sh.ColorTex); ok {
			surf.Sheen = surf.Sheen.Mul(t.Vec3())
		}
	}
	if tr, ok := f.TransmissionBlock(mat.Transmission); ok {
		surf.Transmission = tr.Factor
		if t, ok := st.texture(tr.Tex); ok {
			surf.Transmission *= t.X
		}
	}
	return surf
}
