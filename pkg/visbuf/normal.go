package visbuf

import (
	"math"

	"github.com/taigrr/vbshade/pkg/math3d"
)

// PackedNormalTangent stores an octahedral-encoded normal (16 bits per
// axis) and an octahedral-encoded tangent (15 bits per axis) whose top bit
// carries the bitangent sign.
type PackedNormalTangent struct {
	Normal  uint32
	Tangent uint32
}

const (
	tangentBits  = 15
	tangentMask  = 1<<tangentBits - 1
	bitangentNeg = 1 << 31
)

// NormalTangent is the decoded tangent frame of a sample.
type NormalTangent struct {
	N, T, B math3d.Vec3
	Sign    float64
}

// PackNormalTangent encodes a world-space normal, tangent and bitangent sign.
// sign < 0 flips the bitangent.
func PackNormalTangent(n, t math3d.Vec3, sign float64) PackedNormalTangent {
	nx, ny := octEncode(n)
	tx, ty := octEncode(t)

	tangent := quantize(tx, tangentMask) | quantize(ty, tangentMask)<<tangentBits
	if sign < 0 {
		tangent |= bitangentNeg
	}
	return PackedNormalTangent{
		Normal:  quantize(nx, 0xFFFF) | quantize(ny, 0xFFFF)<<16,
		Tangent: tangent,
	}
}

// Decode expands the packed frame. The bitangent is rebuilt from N × T.
func (p PackedNormalTangent) Decode() NormalTangent {
	n := octDecode(dequantize(p.Normal&0xFFFF, 0xFFFF), dequantize(p.Normal>>16, 0xFFFF))
	t := octDecode(
		dequantize(p.Tangent&tangentMask, tangentMask),
		dequantize((p.Tangent>>tangentBits)&tangentMask, tangentMask),
	)
	sign := 1.0
	if p.Tangent&bitangentNeg != 0 {
		sign = -1
	}
	return NormalTangent{N: n, T: t, B: n.Cross(t).Scale(sign), Sign: sign}
}

// DecodeNormal expands only the normal. The edge classifier needs nothing else.
func (p PackedNormalTangent) DecodeNormal() math3d.Vec3 {
	return octDecode(dequantize(p.Normal&0xFFFF, 0xFFFF), dequantize(p.Normal>>16, 0xFFFF))
}

func signNotZero(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

func octEncode(v math3d.Vec3) (float64, float64) {
	l1 := math.Abs(v.X) + math.Abs(v.Y) + math.Abs(v.Z)
	if l1 == 0 || !math3d.IsFinite(l1) {
		return 0, 0
	}
	x, y := v.X/l1, v.Y/l1
	if v.Z < 0 {
		x, y = (1-math.Abs(y))*signNotZero(x), (1-math.Abs(x))*signNotZero(y)
	}
	return x, y
}

func octDecode(x, y float64) math3d.Vec3 {
	n := math3d.V3(x, y, 1-math.Abs(x)-math.Abs(y))
	if t := math3d.Clamp(-n.Z, 0, 1); t > 0 {
		n.X -= t * signNotZero(n.X)
		n.Y -= t * signNotZero(n.Y)
	}
	return n.Normalize()
}

func quantize(f float64, maxv uint32) uint32 {
	return uint32(math.Round((math3d.Clamp(f, -1, 1)*0.5 + 0.5) * float64(maxv)))
}

func dequantize(q, maxv uint32) float64 {
	return float64(q)/float64(maxv)*2 - 1
}
