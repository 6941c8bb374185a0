package math3d

import "math"

// Mat4 is a 4x4 matrix stored in column-major order.
//
// Memory layout (indices):
// | 0  4  8  12 |
// | 1  5  9  13 |
// | 2  6  10 14 |
// | 3  7  11 15 |
type Mat4 [16]float64

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate creates a translation matrix.
func Translate(v Vec3) Mat4 {
	m := Identity()
	m[12], m[13], m[14] = v.X, v.Y, v.Z
	return m
}

// Scale creates a scaling matrix.
func Scale(v Vec3) Mat4 {
	return Mat4{
		v.X, 0, 0, 0,
		0, v.Y, 0, 0,
		0, 0, v.Z, 0,
		0, 0, 0, 1,
	}
}

// RotateX creates a rotation matrix around the X axis.
func RotateX(angle float64) Mat4 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Mat4{
		1, 0, 0, 0,
		0, c, s, 0,
		0, -s, c, 0,
		0, 0, 0, 1,
	}
}

// RotateY creates a rotation matrix around the Y axis.
func RotateY(angle float64) Mat4 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Mat4{
		c, 0, -s, 0,
		0, 1, 0, 0,
		s, 0, c, 0,
		0, 0, 0, 1,
	}
}

// RotateZ creates a rotation matrix around the Z axis.
func RotateZ(angle float64) Mat4 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Mat4{
		c, s, 0, 0,
		-s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// LookAt creates a right-handed view matrix looking from eye towards center.
func LookAt(eye, center, up Vec3) Mat4 {
	f := center.Sub(eye).Normalize()
	s := f.Cross(up).Normalize()
	u := s.Cross(f)

	return Mat4{
		s.X, u.X, -f.X, 0,
		s.Y, u.Y, -f.Y, 0,
		s.Z, u.Z, -f.Z, 0,
		-s.Dot(eye), -u.Dot(eye), f.Dot(eye), 1,
	}
}

// PerspectiveZO creates a right-handed perspective projection whose clip
// depth runs from 0 at the near plane to 1 at the far plane.
// fovy is the vertical field of view in radians.
func PerspectiveZO(fovy, aspect, near, far float64) Mat4 {
	f := 1.0 / math.Tan(fovy/2)
	nf := 1.0 / (near - far)

	return Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, far * nf, -1,
		0, 0, near * far * nf, 0,
	}
}

// Mul multiplies two matrices: a * b.
//
//nolint:st1016 // a*b naming convention is clearer for matrix multiplication
func (a Mat4) Mul(b Mat4) Mat4 {
	var m Mat4
	for col := range 4 {
		for row := range 4 {
			var sum float64
			for k := range 4 {
				sum += a[row+k*4] * b[k+col*4]
			}
			m[row+col*4] = sum
		}
	}
	return m
}

// MulVec3 transforms v as a point (w=1) including the perspective divide.
func (m Mat4) MulVec3(v Vec3) Vec3 {
	return m.MulVec4(V4FromV3(v, 1)).PerspectiveDivide()
}

// MulVec3Dir transforms v as a direction (w=0, no translation).
func (m Mat4) MulVec3Dir(v Vec3) Vec3 {
	return Vec3{
		m[0]*v.X + m[4]*v.Y + m[8]*v.Z,
		m[1]*v.X + m[5]*v.Y + m[9]*v.Z,
		m[2]*v.X + m[6]*v.Y + m[10]*v.Z,
	}
}

// MulVec4 transforms a Vec4.
func (m Mat4) MulVec4(v Vec4) Vec4 {
	return Vec4{
		m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12]*v.W,
		m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13]*v.W,
		m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14]*v.W,
		m[3]*v.X + m[7]*v.Y + m[11]*v.Z + m[15]*v.W,
	}
}

// Transpose returns the transposed matrix.
func (m Mat4) Transpose() Mat4 {
	var t Mat4
	for row := range 4 {
		for col := range 4 {
			t[col+row*4] = m[row+col*4]
		}
	}
	return t
}

// Inverse returns the inverse of m and whether m was invertible.
// A singular matrix yields the identity.
func (m Mat4) Inverse() (Mat4, bool) {
	// Laplace expansion over 2x2 minors of the top and bottom row pairs.
	s0 := m[0]*m[5] - m[1]*m[4]
	s1 := m[0]*m[9] - m[1]*m[8]
	s2 := m[0]*m[13] - m[1]*m[12]
	s3 := m[4]*m[9] - m[5]*m[8]
	s4 := m[4]*m[13] - m[5]*m[12]
	s5 := m[8]*m[13] - m[9]*m[12]

	c5 := m[10]*m[15] - m[11]*m[14]
	c4 := m[6]*m[15] - m[7]*m[14]
	c3 := m[6]*m[11] - m[7]*m[10]
	c2 := m[2]*m[15] - m[3]*m[14]
	c1 := m[2]*m[11] - m[3]*m[10]
	c0 := m[2]*m[7] - m[3]*m[6]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 || !IsFinite(det) {
		return Identity(), false
	}
	inv := 1 / det

	var r Mat4
	r[0] = (m[5]*c5 - m[9]*c4 + m[13]*c3) * inv
	r[4] = (-m[4]*c5 + m[8]*c4 - m[12]*c3) * inv
	r[8] = (m[7]*s5 - m[11]*s4 + m[15]*s3) * inv
	r[12] = (-m[6]*s5 + m[10]*s4 - m[14]*s3) * inv

	r[1] = (-m[1]*c5 + m[9]*c2 - m[13]*c1) * inv
	r[5] = (m[0]*c5 - m[8]*c2 + m[12]*c1) * inv
	r[9] = (-m[3]*s5 + m[11]*s2 - m[15]*s1) * inv
	r[13] = (m[2]*s5 - m[10]*s2 + m[14]*s1) * inv

	r[2] = (m[1]*c4 - m[5]*c2 + m[13]*c0) * inv
	r[6] = (-m[0]*c4 + m[4]*c2 - m[12]*c0) * inv
	r[10] = (m[3]*s4 - m[7]*s2 + m[15]*s0) * inv
	r[14] = (-m[2]*s4 + m[6]*s2 - m[14]*s0) * inv

	r[3] = (-m[1]*c3 + m[5]*c1 - m[9]*c0) * inv
	r[7] = (m[0]*c3 - m[4]*c1 + m[8]*c0) * inv
	r[11] = (-m[3]*s3 + m[7]*s1 - m[11]*s0) * inv
	r[15] = (m[2]*s3 - m[6]*s1 + m[10]*s0) * inv

	return r, true
}

// NormalMatrix returns the inverse transpose of m, used to carry normals
// through non-uniform scale.
func (m Mat4) NormalMatrix() Mat4 {
	inv, _ := m.Inverse()
	return inv.Transpose()
}
