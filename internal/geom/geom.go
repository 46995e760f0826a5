// Package geom holds the small float32 vector and matrix types shared by the
// capture pipeline. Matrices are row-major: m[4*r+c] is row r, column c.
package geom

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/image/math/f32"
	"gonum.org/v1/gonum/mat"
)

type Vec2 f32.Vec2
type Vec3 f32.Vec3
type Vec4 f32.Vec4
type Mat3 f32.Mat3
type Mat4 f32.Mat4

// XYZ builds a 3 component vector.
func XYZ(x, y, z float32) Vec3 {
	return Vec3{x, y, z}
}

// Vec4 expands a 3 component vector.
func (v Vec3) Vec4(w float32) Vec4 {
	return Vec4{v[0], v[1], v[2], w}
}

func (v Vec3) Add(v2 Vec3) Vec3 {
	return Vec3{v[0] + v2[0], v[1] + v2[1], v[2] + v2[2]}
}

func (v Vec3) Sub(v2 Vec3) Vec3 {
	return Vec3{v[0] - v2[0], v[1] - v2[1], v[2] - v2[2]}
}

// Mul scales the vector by s.
func (v Vec3) Mul(s float32) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

func (v Vec3) Dot(v2 Vec3) float32 {
	return v[0]*v2[0] + v[1]*v2[1] + v[2]*v2[2]
}

// DistSq returns the squared euclidean distance to v2.
func (v Vec3) DistSq(v2 Vec3) float32 {
	d := v.Sub(v2)
	return d.Dot(d)
}

func (v Vec3) Len() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Vec3 drops the w component.
func (v Vec4) Vec3() Vec3 {
	return Vec3{v[0], v[1], v[2]}
}

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// MulVec3 returns m*v.
func (m Mat3) MulVec3(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
		m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
	}
}

// ErrSingular is returned when a matrix has no inverse.
var ErrSingular = errors.New("geom: singular matrix")

// InvertMat3 inverts m, typically a camera intrinsics matrix.
func InvertMat3(m Mat3) (Mat3, error) {
	data := make([]float64, 9)
	for i, v := range m {
		data[i] = float64(v)
	}
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, data)); err != nil {
		return Mat3{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	var out Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[3*r+c] = float32(inv.At(r, c))
		}
	}
	return out, nil
}

// Identity4 returns the 4x4 identity matrix.
func Identity4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a pure translation transform.
func Translation(t Vec3) Mat4 {
	m := Identity4()
	m[3], m[7], m[11] = t[0], t[1], t[2]
	return m
}

// RotationY returns a rotation of rad radians about the Y axis.
func RotationY(rad float64) Mat4 {
	s, c := float32(math.Sin(rad)), float32(math.Cos(rad))
	return Mat4{
		c, 0, s, 0,
		0, 1, 0, 0,
		-s, 0, c, 0,
		0, 0, 0, 1,
	}
}

// FlipYZ negates the Y and Z axes, converting between image space
// (y down, z forward) and camera space (y up, z backward).
func FlipYZ() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, -1, 0, 0,
		0, 0, -1, 0,
		0, 0, 0, 1,
	}
}

// Mul returns m*n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var s float32
			for k := 0; k < 4; k++ {
				s += m[4*r+k] * n[4*k+c]
			}
			out[4*r+c] = s
		}
	}
	return out
}

// MulVec4 returns m*v.
func (m Mat4) MulVec4(v Vec4) Vec4 {
	var out Vec4
	for r := 0; r < 4; r++ {
		out[r] = m[4*r]*v[0] + m[4*r+1]*v[1] + m[4*r+2]*v[2] + m[4*r+3]*v[3]
	}
	return out
}

// Col returns column c.
func (m Mat4) Col(c int) Vec4 {
	return Vec4{m[c], m[4+c], m[8+c], m[12+c]}
}

// Forward returns the transform's Z axis.
func (m Mat4) Forward() Vec3 {
	return m.Col(2).Vec3()
}

// Origin returns the transform's translation.
func (m Mat4) Origin() Vec3 {
	return m.Col(3).Vec3()
}

// Mat3 extracts the top-left 3x3 block.
func (m Mat4) Mat3() Mat3 {
	return Mat3{
		m[0], m[1], m[2],
		m[4], m[5], m[6],
		m[8], m[9], m[10],
	}
}
