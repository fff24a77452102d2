package math

import (
	stdmath "math"

	"golang.org/x/image/math/f32"
)

// Matrices are stored the way GLSL reads a mat4 push constant: the
// translation lives in elements 12..14. Mul(a, b) applies a first, then b.

func Mat4Identity() f32.Mat4 {
	return f32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func Mul(a, b f32.Mat4) f32.Mat4 {
	var out f32.Mat4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float32
			for i := 0; i < 4; i++ {
				sum += a[row*4+i] * b[i*4+col]
			}
			out[row*4+col] = sum
		}
	}
	return out
}

func Mat4Translation(position f32.Vec3) f32.Mat4 {
	out := Mat4Identity()
	out[12] = position[0]
	out[13] = position[1]
	out[14] = position[2]
	return out
}

func Mat4Scale(scale f32.Vec3) f32.Mat4 {
	out := Mat4Identity()
	out[0] = scale[0]
	out[5] = scale[1]
	out[10] = scale[2]
	return out
}

func Mat4EulerX(radians float32) f32.Mat4 {
	out := Mat4Identity()
	c, s := cos(radians), sin(radians)
	out[5] = c
	out[6] = s
	out[9] = -s
	out[10] = c
	return out
}

func Mat4EulerY(radians float32) f32.Mat4 {
	out := Mat4Identity()
	c, s := cos(radians), sin(radians)
	out[0] = c
	out[2] = -s
	out[8] = s
	out[10] = c
	return out
}

func Mat4EulerZ(radians float32) f32.Mat4 {
	out := Mat4Identity()
	c, s := cos(radians), sin(radians)
	out[0] = c
	out[1] = s
	out[4] = -s
	out[5] = c
	return out
}

func Mat4EulerXYZ(x, y, z float32) f32.Mat4 {
	return Mul(Mul(Mat4EulerX(x), Mat4EulerY(y)), Mat4EulerZ(z))
}

// Mat4Perspective builds a right-handed perspective projection with the
// zero to one depth range Vulkan clips against.
func Mat4Perspective(fovRadians, aspectRatio, nearClip, farClip float32) f32.Mat4 {
	halfTanFov := float32(stdmath.Tan(float64(fovRadians) * 0.5))
	var out f32.Mat4
	out[0] = 1.0 / (aspectRatio * halfTanFov)
	out[5] = 1.0 / halfTanFov
	out[10] = farClip / (nearClip - farClip)
	out[11] = -1.0
	out[14] = (nearClip * farClip) / (nearClip - farClip)
	return out
}

func Mat4LookAt(position, target, up f32.Vec3) f32.Mat4 {
	z := normalize(sub(target, position))
	x := normalize(cross(up, z))
	y := cross(z, x)

	return f32.Mat4{
		x[0], y[0], -z[0], 0,
		x[1], y[1], -z[1], 0,
		x[2], y[2], -z[2], 0,
		-dot(x, position), -dot(y, position), dot(z, position), 1,
	}
}

func DegToRad(degrees float32) float32 {
	return degrees * float32(stdmath.Pi) / 180.0
}

func sin(r float32) float32 { return float32(stdmath.Sin(float64(r))) }
func cos(r float32) float32 { return float32(stdmath.Cos(float64(r))) }

func sub(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dot(a, b f32.Vec3) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b f32.Vec3) f32.Vec3 {
	return f32.Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(v f32.Vec3) f32.Vec3 {
	l := float32(stdmath.Sqrt(float64(dot(v, v))))
	if l == 0 {
		return v
	}
	return f32.Vec3{v[0] / l, v[1] / l, v[2] / l}
}
