package math

import (
	"golang.org/x/image/math/f32"
)

/**
 * @brief Position, euler rotation and scale of an object. The local matrix
 * is rebuilt lazily after any of them changes.
 */
type Transform struct {
	Position f32.Vec3
	/** @brief Euler angles in radians (pitch, yaw, roll). */
	Rotation f32.Vec3
	Scale    f32.Vec3
	/** @brief A parent transform, or nil. */
	Parent *Transform

	local   f32.Mat4
	isDirty bool
}

func NewTransform() *Transform {
	return &Transform{
		Scale:   f32.Vec3{1, 1, 1},
		local:   Mat4Identity(),
		isDirty: true,
	}
}

func (t *Transform) SetPosition(position f32.Vec3) {
	t.Position = position
	t.isDirty = true
}

func (t *Transform) Translate(translation f32.Vec3) {
	t.Position = f32.Vec3{
		t.Position[0] + translation[0],
		t.Position[1] + translation[1],
		t.Position[2] + translation[2],
	}
	t.isDirty = true
}

func (t *Transform) SetRotation(rotation f32.Vec3) {
	t.Rotation = rotation
	t.isDirty = true
}

func (t *Transform) Rotate(delta f32.Vec3) {
	t.Rotation = f32.Vec3{
		t.Rotation[0] + delta[0],
		t.Rotation[1] + delta[1],
		t.Rotation[2] + delta[2],
	}
	t.isDirty = true
}

func (t *Transform) SetScale(scale f32.Vec3) {
	t.Scale = scale
	t.isDirty = true
}

// Local returns scale, then rotation, then translation.
func (t *Transform) Local() f32.Mat4 {
	if t == nil {
		return Mat4Identity()
	}
	if t.isDirty {
		r := Mat4EulerXYZ(t.Rotation[0], t.Rotation[1], t.Rotation[2])
		t.local = Mul(Mat4Scale(t.Scale), Mul(r, Mat4Translation(t.Position)))
		t.isDirty = false
	}
	return t.local
}

func (t *Transform) World() f32.Mat4 {
	if t == nil {
		return Mat4Identity()
	}
	l := t.Local()
	if t.Parent != nil {
		return Mul(l, t.Parent.World())
	}
	return l
}
