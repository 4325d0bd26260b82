package components

import (
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima/engine/math"
)

// worldUp is +Z: the scene lies on the XY plane.
var worldUp = mgl32.Vec3{0, 0, 1}

const pitchLimit float32 = 89.0

// Camera is a fly camera. EulerRotation holds pitch, yaw and roll in degrees.
type Camera struct {
	// Do not set Position directly, use SetPosition so the view matrix is rebuilt.
	Position      mgl32.Vec3
	EulerRotation mgl32.Vec3
	IsDirty       bool
	ViewMatrix    mgl32.Mat4
}

func NewCamera(position mgl32.Vec3, pitch, yaw, roll float32) *Camera {
	c := &Camera{
		Position:      position,
		EulerRotation: mgl32.Vec3{pitch, yaw, roll},
		IsDirty:       true,
	}
	return c
}

func (c *Camera) Reset() {
	c.Position = mgl32.Vec3{}
	c.EulerRotation = mgl32.Vec3{}
	c.IsDirty = true
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) Pitch() float32 { return c.EulerRotation[0] }
func (c *Camera) Yaw() float32   { return c.EulerRotation[1] }
func (c *Camera) Roll() float32  { return c.EulerRotation[2] }

// Direction is the unit vector the camera looks along.
func (c *Camera) Direction() mgl32.Vec3 {
	pitch := float64(mgl32.DegToRad(c.Pitch()))
	yaw := float64(mgl32.DegToRad(c.Yaw()))
	return mgl32.Vec3{
		float32(stdmath.Cos(yaw) * stdmath.Cos(pitch)),
		float32(stdmath.Sin(yaw) * stdmath.Cos(pitch)),
		float32(stdmath.Sin(pitch)),
	}.Normalize()
}

// Rotate adds to the euler angles. Yaw wraps to [-180, 180], pitch is
// clamped to avoid gimbal lock.
func (c *Camera) Rotate(yaw, pitch, roll float32) {
	c.EulerRotation[1] = math.WrapDegrees(c.EulerRotation[1] + yaw)
	c.EulerRotation[0] = math.Clamp(c.EulerRotation[0]+pitch, -pitchLimit, pitchLimit)
	c.EulerRotation[2] = float32(stdmath.Mod(float64(c.EulerRotation[2]+roll), 180))
	c.IsDirty = true
}

// Move translates the camera in its own frame: x forward, y left, z up.
// Only yaw affects the XY motion, z always follows the world up axis.
func (c *Camera) Move(x, y, z float32) {
	rotation := mgl32.HomogRotate3DZ(mgl32.DegToRad(c.Yaw()))
	xy := rotation.Mul4x1(mgl32.Vec4{x, y, 0, 0}).Vec3()
	c.Position = c.Position.Add(xy).Add(mgl32.Vec3{0, 0, z})
	c.IsDirty = true
}

func (c *Camera) GetView() mgl32.Mat4 {
	if c.IsDirty {
		direction := c.Direction()
		right := worldUp.Cross(direction).Normalize()
		up := direction.Cross(right)

		roll := mgl32.HomogRotate3D(mgl32.DegToRad(c.Roll()), direction)
		up = roll.Mul4x1(up.Vec4(0)).Vec3()

		c.ViewMatrix = mgl32.LookAtV(c.Position, c.Position.Add(direction), up)
		c.IsDirty = false
	}
	return c.ViewMatrix
}

// Projection returns a right handed perspective with a [0, 1] depth range
// and Y pointing down, as Vulkan clip space expects. fov is in degrees.
func Projection(fov, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1 / stdmath.Tan(float64(mgl32.DegToRad(fov))/2))
	return mgl32.Mat4{
		f / aspect, 0, 0, 0,
		0, -f, 0, 0,
		0, 0, far / (near - far), -1,
		0, 0, near * far / (near - far), 0,
	}
}
