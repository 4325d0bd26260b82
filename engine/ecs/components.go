package ecs

import (
	"github.com/go-gl/mathgl/mgl32"
)

type ComponentKind uint8

const (
	ComponentTransform ComponentKind = iota
	ComponentBindlessInstance
	ComponentKindMax
)

func (k ComponentKind) String() string {
	switch k {
	case ComponentTransform:
		return "Transform"
	case ComponentBindlessInstance:
		return "BindlessInstance"
	}
	return "Unknown"
}

func (k ComponentKind) Mask() ComponentMask {
	return ComponentMask(1) << k
}

type ComponentMask uint32

func (m ComponentMask) Has(k ComponentKind) bool {
	return m&k.Mask() != 0
}

// Transform holds position, rotation in degrees around X, Y, Z and scale.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3
}

func IdentityTransform() Transform {
	return Transform{Scale: mgl32.Vec3{1, 1, 1}}
}

// Model returns translate * rotX * rotY * rotZ * scale.
func (t *Transform) Model() mgl32.Mat4 {
	m := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	m = m.Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(t.Rotation.X())))
	m = m.Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(t.Rotation.Y())))
	m = m.Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(t.Rotation.Z())))
	return m.Mul4(mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}

func (t *Transform) Translate(d mgl32.Vec3) {
	t.Position = t.Position.Add(d)
}

func (t *Transform) Rotate(d mgl32.Vec3) {
	t.Rotation = t.Rotation.Add(d)
}

// BindlessInstance is the render-side record of an entity drawn by the
// bindless system.
type BindlessInstance struct {
	MeshPath           string
	TexturePath        string
	Batch              int
	LookupSlot         uint32
	InstanceDataOffset uint64
	TextureSlot        int32
	Transparency       float32
}
