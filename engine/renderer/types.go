package renderer

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	MAX_FRAMES_IN_FLIGHT = 2
	TEXTURE_ARRAY_SIZE   = 2048

	InstanceDataSize    = 80
	LookupEntrySize     = 4
	DrawCommandSize     = 20
	VertexSize          = 44
	IndexSize           = 4
	EngineUBOStaticSize = 144
)

// Descriptor bindings of the bindless pipeline.
const (
	BindingEngineUBO    uint32 = 0
	BindingInstanceData uint32 = 1
	BindingLookup       uint32 = 2
	BindingTextures     uint32 = 3
)

// InstanceData is one std430 record of the instance data table.
type InstanceData struct {
	Model         mgl32.Mat4
	Transparency  float32
	AlbedoTexture int32
	DrawCmdIndex  uint32
	_             uint32
}

// DrawIndexedIndirectCommand mirrors VkDrawIndexedIndirectCommand.
type DrawIndexedIndirectCommand struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

type Vertex struct {
	Pos      mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
	Normal   mgl32.Vec3
}

// EngineUBOStatic is bound at binding 0 of every pipeline, std140.
type EngineUBOStatic struct {
	View                  mgl32.Mat4
	Proj                  mgl32.Mat4
	TimeSinceStartSeconds float32
	_                     [3]float32
}

func byteView[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

// SliceBytes reinterprets a slice of plain structs as raw bytes without copying.
func SliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

func (d *InstanceData) Bytes() []byte               { return byteView(d) }
func (c *DrawIndexedIndirectCommand) Bytes() []byte { return byteView(c) }
func (u *EngineUBOStatic) Bytes() []byte            { return byteView(u) }

// ReadInstanceData decodes the record stored at the start of b.
func ReadInstanceData(b []byte) InstanceData {
	var d InstanceData
	copy(d.Bytes(), b[:InstanceDataSize])
	return d
}

func ReadDrawCommand(b []byte) DrawIndexedIndirectCommand {
	var c DrawIndexedIndirectCommand
	copy(c.Bytes(), b[:DrawCommandSize])
	return c
}

func ReadUint32(b []byte) uint32 {
	var v uint32
	copy(byteView(&v), b[:LookupEntrySize])
	return v
}

func PutUint32(b []byte, v uint32) {
	copy(b[:LookupEntrySize], byteView(&v))
}
