package bindless

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// MeshGeometry locates one mesh inside the shared vertex and index pools.
type MeshGeometry struct {
	VertexOffset int32
	VertexCount  uint32
	FirstIndex   uint32
	IndexCount   uint32
}

// GeometryStore appends every mesh into one device local vertex buffer and
// one index buffer. Meshes are never removed.
type GeometryStore struct {
	device        renderer.Device
	vertexBuffer  renderer.Buffer
	indexBuffer   renderer.Buffer
	vertexWritten uint64
	indexWritten  uint64
	meshes        map[string]*MeshGeometry
}

func NewGeometryStore(device renderer.Device, vertexBytes, indexBytes uint64) (*GeometryStore, error) {
	vb, err := device.CreateBuffer("bindless_vertices", vertexBytes, renderer.BufferUsageVertex|renderer.BufferUsageTransferDst, renderer.MemoryDeviceLocal)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex pool: %w", err)
	}
	ib, err := device.CreateBuffer("bindless_indices", indexBytes, renderer.BufferUsageIndex|renderer.BufferUsageTransferDst, renderer.MemoryDeviceLocal)
	if err != nil {
		vb.Destroy()
		return nil, fmt.Errorf("failed to create index pool: %w", err)
	}
	return &GeometryStore{
		device:       device,
		vertexBuffer: vb,
		indexBuffer:  ib,
		meshes:       make(map[string]*MeshGeometry),
	}, nil
}

func (g *GeometryStore) Get(path string) (*MeshGeometry, bool) {
	m, ok := g.meshes[path]
	return m, ok
}

// Add uploads the mesh behind what is already stored.
func (g *GeometryStore) Add(path string, vertices []renderer.Vertex, indices []uint32) (*MeshGeometry, error) {
	if m, ok := g.meshes[path]; ok {
		return m, nil
	}
	vertexBytes := uint64(len(vertices)) * renderer.VertexSize
	indexBytes := uint64(len(indices)) * renderer.IndexSize
	if g.vertexWritten+vertexBytes > g.vertexBuffer.Size() || g.indexWritten+indexBytes > g.indexBuffer.Size() {
		return nil, fmt.Errorf("mesh %s (%d vertices, %d indices): %w", path, len(vertices), len(indices), core.ErrGeometryPoolFull)
	}
	if err := g.device.UploadBuffer(g.vertexBuffer, g.vertexWritten, renderer.SliceBytes(vertices)); err != nil {
		return nil, err
	}
	if err := g.device.UploadBuffer(g.indexBuffer, g.indexWritten, renderer.SliceBytes(indices)); err != nil {
		return nil, err
	}
	m := &MeshGeometry{
		VertexOffset: int32(g.vertexWritten / renderer.VertexSize),
		VertexCount:  uint32(len(vertices)),
		FirstIndex:   uint32(g.indexWritten / renderer.IndexSize),
		IndexCount:   uint32(len(indices)),
	}
	g.vertexWritten += vertexBytes
	g.indexWritten += indexBytes
	g.meshes[path] = m
	core.LogDebug("mesh %s stored at vertex %d, index %d", path, m.VertexOffset, m.FirstIndex)
	return m, nil
}

func (g *GeometryStore) VertexBuffer() renderer.Buffer { return g.vertexBuffer }
func (g *GeometryStore) IndexBuffer() renderer.Buffer  { return g.indexBuffer }

func (g *GeometryStore) Destroy() {
	g.indexBuffer.Destroy()
	g.vertexBuffer.Destroy()
}
