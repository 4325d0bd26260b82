package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/udhos/gwob"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// Mesh is an indexed triangle list ready for the geometry pools.
type Mesh struct {
	Vertices []renderer.Vertex
	Indices  []uint32
}

type ModelLoader struct{}

func (ml *ModelLoader) Load(path string) (*Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mesh, err := ParseOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		DataSize: uint64(len(mesh.Vertices)*renderer.VertexSize + len(mesh.Indices)*renderer.IndexSize),
		Data:     mesh,
	}, nil
}

type objCorner struct {
	position mgl32.Vec3
	texcoord mgl32.Vec2
}

// ParseOBJ reads a Wavefront OBJ stream with gwob, which triangulates
// polygons as fans. Corners sharing position and texture coordinate become
// one vertex and normals are the normalized sum of the adjacent face
// normals. Colors are white and V is flipped for Vulkan's top-left image
// origin.
func ParseOBJ(r io.Reader) (*Mesh, error) {
	options := &gwob.ObjParserOptions{
		Logger: func(msg string) {
			core.LogDebug("obj: %s", strings.TrimSpace(msg))
		},
	}
	obj, err := gwob.NewObjFromReader("mesh", bufio.NewReader(r), options)
	if err != nil {
		return nil, err
	}
	if len(obj.Indices) == 0 || obj.StrideSize == 0 {
		return nil, fmt.Errorf("no faces")
	}

	// gwob strides and offsets are in bytes
	stride := obj.StrideSize / 4
	positionOffset := obj.StrideOffsetPosition / 4
	texcoordOffset := obj.StrideOffsetTexture / 4

	mesh := &Mesh{Indices: make([]uint32, 0, len(obj.Indices))}
	unique := make(map[objCorner]uint32)
	for _, element := range obj.Indices {
		base := element * stride
		if base < 0 || base+stride > len(obj.Coord) {
			return nil, fmt.Errorf("index %d out of range", element)
		}
		p := obj.Coord[base+positionOffset:]
		corner := objCorner{position: mgl32.Vec3{p[0], p[1], p[2]}}
		if obj.TextCoordFound {
			uv := obj.Coord[base+texcoordOffset:]
			corner.texcoord = mgl32.Vec2{uv[0], 1 - uv[1]}
		}

		index, ok := unique[corner]
		if !ok {
			index = uint32(len(mesh.Vertices))
			unique[corner] = index
			mesh.Vertices = append(mesh.Vertices, renderer.Vertex{
				Pos:      corner.position,
				Color:    mgl32.Vec3{1, 1, 1},
				TexCoord: corner.texcoord,
			})
		}
		mesh.Indices = append(mesh.Indices, index)
	}
	if len(mesh.Indices)%3 != 0 {
		return nil, fmt.Errorf("%d indices do not form triangles", len(mesh.Indices))
	}

	computeNormals(mesh)
	return mesh, nil
}

func computeNormals(mesh *Mesh) {
	for i := 0; i+2 < len(mesh.Indices); i += 3 {
		a, b, c := mesh.Indices[i], mesh.Indices[i+1], mesh.Indices[i+2]
		p0, p1, p2 := mesh.Vertices[a].Pos, mesh.Vertices[b].Pos, mesh.Vertices[c].Pos
		n := p1.Sub(p0).Cross(p2.Sub(p0))
		mesh.Vertices[a].Normal = mesh.Vertices[a].Normal.Add(n)
		mesh.Vertices[b].Normal = mesh.Vertices[b].Normal.Add(n)
		mesh.Vertices[c].Normal = mesh.Vertices[c].Normal.Add(n)
	}
	for i := range mesh.Vertices {
		if mesh.Vertices[i].Normal.Len() > 0 {
			mesh.Vertices[i].Normal = mesh.Vertices[i].Normal.Normalize()
		}
	}
}
