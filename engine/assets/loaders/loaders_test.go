package loaders

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/anima/engine/renderer"
)

const quadOBJ = `# unit quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
`

func vertexAt(t *testing.T, mesh *Mesh, pos mgl32.Vec3) renderer.Vertex {
	t.Helper()
	for _, v := range mesh.Vertices {
		if v.Pos == pos {
			return v
		}
	}
	t.Fatalf("no vertex at %v", pos)
	return renderer.Vertex{}
}

func TestParseOBJQuad(t *testing.T) {
	mesh, err := ParseOBJ(strings.NewReader(quadOBJ))
	require.NoError(t, err)

	assert.Len(t, mesh.Vertices, 4)
	require.Len(t, mesh.Indices, 6)
	assert.ElementsMatch(t, []uint32{0, 1, 2, 3}, unique(mesh.Indices))

	for _, v := range mesh.Vertices {
		assert.Equal(t, mgl32.Vec3{1, 1, 1}, v.Color)
		assert.InDelta(t, 1, v.Normal.Z(), 1e-6)
	}
	assert.Equal(t, mgl32.Vec2{0, 1}, vertexAt(t, mesh, mgl32.Vec3{0, 0, 0}).TexCoord, "v is flipped")
	assert.Equal(t, mgl32.Vec2{1, 0}, vertexAt(t, mesh, mgl32.Vec3{1, 1, 0}).TexCoord)
}

func unique(indices []uint32) []uint32 {
	seen := make(map[uint32]bool)
	var out []uint32
	for _, i := range indices {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}

func TestParseOBJDeduplicatesByPositionAndTexcoord(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
v 0 0 1
vt 0 0
vt 1 1
f 1/1 2/1 3/1
f 1/1 3/1 4/1
f 1/2 2/1 4/1
`
	mesh, err := ParseOBJ(strings.NewReader(src))
	require.NoError(t, err)
	// position 1 appears with two different texcoords
	assert.Len(t, mesh.Vertices, 5)
	assert.Len(t, mesh.Indices, 9)
}

func TestParseOBJWithoutTexcoords(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
`
	mesh, err := ParseOBJ(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, mesh.Vertices, 3)
	assert.Len(t, mesh.Indices, 3)
	for _, v := range mesh.Vertices {
		assert.Equal(t, mgl32.Vec2{}, v.TexCoord)
		assert.InDelta(t, 1, v.Normal.Z(), 1e-6)
	}
}

func TestParseOBJErrors(t *testing.T) {
	_, err := ParseOBJ(strings.NewReader("v 0 0 0\nf 1 2 3\n"))
	assert.Error(t, err)

	_, err = ParseOBJ(strings.NewReader("v 0 0\n"))
	assert.Error(t, err)

	_, err = ParseOBJ(strings.NewReader("v 0 0 0\n"))
	assert.Error(t, err, "no faces")
}

func TestModelLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quad.obj")
	require.NoError(t, os.WriteFile(path, []byte(quadOBJ), 0o644))

	res, err := (&ModelLoader{}).Load(path)
	require.NoError(t, err)
	mesh, ok := res.Data.(*Mesh)
	require.True(t, ok)
	assert.Len(t, mesh.Indices, 6)
	assert.Equal(t, "quad.obj", res.Name)
}

func checker() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.Set(0, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.Set(1, 1, color.NRGBA{B: 255, A: 255})
	return img
}

func TestTextureLoaderDecodesFormats(t *testing.T) {
	dir := t.TempDir()

	pngPath := filepath.Join(dir, "checker.png")
	f, err := os.Create(pngPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, checker()))
	require.NoError(t, f.Close())

	bmpPath := filepath.Join(dir, "checker.bmp")
	f, err = os.Create(bmpPath)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, checker()))
	require.NoError(t, f.Close())

	for _, path := range []string{pngPath, bmpPath} {
		res, err := (&TextureLoader{}).Load(path)
		require.NoError(t, err, path)
		rgba, ok := res.Data.(*image.RGBA)
		require.True(t, ok)
		assert.Equal(t, image.Rect(0, 0, 2, 2), rgba.Bounds())
		assert.Equal(t, color.RGBA{R: 255, A: 255}, rgba.RGBAAt(0, 0), path)
		assert.Equal(t, uint64(16), res.DataSize)
	}

	_, err = (&TextureLoader{}).Load(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestToRGBAMovesOriginToZero(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.Set(2, 2, color.RGBA{G: 255, A: 255})
	sub := src.SubImage(image.Rect(2, 2, 4, 4))

	rgba := ToRGBA(sub)
	assert.Equal(t, image.Rect(0, 0, 2, 2), rgba.Bounds())
	assert.Equal(t, color.RGBA{G: 255, A: 255}, rgba.RGBAAt(0, 0))

	tight := image.NewRGBA(image.Rect(0, 0, 1, 1))
	assert.Same(t, tight, ToRGBA(tight))
}

func TestShaderLoader(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.spv")
	bad := filepath.Join(dir, "b.spv")
	require.NoError(t, os.WriteFile(good, []byte{0x03, 0x02, 0x23, 0x07}, 0o644))
	require.NoError(t, os.WriteFile(bad, []byte{1, 2, 3}, 0o644))

	res, err := (&ShaderLoader{}).Load(good)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), res.DataSize)

	_, err = (&ShaderLoader{}).Load(bad)
	assert.Error(t, err)
}
