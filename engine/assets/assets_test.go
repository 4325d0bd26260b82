package assets

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima/engine/renderer/headless"
)

const triangleOBJ = "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"

func writePNG(t *testing.T, path string, size int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, size, size))))
}

func TestDetermineAssetType(t *testing.T) {
	cases := map[string]AssetType{
		"textures/spot.png":     AssetTypeTexture,
		"textures/spot.webp":    AssetTypeTexture,
		"shaders/bindless.spv":  AssetTypeShader,
		"models/spot.obj":       AssetTypeModel,
		"models/spot.mtl":       AssetTypeNone,
		"shaders/bindless.vert": AssetTypeNone,
	}
	for path, expected := range cases {
		assert.Equal(t, expected, determineAssetType(path), path)
	}
}

func TestInitializeIndexesTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "models"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "models", "tri.obj"), []byte(triangleOBJ), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o644))

	am := NewAssetManager()
	require.NoError(t, am.Initialize(root, false))
	defer am.Shutdown()

	info, ok := am.Find(filepath.Join(root, "models", "tri.obj"))
	require.True(t, ok)
	assert.Equal(t, AssetTypeModel, info.Type)
	_, ok = am.Find(filepath.Join(root, "README"))
	assert.False(t, ok)

	assert.Error(t, NewAssetManager().Initialize(filepath.Join(root, "missing"), false))
}

func TestLoadAssetKeepsID(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "tri.obj")
	require.NoError(t, os.WriteFile(path, []byte(triangleOBJ), 0o644))

	am := NewAssetManager()
	vertices, indices, err := am.LoadModel(path)
	require.NoError(t, err)
	assert.Len(t, vertices, 3)
	assert.Equal(t, []uint32{0, 1, 2}, indices)

	first, ok := am.Find(path)
	require.True(t, ok)
	_, _, err = am.LoadModel(path)
	require.NoError(t, err)
	second, _ := am.Find(path)
	assert.Equal(t, first.ID, second.ID)

	_, err = am.LoadShader(path)
	assert.Error(t, err, "extension decides the loader")
	_, err = am.LoadAsset(filepath.Join(root, "notes.txt"))
	assert.Error(t, err)
}

func TestWatcherReportsWrites(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "albedo.png")
	writePNG(t, path, 1)

	am := NewAssetManager()
	require.NoError(t, am.Initialize(root, true))
	defer am.Shutdown()

	writePNG(t, path, 2)

	select {
	case info := <-am.Changes():
		assert.Equal(t, filepath.Clean(path), info.Path)
		assert.Equal(t, AssetTypeTexture, info.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	am := NewAssetManager()
	require.NoError(t, am.Initialize(t.TempDir(), true))
	am.Shutdown()
	am.Shutdown()

	NewAssetManager().Shutdown()
}

func TestTextureManagerCachesAndReloads(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "albedo.png")
	writePNG(t, path, 4)

	device := headless.NewDevice()
	tm := NewTextureManager(device, NewAssetManager())

	first, err := tm.GetDescriptorImageInfo(path)
	require.NoError(t, err)
	again, err := tm.GetDescriptorImageInfo(path)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Len(t, device.Textures, 1)
	assert.Equal(t, uint32(4), first.Width())

	writePNG(t, path, 8)
	reloaded, err := tm.Reload(path)
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	assert.Equal(t, uint32(8), reloaded.Width())
	assert.False(t, first.(*headless.Texture).Destroyed, "old texture outlives frames in flight")

	_, err = tm.GetDescriptorImageInfo(filepath.Join(root, "missing.png"))
	assert.Error(t, err)

	other := filepath.Join(root, "decoded.png")
	put, err := tm.Put(other, image.NewRGBA(image.Rect(0, 0, 3, 3)))
	require.NoError(t, err)
	cached, err := tm.GetDescriptorImageInfo(other)
	require.NoError(t, err)
	assert.Same(t, put, cached, "no file is read for a put texture")

	tm.Shutdown()
	assert.True(t, first.(*headless.Texture).Destroyed)
	assert.True(t, reloaded.(*headless.Texture).Destroyed)
	assert.False(t, tm.Loaded(path))
}
