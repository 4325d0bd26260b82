package assets

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// TextureManager uploads images on first use and caches the GPU texture by path.
type TextureManager struct {
	device  renderer.Device
	images  ImageSource
	loaded  map[string]renderer.Texture
	retired []renderer.Texture
}

type ImageSource interface {
	LoadImage(path string) (*image.RGBA, error)
}

func NewTextureManager(device renderer.Device, images ImageSource) *TextureManager {
	return &TextureManager{
		device: device,
		images: images,
		loaded: make(map[string]renderer.Texture),
	}
}

func (tm *TextureManager) GetDescriptorImageInfo(path string) (renderer.Texture, error) {
	path = filepath.Clean(path)
	if tex, ok := tm.loaded[path]; ok {
		return tex, nil
	}
	tex, err := tm.load(path)
	if err != nil {
		return nil, err
	}
	tm.loaded[path] = tex
	return tex, nil
}

// Reload decodes path again and replaces the cached texture. The previous
// texture may still be referenced by frames in flight, so it is only
// destroyed on Shutdown.
func (tm *TextureManager) Reload(path string) (renderer.Texture, error) {
	path = filepath.Clean(path)
	tex, err := tm.load(path)
	if err != nil {
		return nil, err
	}
	if old, ok := tm.loaded[path]; ok {
		tm.retired = append(tm.retired, old)
	}
	tm.loaded[path] = tex
	core.LogInfo("texture %s reloaded", path)
	return tex, nil
}

// Put uploads an image decoded elsewhere and caches it under path. An
// already cached path keeps its texture.
func (tm *TextureManager) Put(path string, img *image.RGBA) (renderer.Texture, error) {
	path = filepath.Clean(path)
	if tex, ok := tm.loaded[path]; ok {
		return tex, nil
	}
	tex, err := tm.device.CreateTexture(path, img)
	if err != nil {
		return nil, err
	}
	tm.loaded[path] = tex
	return tex, nil
}

func (tm *TextureManager) Loaded(path string) bool {
	_, ok := tm.loaded[filepath.Clean(path)]
	return ok
}

func (tm *TextureManager) load(path string) (renderer.Texture, error) {
	img, err := tm.images.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load texture %s: %w", path, err)
	}
	return tm.device.CreateTexture(path, img)
}

func (tm *TextureManager) Shutdown() {
	for path, tex := range tm.loaded {
		tex.Destroy()
		delete(tm.loaded, path)
	}
	for _, tex := range tm.retired {
		tex.Destroy()
	}
	tm.retired = nil
}
