package bindless

import (
	"fmt"
	"path/filepath"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// TextureProvider loads textures on first request and caches them by path.
type TextureProvider interface {
	GetDescriptorImageInfo(path string) (renderer.Texture, error)
	Reload(path string) (renderer.Texture, error)
}

// textureSlots maps texture paths to stable indices of the sampler array.
type textureSlots struct {
	capacity int
	textures []renderer.Texture
	byPath   map[string]int32
}

func newTextureSlots(capacity uint32) *textureSlots {
	return &textureSlots{
		capacity: int(capacity),
		byPath:   make(map[string]int32),
	}
}

// Lookup returns the slot bound to path. Paths are compared cleaned, the
// way the texture manager caches them.
func (s *textureSlots) Lookup(path string) (int32, bool) {
	slot, ok := s.byPath[filepath.Clean(path)]
	return slot, ok
}

// Fetch loads the texture for a path that has no slot yet. It fails when
// no slot is left, and takes none itself.
func (s *textureSlots) Fetch(path string, provider TextureProvider) (renderer.Texture, error) {
	if len(s.textures) >= s.capacity {
		return nil, fmt.Errorf("texture %s: %w", path, core.ErrTextureSlotsExhausted)
	}
	tex, err := provider.GetDescriptorImageInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load texture %s: %w", path, err)
	}
	return tex, nil
}

// Bind takes the next slot for path.
func (s *textureSlots) Bind(path string, tex renderer.Texture) int32 {
	path = filepath.Clean(path)
	slot := int32(len(s.textures))
	s.textures = append(s.textures, tex)
	s.byPath[path] = slot
	core.LogDebug("texture %s bound to slot %d", path, slot)
	return slot
}

func (s *textureSlots) Replace(slot int32, tex renderer.Texture) {
	s.textures[slot] = tex
}

func (s *textureSlots) Len() int {
	return len(s.textures)
}

// DescriptorArray returns a full sampler array. Unused elements repeat slot
// zero so every descriptor of the binding is valid.
func (s *textureSlots) DescriptorArray() []renderer.Texture {
	out := make([]renderer.Texture, s.capacity)
	copy(out, s.textures)
	for i := len(s.textures); i < s.capacity; i++ {
		out[i] = s.textures[0]
	}
	return out
}
