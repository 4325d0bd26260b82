// Package headless is an in-memory renderer backend. Host visible buffers
// are plain byte slices, commands are recorded into a list and swapchain
// results can be scripted. It drives the engine without a GPU.
package headless

import (
	"fmt"
	"image"

	"github.com/spaghettifunk/anima/engine/renderer"
)

type Buffer struct {
	Name      string
	Usage     renderer.BufferUsage
	Memory    renderer.MemoryKind
	Destroyed bool
	data      []byte
}

func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

func (b *Buffer) Mapped() []byte {
	if b.Memory != renderer.MemoryHostVisible {
		return nil
	}
	return b.data
}

// Data exposes the contents regardless of the memory kind.
func (b *Buffer) Data() []byte { return b.data }

func (b *Buffer) Destroy() { b.Destroyed = true }

type Texture struct {
	Name      string
	Image     *image.RGBA
	Destroyed bool
}

func (t *Texture) Width() uint32  { return uint32(t.Image.Bounds().Dx()) }
func (t *Texture) Height() uint32 { return uint32(t.Image.Bounds().Dy()) }
func (t *Texture) Destroy()       { t.Destroyed = true }

type DescriptorSet struct {
	Buffers       map[uint32]renderer.Buffer
	Textures      []renderer.Texture
	TextureWrites int
}

func (d *DescriptorSet) WriteUniformBuffer(binding uint32, buf renderer.Buffer) {
	d.Buffers[binding] = buf
}

func (d *DescriptorSet) WriteStorageBuffer(binding uint32, buf renderer.Buffer) {
	d.Buffers[binding] = buf
}

func (d *DescriptorSet) WriteTextures(binding uint32, textures []renderer.Texture) {
	d.Textures = append(d.Textures[:0], textures...)
	d.TextureWrites++
}

type Pipeline struct {
	Config    renderer.PipelineConfig
	Sets      []*DescriptorSet
	Destroyed bool
}

func (p *Pipeline) DescriptorSet(index uint32) renderer.DescriptorSet {
	return p.Sets[index]
}

func (p *Pipeline) Destroy() { p.Destroyed = true }

type Device struct {
	Buffers   []*Buffer
	Textures  []*Texture
	Pipelines []*Pipeline
	Uploads   int
	IdleWaits int

	// FailBuffers makes CreateBuffer fail once this many buffers exist.
	FailBuffers int
}

func NewDevice() *Device {
	return &Device{FailBuffers: -1}
}

func (d *Device) CreateBuffer(name string, size uint64, usage renderer.BufferUsage, memory renderer.MemoryKind) (renderer.Buffer, error) {
	if d.FailBuffers >= 0 && len(d.Buffers) >= d.FailBuffers {
		return nil, fmt.Errorf("headless: out of device memory creating %s", name)
	}
	b := &Buffer{Name: name, Usage: usage, Memory: memory, data: make([]byte, size)}
	d.Buffers = append(d.Buffers, b)
	return b, nil
}

func (d *Device) UploadBuffer(dst renderer.Buffer, offset uint64, data []byte) error {
	b, ok := dst.(*Buffer)
	if !ok {
		return fmt.Errorf("headless: foreign buffer %T", dst)
	}
	if offset+uint64(len(data)) > b.Size() {
		return fmt.Errorf("headless: upload of %d bytes at %d overflows %s", len(data), offset, b.Name)
	}
	copy(b.data[offset:], data)
	d.Uploads++
	return nil
}

func (d *Device) CreateTexture(name string, img *image.RGBA) (renderer.Texture, error) {
	t := &Texture{Name: name, Image: img}
	d.Textures = append(d.Textures, t)
	return t, nil
}

func (d *Device) CreatePipeline(config renderer.PipelineConfig) (renderer.Pipeline, error) {
	p := &Pipeline{Config: config}
	for i := uint32(0); i < config.DescriptorSets; i++ {
		p.Sets = append(p.Sets, &DescriptorSet{Buffers: map[uint32]renderer.Buffer{}})
	}
	d.Pipelines = append(d.Pipelines, p)
	return p, nil
}

func (d *Device) WaitIdle() error {
	d.IdleWaits++
	return nil
}
