package renderer

import "image"

type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndirect
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

type MemoryKind uint8

const (
	// MemoryDeviceLocal buffers are only written through Device.UploadBuffer.
	MemoryDeviceLocal MemoryKind = iota
	// MemoryHostVisible buffers stay mapped and coherent for their lifetime.
	MemoryHostVisible
)

type Buffer interface {
	Size() uint64
	// Mapped returns the persistently mapped bytes of a host visible buffer
	// and nil for device local memory.
	Mapped() []byte
	Destroy()
}

type Texture interface {
	Width() uint32
	Height() uint32
	Destroy()
}

type PipelineConfig struct {
	Name             string
	VertexShader     []byte
	FragmentShader   []byte
	TextureArraySize uint32
	// one descriptor set is allocated per frame in flight
	DescriptorSets uint32
}

// Pipeline is the bindless graphics pipeline with its descriptor layout:
// 0 uniform buffer, 1 and 2 storage buffers, 3 sampler array.
type Pipeline interface {
	DescriptorSet(index uint32) DescriptorSet
	Destroy()
}

type DescriptorSet interface {
	WriteUniformBuffer(binding uint32, buf Buffer)
	WriteStorageBuffer(binding uint32, buf Buffer)
	// WriteTextures rewrites every element of the array binding.
	WriteTextures(binding uint32, textures []Texture)
}

type Device interface {
	CreateBuffer(name string, size uint64, usage BufferUsage, memory MemoryKind) (Buffer, error)
	// UploadBuffer copies data into dst at offset through a staging buffer
	// and waits for the transfer to finish.
	UploadBuffer(dst Buffer, offset uint64, data []byte) error
	CreateTexture(name string, img *image.RGBA) (Texture, error)
	CreatePipeline(config PipelineConfig) (Pipeline, error)
	WaitIdle() error
}

type CommandRecorder interface {
	BindPipeline(p Pipeline)
	BindDescriptorSet(p Pipeline, set DescriptorSet)
	BindVertexBuffer(buf Buffer, offset uint64)
	BindIndexBuffer(buf Buffer, offset uint64)
	DrawIndexedIndirect(buf Buffer, offset uint64, drawCount, stride uint32)
}

type SwapchainStatus uint8

const (
	SwapchainOK SwapchainStatus = iota
	SwapchainSuboptimal
	SwapchainOutOfDate
)

func (s SwapchainStatus) Stale() bool {
	return s != SwapchainOK
}

func (s SwapchainStatus) String() string {
	switch s {
	case SwapchainOK:
		return "ok"
	case SwapchainSuboptimal:
		return "suboptimal"
	case SwapchainOutOfDate:
		return "out of date"
	}
	return "unknown"
}

// FrameBackend exposes the per-frame steps the Frontend sequences each tick.
// Every frame slot owns a fence, two semaphores and a command buffer.
type FrameBackend interface {
	FramesInFlight() uint32
	Device() Device
	Extent() (width, height uint32)

	// WaitForFrame blocks until the fence of the slot is signaled.
	WaitForFrame(frame uint32) error
	AcquireNextImage(frame uint32) (imageIndex uint32, status SwapchainStatus, err error)
	ResetFrame(frame uint32) error
	// BeginFrame resets and begins the command buffer, begins the render
	// pass on the image framebuffer and sets viewport and scissor.
	BeginFrame(frame, imageIndex uint32) (CommandRecorder, error)
	EndFrame(frame uint32) error
	Submit(frame uint32) error
	Present(frame, imageIndex uint32) (SwapchainStatus, error)
	RecreateSwapchain() error

	Shutdown() error
}
