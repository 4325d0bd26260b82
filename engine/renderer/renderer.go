package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
)

// FrameContext is handed to every render callback while the frame's command
// buffer is recording inside the main render pass.
type FrameContext struct {
	Frame      uint32
	ImageIndex uint32
	DeltaTime  float64
	Cmd        CommandRecorder
}

type RenderFunc func(ctx *FrameContext) error

// Frontend owns the tick protocol: it sequences the backend frame steps,
// keeps the per-frame engine UBOs and reacts to stale swapchains.
type Frontend struct {
	backend      FrameBackend
	frames       uint32
	currentFrame uint32
	ubos         []Buffer
	resized      bool
	render       RenderFunc

	framesDrawn   uint64
	framesSkipped uint64
}

func NewFrontend(backend FrameBackend) (*Frontend, error) {
	frames := backend.FramesInFlight()
	if frames == 0 {
		return nil, fmt.Errorf("backend reports zero frames in flight")
	}
	f := &Frontend{
		backend: backend,
		frames:  frames,
		ubos:    make([]Buffer, frames),
	}
	for i := uint32(0); i < frames; i++ {
		ubo, err := backend.Device().CreateBuffer(fmt.Sprintf("engine_ubo_static_%d", i), EngineUBOStaticSize, BufferUsageUniform, MemoryHostVisible)
		if err != nil {
			core.LogError("failed to create engine UBO for frame %d: %s", i, err)
			f.destroyUBOs()
			return nil, err
		}
		f.ubos[i] = ubo
	}
	core.LogDebug("renderer frontend ready with %d frames in flight", frames)
	return f, nil
}

func (f *Frontend) SetRenderFunc(fn RenderFunc) {
	f.render = fn
}

// FrameUBOs returns the engine UBO of every frame slot, indexed by frame.
func (f *Frontend) FrameUBOs() []Buffer {
	return f.ubos
}

func (f *Frontend) FramesInFlight() uint32 {
	return f.frames
}

func (f *Frontend) CurrentFrame() uint32 {
	return f.currentFrame
}

func (f *Frontend) Backend() FrameBackend {
	return f.backend
}

// OnResized flags the swapchain for recreation after the next present.
func (f *Frontend) OnResized(width, height uint32) {
	core.LogDebug("framebuffer resized to %dx%d", width, height)
	f.resized = true
}

// Tick renders one frame. It returns false when the frame was skipped
// because the swapchain had to be recreated before anything was recorded.
func (f *Frontend) Tick(ubo EngineUBOStatic, deltaTime float64) (bool, error) {
	frame := f.currentFrame

	if err := f.backend.WaitForFrame(frame); err != nil {
		return false, err
	}

	imageIndex, status, err := f.backend.AcquireNextImage(frame)
	if err != nil {
		return false, err
	}
	if status.Stale() {
		core.LogDebug("swapchain %s on acquire, recreating", status)
		f.framesSkipped++
		return false, f.backend.RecreateSwapchain()
	}

	if err := f.backend.ResetFrame(frame); err != nil {
		return false, err
	}

	copy(f.ubos[frame].Mapped(), ubo.Bytes())

	cmd, err := f.backend.BeginFrame(frame, imageIndex)
	if err != nil {
		return false, err
	}
	// A failed render still submits what was recorded so the fence reset
	// above signals again and the acquired image is handed back.
	var renderErr error
	if f.render != nil {
		ctx := &FrameContext{
			Frame:      frame,
			ImageIndex: imageIndex,
			DeltaTime:  deltaTime,
			Cmd:        cmd,
		}
		renderErr = f.render(ctx)
	}
	if err := f.backend.EndFrame(frame); err != nil {
		return false, err
	}

	if err := f.backend.Submit(frame); err != nil {
		return false, err
	}

	status, err = f.backend.Present(frame, imageIndex)
	if err != nil {
		return false, err
	}
	if status.Stale() || f.resized {
		f.resized = false
		if err := f.backend.RecreateSwapchain(); err != nil {
			return false, err
		}
	}

	f.currentFrame = (f.currentFrame + 1) % f.frames
	if renderErr != nil {
		return false, renderErr
	}
	f.framesDrawn++
	return true, nil
}

func (f *Frontend) Stats() (drawn, skipped uint64) {
	return f.framesDrawn, f.framesSkipped
}

func (f *Frontend) Shutdown() error {
	if err := f.backend.Device().WaitIdle(); err != nil {
		return err
	}
	f.destroyUBOs()
	return nil
}

func (f *Frontend) destroyUBOs() {
	for i := len(f.ubos) - 1; i >= 0; i-- {
		if f.ubos[i] != nil {
			f.ubos[i].Destroy()
			f.ubos[i] = nil
		}
	}
}
