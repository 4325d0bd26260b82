package headless

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/renderer"
)

type Op string

const (
	OpBindPipeline        Op = "bind_pipeline"
	OpBindDescriptorSet   Op = "bind_descriptor_set"
	OpBindVertexBuffer    Op = "bind_vertex_buffer"
	OpBindIndexBuffer     Op = "bind_index_buffer"
	OpDrawIndexedIndirect Op = "draw_indexed_indirect"
)

type Command struct {
	Op        Op
	Buffer    renderer.Buffer
	Set       renderer.DescriptorSet
	Offset    uint64
	DrawCount uint32
	Stride    uint32
}

type Recorder struct {
	Commands []Command
}

func (r *Recorder) BindPipeline(p renderer.Pipeline) {
	r.Commands = append(r.Commands, Command{Op: OpBindPipeline})
}

func (r *Recorder) BindDescriptorSet(p renderer.Pipeline, set renderer.DescriptorSet) {
	r.Commands = append(r.Commands, Command{Op: OpBindDescriptorSet, Set: set})
}

func (r *Recorder) BindVertexBuffer(buf renderer.Buffer, offset uint64) {
	r.Commands = append(r.Commands, Command{Op: OpBindVertexBuffer, Buffer: buf, Offset: offset})
}

func (r *Recorder) BindIndexBuffer(buf renderer.Buffer, offset uint64) {
	r.Commands = append(r.Commands, Command{Op: OpBindIndexBuffer, Buffer: buf, Offset: offset})
}

func (r *Recorder) DrawIndexedIndirect(buf renderer.Buffer, offset uint64, drawCount, stride uint32) {
	r.Commands = append(r.Commands, Command{Op: OpDrawIndexedIndirect, Buffer: buf, Offset: offset, DrawCount: drawCount, Stride: stride})
}

// Draws returns the indirect draw commands recorded so far.
func (r *Recorder) Draws() []Command {
	var out []Command
	for _, c := range r.Commands {
		if c.Op == OpDrawIndexedIndirect {
			out = append(out, c)
		}
	}
	return out
}

type frameSlot struct {
	recorder  *Recorder
	recording bool

	// fence state, created signaled
	signaled bool
}

// Backend implements renderer.FrameBackend. Calls records every step in
// order so tests can check the tick protocol.
type Backend struct {
	device *Device
	frames []*frameSlot
	images uint32
	next   uint32
	width  uint32
	height uint32

	AcquireScript []renderer.SwapchainStatus
	PresentScript []renderer.SwapchainStatus

	Calls     []string
	Recreated int
	Submitted []uint32
	Presented []uint32
	ShutDown  bool
}

func New(framesInFlight, images, width, height uint32) *Backend {
	b := &Backend{
		device: NewDevice(),
		images: images,
		width:  width,
		height: height,
	}
	for i := uint32(0); i < framesInFlight; i++ {
		b.frames = append(b.frames, &frameSlot{recorder: &Recorder{}, signaled: true})
	}
	return b
}

func (b *Backend) FramesInFlight() uint32 { return uint32(len(b.frames)) }

func (b *Backend) Device() renderer.Device { return b.device }

// HeadlessDevice returns the concrete device for inspection.
func (b *Backend) HeadlessDevice() *Device { return b.device }

func (b *Backend) Extent() (uint32, uint32) { return b.width, b.height }

// Recorder returns the command list last recorded for the frame slot.
func (b *Backend) Recorder(frame uint32) *Recorder { return b.frames[frame].recorder }

func (b *Backend) call(format string, args ...interface{}) {
	b.Calls = append(b.Calls, fmt.Sprintf(format, args...))
}

func (b *Backend) WaitForFrame(frame uint32) error {
	b.call("wait %d", frame)
	if !b.frames[frame].signaled {
		return fmt.Errorf("headless: fence of frame %d would never signal", frame)
	}
	return nil
}

func (b *Backend) AcquireNextImage(frame uint32) (uint32, renderer.SwapchainStatus, error) {
	b.call("acquire %d", frame)
	status := renderer.SwapchainOK
	if len(b.AcquireScript) > 0 {
		status, b.AcquireScript = b.AcquireScript[0], b.AcquireScript[1:]
	}
	image := b.next
	b.next = (b.next + 1) % b.images
	return image, status, nil
}

func (b *Backend) ResetFrame(frame uint32) error {
	b.call("reset %d", frame)
	b.frames[frame].signaled = false
	return nil
}

func (b *Backend) BeginFrame(frame, imageIndex uint32) (renderer.CommandRecorder, error) {
	b.call("begin %d", frame)
	slot := b.frames[frame]
	slot.recorder = &Recorder{}
	slot.recording = true
	return slot.recorder, nil
}

func (b *Backend) EndFrame(frame uint32) error {
	b.call("end %d", frame)
	if !b.frames[frame].recording {
		return fmt.Errorf("headless: frame %d is not recording", frame)
	}
	b.frames[frame].recording = false
	return nil
}

func (b *Backend) Submit(frame uint32) error {
	b.call("submit %d", frame)
	b.Submitted = append(b.Submitted, frame)
	// no GPU, the work completes immediately
	b.frames[frame].signaled = true
	return nil
}

func (b *Backend) Present(frame, imageIndex uint32) (renderer.SwapchainStatus, error) {
	b.call("present %d", frame)
	b.Presented = append(b.Presented, imageIndex)
	status := renderer.SwapchainOK
	if len(b.PresentScript) > 0 {
		status, b.PresentScript = b.PresentScript[0], b.PresentScript[1:]
	}
	return status, nil
}

func (b *Backend) RecreateSwapchain() error {
	b.call("recreate")
	b.Recreated++
	b.next = 0
	return nil
}

func (b *Backend) Shutdown() error {
	b.ShutDown = true
	return nil
}
