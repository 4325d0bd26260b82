package bindless

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// FrameTables are the host visible tables read by one frame in flight.
// They are written only while draining that frame's update queue.
type FrameTables struct {
	InstanceData renderer.Buffer
	Lookup       renderer.Buffer
	DrawCommands renderer.Buffer
}

func newFrameTables(device renderer.Device, frame uint32, cfg Config) (*FrameTables, error) {
	t := &FrameTables{}
	var err error
	t.InstanceData, err = device.CreateBuffer(fmt.Sprintf("instance_data_%d", frame), uint64(cfg.MaxInstances)*renderer.InstanceDataSize, renderer.BufferUsageStorage, renderer.MemoryHostVisible)
	if err != nil {
		return nil, err
	}
	t.Lookup, err = device.CreateBuffer(fmt.Sprintf("instance_lookup_%d", frame), uint64(cfg.MaxLookupEntries)*renderer.LookupEntrySize, renderer.BufferUsageStorage, renderer.MemoryHostVisible)
	if err != nil {
		t.Destroy()
		return nil, err
	}
	t.DrawCommands, err = device.CreateBuffer(fmt.Sprintf("draw_commands_%d", frame), uint64(cfg.MaxDrawCommands)*renderer.DrawCommandSize, renderer.BufferUsageIndirect, renderer.MemoryHostVisible)
	if err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

func (t *FrameTables) WriteInstance(offset uint64, data *renderer.InstanceData) {
	copy(t.InstanceData.Mapped()[offset:offset+renderer.InstanceDataSize], data.Bytes())
}

func (t *FrameTables) Instance(offset uint64) renderer.InstanceData {
	return renderer.ReadInstanceData(t.InstanceData.Mapped()[offset:])
}

func (t *FrameTables) WriteLookup(slot uint32, index uint32) {
	off := uint64(slot) * renderer.LookupEntrySize
	renderer.PutUint32(t.Lookup.Mapped()[off:], index)
}

func (t *FrameTables) LookupEntry(slot uint32) uint32 {
	return renderer.ReadUint32(t.Lookup.Mapped()[uint64(slot)*renderer.LookupEntrySize:])
}

func (t *FrameTables) WriteDrawCommand(offset uint64, cmd *renderer.DrawIndexedIndirectCommand) {
	copy(t.DrawCommands.Mapped()[offset:offset+renderer.DrawCommandSize], cmd.Bytes())
}

func (t *FrameTables) DrawCommand(offset uint64) renderer.DrawIndexedIndirectCommand {
	return renderer.ReadDrawCommand(t.DrawCommands.Mapped()[offset:])
}

func (t *FrameTables) Destroy() {
	for _, b := range []renderer.Buffer{t.DrawCommands, t.Lookup, t.InstanceData} {
		if b != nil {
			b.Destroy()
		}
	}
}

// instanceAllocator hands out byte offsets into the instance data table.
// Released offsets are reused before the table grows.
type instanceAllocator struct {
	next     uint64
	capacity uint64
	free     []uint64
}

func (a *instanceAllocator) Alloc() (uint64, error) {
	if n := len(a.free); n > 0 {
		off := a.free[n-1]
		a.free = a.free[:n-1]
		return off, nil
	}
	if a.next+renderer.InstanceDataSize > a.capacity {
		return 0, core.ErrInstanceTableFull
	}
	off := a.next
	a.next += renderer.InstanceDataSize
	return off, nil
}

func (a *instanceAllocator) Full() bool {
	return len(a.free) == 0 && a.next+renderer.InstanceDataSize > a.capacity
}

func (a *instanceAllocator) Release(offset uint64) {
	a.free = append(a.free, offset)
}

func (a *instanceAllocator) Live() int {
	return int(a.next/renderer.InstanceDataSize) - len(a.free)
}
