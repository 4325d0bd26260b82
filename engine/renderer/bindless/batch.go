package bindless

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/ecs"
	"github.com/spaghettifunk/anima/engine/renderer"
)

// MeshBatch is a fixed size group of instances of one mesh drawn by a single
// indirect draw command. Batches are never resized or destroyed.
type MeshBatch struct {
	MeshPath      string
	MaxSize       uint32
	InstanceCount uint32
	DrawCmdOffset uint64
	// FirstInstance is the first reserved entry of the lookup array.
	FirstInstance uint32
	Geometry      *MeshGeometry

	// members[i] owns lookup entry FirstInstance+i
	members []ecs.Entity
	// instance data index of members[i]
	indices []uint32
}

func (b *MeshBatch) Full() bool {
	return b.InstanceCount >= b.MaxSize
}

func (b *MeshBatch) DrawCmdIndex() uint32 {
	return uint32(b.DrawCmdOffset / renderer.DrawCommandSize)
}

func (b *MeshBatch) DrawCommand() renderer.DrawIndexedIndirectCommand {
	return renderer.DrawIndexedIndirectCommand{
		IndexCount:    b.Geometry.IndexCount,
		InstanceCount: b.InstanceCount,
		FirstIndex:    b.Geometry.FirstIndex,
		VertexOffset:  b.Geometry.VertexOffset,
		FirstInstance: b.FirstInstance,
	}
}

// add appends an instance and returns its lookup slot.
func (b *MeshBatch) add(e ecs.Entity, dataIndex uint32) uint32 {
	local := b.InstanceCount
	b.members = append(b.members, e)
	b.indices = append(b.indices, dataIndex)
	b.InstanceCount++
	return b.FirstInstance + local
}

// remove swaps the last member into slot and returns the entity that moved,
// or NullEntity when slot was already the last one.
func (b *MeshBatch) remove(slot uint32) ecs.Entity {
	local := slot - b.FirstInstance
	last := b.InstanceCount - 1
	moved := ecs.NullEntity
	if local != last {
		b.members[local] = b.members[last]
		b.indices[local] = b.indices[last]
		moved = b.members[local]
	}
	b.members = b.members[:last]
	b.indices = b.indices[:last]
	b.InstanceCount--
	return moved
}

// lookupValue returns the mirror of lookup entry slot.
func (b *MeshBatch) lookupValue(slot uint32) (uint32, bool) {
	local := slot - b.FirstInstance
	if slot < b.FirstInstance || local >= b.InstanceCount {
		return 0, false
	}
	return b.indices[local], true
}

// batchAllocator reserves draw commands and lookup ranges for new batches.
type batchAllocator struct {
	maxLookup      uint32
	maxDraws       uint32
	nextLookup     uint32
	nextDrawOffset uint64
}

func (a *batchAllocator) reserve(meshPath string, size uint32, geometry *MeshGeometry) (*MeshBatch, error) {
	if a.nextDrawOffset+renderer.DrawCommandSize > uint64(a.maxDraws)*renderer.DrawCommandSize {
		return nil, fmt.Errorf("batch for %s: %w", meshPath, core.ErrDrawCommandsFull)
	}
	if uint64(a.nextLookup)+uint64(size) > uint64(a.maxLookup) {
		return nil, fmt.Errorf("batch of %d for %s: %w", size, meshPath, core.ErrLookupArrayFull)
	}
	b := &MeshBatch{
		MeshPath:      meshPath,
		MaxSize:       size,
		DrawCmdOffset: a.nextDrawOffset,
		FirstInstance: a.nextLookup,
		Geometry:      geometry,
	}
	a.nextDrawOffset += renderer.DrawCommandSize
	a.nextLookup += size
	return b, nil
}
