// Package bindless draws every mesh instance of the scene with one pipeline,
// one descriptor set per frame and one indirect draw per mesh batch.
//
// Instances live in a per-frame instance data table. A per-frame lookup
// array maps gl_InstanceIndex (offset by the batch's firstInstance) to the
// instance data index, so a batch can grow without moving any record.
// Every write a frame must see is queued on that frame and applied when
// the frame renders next, after its fence has been waited on.
package bindless

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/ecs"
	"github.com/spaghettifunk/anima/engine/renderer"
)

type MeshLoader interface {
	LoadModel(path string) ([]renderer.Vertex, []uint32, error)
}

type Config struct {
	TextureArraySize  uint32
	MaxInstances      uint32
	MaxLookupEntries  uint32
	MaxDrawCommands   uint32
	VertexPoolBytes   uint64
	IndexPoolBytes    uint64
	InitialBatchSize  uint32
	BatchGrowthFactor uint32
}

func ConfigFromEngine(rc core.RendererConfig) Config {
	return Config{
		TextureArraySize:  rc.TextureArraySize,
		MaxInstances:      rc.MaxInstances,
		MaxLookupEntries:  rc.MaxLookupEntries,
		MaxDrawCommands:   rc.MaxDrawCommands,
		VertexPoolBytes:   rc.VertexPoolBytes,
		IndexPoolBytes:    rc.IndexPoolBytes,
		InitialBatchSize:  rc.InitialBatchSize,
		BatchGrowthFactor: rc.BatchGrowthFactor,
	}
}

type Stats struct {
	Batches   int
	Instances int
	Textures  int
	Pending   []int
}

type System struct {
	device   renderer.Device
	registry *ecs.Registry
	meshes   MeshLoader
	textures TextureProvider
	cfg      Config
	frames   uint32

	geometry *GeometryStore
	tables   []*FrameTables
	pipeline renderer.Pipeline
	sets     []renderer.DescriptorSet
	queues   []*frameQueue

	batches     []*MeshBatch
	meshBatches map[string][]int
	alloc       batchAllocator
	instances   instanceAllocator
	slots       *textureSlots

	initialized bool
}

func New(device renderer.Device, frames uint32, registry *ecs.Registry, meshes MeshLoader, textures TextureProvider, cfg Config) (*System, error) {
	if frames == 0 {
		return nil, errors.New("bindless system needs at least one frame in flight")
	}
	if cfg.InitialBatchSize == 0 || cfg.BatchGrowthFactor == 0 || cfg.TextureArraySize == 0 {
		return nil, fmt.Errorf("invalid bindless config %+v", cfg)
	}
	s := &System{
		device:      device,
		registry:    registry,
		meshes:      meshes,
		textures:    textures,
		cfg:         cfg,
		frames:      frames,
		meshBatches: make(map[string][]int),
		alloc: batchAllocator{
			maxLookup: cfg.MaxLookupEntries,
			maxDraws:  cfg.MaxDrawCommands,
		},
		instances: instanceAllocator{capacity: uint64(cfg.MaxInstances) * renderer.InstanceDataSize},
		slots:     newTextureSlots(cfg.TextureArraySize),
	}
	for i := uint32(0); i < frames; i++ {
		s.queues = append(s.queues, newFrameQueue())
	}
	return s, nil
}

func (s *System) Name() string {
	return "bindless"
}

// Initialize creates the geometry pools, the per-frame tables, the pipeline
// and the per-frame descriptor sets. frameUBOs holds the engine UBO of each
// frame slot.
func (s *System) Initialize(frameUBOs []renderer.Buffer, vertexShader, fragmentShader []byte) error {
	if uint32(len(frameUBOs)) != s.frames {
		return fmt.Errorf("got %d engine UBOs for %d frames in flight", len(frameUBOs), s.frames)
	}
	var err error
	s.geometry, err = NewGeometryStore(s.device, s.cfg.VertexPoolBytes, s.cfg.IndexPoolBytes)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	for i := uint32(0); i < s.frames; i++ {
		t, err := newFrameTables(s.device, i, s.cfg)
		if err != nil {
			core.LogError("failed to create tables for frame %d: %s", i, err)
			s.release()
			return err
		}
		s.tables = append(s.tables, t)
	}
	s.pipeline, err = s.device.CreatePipeline(renderer.PipelineConfig{
		Name:             "bindless",
		VertexShader:     vertexShader,
		FragmentShader:   fragmentShader,
		TextureArraySize: s.cfg.TextureArraySize,
		DescriptorSets:   s.frames,
	})
	if err != nil {
		core.LogError("failed to create bindless pipeline: %s", err)
		s.release()
		return err
	}
	for i := uint32(0); i < s.frames; i++ {
		set := s.pipeline.DescriptorSet(i)
		set.WriteUniformBuffer(renderer.BindingEngineUBO, frameUBOs[i])
		set.WriteStorageBuffer(renderer.BindingInstanceData, s.tables[i].InstanceData)
		set.WriteStorageBuffer(renderer.BindingLookup, s.tables[i].Lookup)
		s.sets = append(s.sets, set)
	}
	s.initialized = true
	core.LogInfo("bindless system initialized: %d frames, %d texture slots, %d instances", s.frames, s.cfg.TextureArraySize, s.cfg.MaxInstances)
	return nil
}

// CreateInstance spawns an entity with an identity transform and draws
// meshPath on it with texturePath as albedo.
func (s *System) CreateInstance(meshPath, texturePath string) (ecs.Entity, error) {
	if !s.initialized {
		return ecs.NullEntity, core.ErrNotInitialized
	}
	e := s.registry.CreateEntity(meshPath)
	if err := s.registry.AddTransform(e, ecs.IdentityTransform()); err != nil {
		return ecs.NullEntity, err
	}
	if err := s.AttachInstance(e, meshPath, texturePath); err != nil {
		_ = s.registry.DestroyEntity(e)
		return ecs.NullEntity, err
	}
	return e, nil
}

// AttachInstance makes an existing entity drawable. The model matrix comes
// from its Transform, identity when it has none.
func (s *System) AttachInstance(e ecs.Entity, meshPath, texturePath string) error {
	if !s.initialized {
		return core.ErrNotInitialized
	}
	if !s.registry.Valid(e) {
		return fmt.Errorf("attach %s: %w", e, core.ErrStaleEntity)
	}
	if s.registry.Has(e, ecs.ComponentBindlessInstance) {
		return fmt.Errorf("%s already has a bindless instance", e)
	}
	if s.instances.Full() {
		return fmt.Errorf("attach %s: %w", e, core.ErrInstanceTableFull)
	}

	// The texture slot is taken only once the mesh has a batch, so a failed
	// mesh load leaves the sampler array untouched.
	textureSlot, bound := s.slots.Lookup(texturePath)
	var texture renderer.Texture
	if !bound {
		var err error
		if texture, err = s.slots.Fetch(texturePath, s.textures); err != nil {
			return err
		}
	}

	batchIndex, err := s.batchFor(meshPath)
	if err != nil {
		return err
	}
	batch := s.batches[batchIndex]

	if !bound {
		textureSlot = s.slots.Bind(texturePath, texture)
		s.pushAll(update{kind: updateTextures})
	}

	offset, err := s.instances.Alloc()
	if err != nil {
		return err
	}
	slot := batch.add(e, uint32(offset/renderer.InstanceDataSize))

	if err := s.registry.AddBindlessInstance(e, ecs.BindlessInstance{
		MeshPath:           meshPath,
		TexturePath:        texturePath,
		Batch:              batchIndex,
		LookupSlot:         slot,
		InstanceDataOffset: offset,
		TextureSlot:        textureSlot,
	}); err != nil {
		return err
	}

	s.pushAll(update{kind: updateInstance, entity: e})
	s.pushAll(update{kind: updateLookup, batch: batchIndex, slot: slot})
	s.pushAll(update{kind: updateDrawCommand, batch: batchIndex})
	return nil
}

// batchFor returns a batch of meshPath with spare room, creating one (and
// uploading the mesh on first use) when every batch is full.
func (s *System) batchFor(meshPath string) (int, error) {
	existing := s.meshBatches[meshPath]
	for _, i := range existing {
		if !s.batches[i].Full() {
			return i, nil
		}
	}

	geometry, ok := s.geometry.Get(meshPath)
	if !ok {
		vertices, indices, err := s.meshes.LoadModel(meshPath)
		if err != nil {
			return 0, fmt.Errorf("failed to load mesh %s: %w", meshPath, err)
		}
		geometry, err = s.geometry.Add(meshPath, vertices, indices)
		if err != nil {
			return 0, err
		}
	}

	// the first batch of a mesh holds InitialBatchSize instances, every
	// later one BatchGrowthFactor times the previous
	size := s.cfg.InitialBatchSize
	if n := len(existing); n > 0 {
		size = s.cfg.BatchGrowthFactor * s.batches[existing[n-1]].MaxSize
	}
	batch, err := s.alloc.reserve(meshPath, size, geometry)
	if err != nil {
		return 0, err
	}
	index := len(s.batches)
	s.batches = append(s.batches, batch)
	s.meshBatches[meshPath] = append(existing, index)
	core.LogDebug("new batch %d for %s: %d instances from lookup entry %d", index, meshPath, size, batch.FirstInstance)

	s.pushAll(update{kind: updateDrawCommand, batch: index})
	return index, nil
}

// DestroyInstance stops drawing the entity and destroys it. The last member
// of its batch takes over its lookup entry and its record is reused by the
// next instance created.
func (s *System) DestroyInstance(e ecs.Entity) error {
	bi, ok := s.registry.BindlessInstance(e)
	if !ok {
		return fmt.Errorf("destroy %s: %w", e, core.ErrInstanceNotFound)
	}
	batch := s.batches[bi.Batch]
	slot := bi.LookupSlot
	offset := bi.InstanceDataOffset

	if moved := batch.remove(slot); moved != ecs.NullEntity {
		mbi, _ := s.registry.BindlessInstance(moved)
		mbi.LookupSlot = slot
		s.pushAll(update{kind: updateLookup, batch: bi.Batch, slot: slot})
	}
	s.pushAll(update{kind: updateDrawCommand, batch: bi.Batch})
	s.instances.Release(offset)
	return s.registry.DestroyEntity(e)
}

// FlagDirty schedules the entity's record to be rewritten from its
// Transform on every frame in flight.
func (s *System) FlagDirty(e ecs.Entity) error {
	if !s.registry.Has(e, ecs.ComponentBindlessInstance) {
		return fmt.Errorf("flag %s: %w", e, core.ErrInstanceNotFound)
	}
	s.pushAll(update{kind: updateInstance, entity: e})
	return nil
}

// ReloadTexture swaps the texture bound to path for a freshly loaded copy.
// Paths that are not bound to a slot are ignored.
func (s *System) ReloadTexture(path string) error {
	slot, ok := s.slots.Lookup(path)
	if !ok {
		return nil
	}
	if err := s.device.WaitIdle(); err != nil {
		return err
	}
	tex, err := s.textures.Reload(path)
	if err != nil {
		return fmt.Errorf("failed to reload texture %s: %w", path, err)
	}
	s.slots.Replace(slot, tex)
	s.pushAll(update{kind: updateTextures})
	core.LogInfo("texture %s reloaded into slot %d", path, slot)
	return nil
}

// Render applies the pending writes of ctx.Frame and records one indirect
// draw per batch.
func (s *System) Render(ctx *renderer.FrameContext) error {
	if !s.initialized {
		return core.ErrNotInitialized
	}
	frame := ctx.Frame

	// descriptor writes must land before the set is bound
	s.drain(frame)
	if n := s.queues[frame].Len(); n != 0 {
		core.LogFatal("frame %d update queue not empty after drain: %d left", frame, n)
	}

	cmd := ctx.Cmd
	cmd.BindPipeline(s.pipeline)
	cmd.BindDescriptorSet(s.pipeline, s.sets[frame])
	cmd.BindVertexBuffer(s.geometry.VertexBuffer(), 0)
	cmd.BindIndexBuffer(s.geometry.IndexBuffer(), 0)

	drawCommands := s.tables[frame].DrawCommands
	for _, b := range s.batches {
		cmd.DrawIndexedIndirect(drawCommands, b.DrawCmdOffset, 1, renderer.DrawCommandSize)
	}
	return nil
}

func (s *System) drain(frame uint32) {
	q := s.queues[frame]
	t := s.tables[frame]
	for n := q.Len(); n > 0; n-- {
		u, ok := q.pop()
		if !ok {
			break
		}
		switch u.kind {
		case updateInstance:
			s.writeInstance(t, u.entity)
		case updateLookup:
			if v, ok := s.batches[u.batch].lookupValue(u.slot); ok {
				t.WriteLookup(u.slot, v)
			}
		case updateDrawCommand:
			b := s.batches[u.batch]
			cmd := b.DrawCommand()
			t.WriteDrawCommand(b.DrawCmdOffset, &cmd)
		case updateTextures:
			s.sets[frame].WriteTextures(renderer.BindingTextures, s.slots.DescriptorArray())
		}
	}
}

func (s *System) writeInstance(t *FrameTables, e ecs.Entity) {
	bi, ok := s.registry.BindlessInstance(e)
	if !ok {
		// destroyed after being flagged
		return
	}
	model := mgl32.Ident4()
	if tr, ok := s.registry.Transform(e); ok {
		model = tr.Model()
	}
	data := renderer.InstanceData{
		Model:         model,
		Transparency:  bi.Transparency,
		AlbedoTexture: bi.TextureSlot,
		DrawCmdIndex:  s.batches[bi.Batch].DrawCmdIndex(),
	}
	t.WriteInstance(bi.InstanceDataOffset, &data)
}

func (s *System) pushAll(u update) {
	for _, q := range s.queues {
		q.push(u)
	}
}

// Batches returns the batches of meshPath in creation order.
func (s *System) Batches(meshPath string) []*MeshBatch {
	var out []*MeshBatch
	for _, i := range s.meshBatches[meshPath] {
		out = append(out, s.batches[i])
	}
	return out
}

func (s *System) Tables(frame uint32) *FrameTables {
	return s.tables[frame]
}

func (s *System) DescriptorSet(frame uint32) renderer.DescriptorSet {
	return s.sets[frame]
}

func (s *System) Geometry() *GeometryStore {
	return s.geometry
}

func (s *System) Stats() Stats {
	st := Stats{
		Batches:   len(s.batches),
		Instances: s.instances.Live(),
		Textures:  s.slots.Len(),
	}
	for _, q := range s.queues {
		st.Pending = append(st.Pending, q.Len())
	}
	return st
}

func (s *System) Shutdown() error {
	s.release()
	s.initialized = false
	core.LogDebug("bindless system shut down")
	return nil
}

func (s *System) release() {
	if s.pipeline != nil {
		s.pipeline.Destroy()
		s.pipeline = nil
	}
	s.sets = nil
	for i := len(s.tables) - 1; i >= 0; i-- {
		s.tables[i].Destroy()
	}
	s.tables = nil
	if s.geometry != nil {
		s.geometry.Destroy()
		s.geometry = nil
	}
}
