package bindless

import (
	"errors"
	"image"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/ecs"
	"github.com/spaghettifunk/anima/engine/renderer"
	"github.com/spaghettifunk/anima/engine/renderer/headless"
)

type fakeMeshes struct {
	loads map[string]int
}

func (m *fakeMeshes) LoadModel(path string) ([]renderer.Vertex, []uint32, error) {
	if path == "missing.obj" {
		return nil, nil, errors.New("no such mesh")
	}
	m.loads[path]++
	vertices := []renderer.Vertex{
		{Pos: mgl32.Vec3{0, 0, 0}},
		{Pos: mgl32.Vec3{1, 0, 0}},
		{Pos: mgl32.Vec3{0, 1, 0}},
		{Pos: mgl32.Vec3{1, 1, 0}},
	}
	return vertices, []uint32{0, 1, 2, 2, 1, 3}, nil
}

type fakeTextures struct {
	device  *headless.Device
	loads   map[string]int
	reloads map[string]int
}

func (f *fakeTextures) GetDescriptorImageInfo(path string) (renderer.Texture, error) {
	f.loads[path]++
	return f.device.CreateTexture(path, image.NewRGBA(image.Rect(0, 0, 1, 1)))
}

func (f *fakeTextures) Reload(path string) (renderer.Texture, error) {
	f.reloads[path]++
	return f.device.CreateTexture(path, image.NewRGBA(image.Rect(0, 0, 2, 2)))
}

type fixture struct {
	sys      *System
	device   *headless.Device
	registry *ecs.Registry
	meshes   *fakeMeshes
	textures *fakeTextures
}

func testConfig() Config {
	return Config{
		TextureArraySize:  8,
		MaxInstances:      1000,
		MaxLookupEntries:  10000,
		MaxDrawCommands:   16,
		VertexPoolBytes:   1 << 16,
		IndexPoolBytes:    1 << 16,
		InitialBatchSize:  10,
		BatchGrowthFactor: 10,
	}
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	device := headless.NewDevice()
	f := &fixture{
		device:   device,
		registry: ecs.NewRegistry(),
		meshes:   &fakeMeshes{loads: map[string]int{}},
		textures: &fakeTextures{device: device, loads: map[string]int{}, reloads: map[string]int{}},
	}
	var ubos []renderer.Buffer
	for i := 0; i < 2; i++ {
		ubo, err := device.CreateBuffer("ubo", renderer.EngineUBOStaticSize, renderer.BufferUsageUniform, renderer.MemoryHostVisible)
		require.NoError(t, err)
		ubos = append(ubos, ubo)
	}
	sys, err := New(device, 2, f.registry, f.meshes, f.textures, cfg)
	require.NoError(t, err)
	require.NoError(t, sys.Initialize(ubos, []byte("vert"), []byte("frag")))
	f.sys = sys
	return f
}

func (f *fixture) render(t *testing.T, frame uint32) *headless.Recorder {
	t.Helper()
	rec := &headless.Recorder{}
	require.NoError(t, f.sys.Render(&renderer.FrameContext{Frame: frame, Cmd: rec}))
	return rec
}

func (f *fixture) renderAll(t *testing.T) {
	f.render(t, 0)
	f.render(t, 1)
}

func TestInitializeWritesBufferBindings(t *testing.T) {
	f := newFixture(t, testConfig())
	for frame := uint32(0); frame < 2; frame++ {
		set := f.sys.DescriptorSet(frame).(*headless.DescriptorSet)
		assert.Len(t, set.Buffers, 3)
		assert.Equal(t, f.sys.Tables(frame).InstanceData, set.Buffers[renderer.BindingInstanceData])
		assert.Equal(t, f.sys.Tables(frame).Lookup, set.Buffers[renderer.BindingLookup])
		// no texture yet, the sampler array is left alone
		assert.Zero(t, set.TextureWrites)
	}
	p := f.device.Pipelines[0]
	assert.Equal(t, uint32(2), p.Config.DescriptorSets)
	assert.Equal(t, uint32(8), p.Config.TextureArraySize)
}

func TestFifteenInstancesSpanTwoBatches(t *testing.T) {
	f := newFixture(t, testConfig())
	for i := 0; i < 15; i++ {
		_, err := f.sys.CreateInstance("spot.obj", "spot.png")
		require.NoError(t, err)
	}

	batches := f.sys.Batches("spot.obj")
	require.Len(t, batches, 2)
	assert.Equal(t, uint32(10), batches[0].MaxSize)
	assert.Equal(t, uint32(10), batches[0].InstanceCount)
	assert.Equal(t, uint32(100), batches[1].MaxSize)
	assert.Equal(t, uint32(5), batches[1].InstanceCount)
	assert.Equal(t, uint32(0), batches[0].FirstInstance)
	assert.Equal(t, uint32(10), batches[1].FirstInstance)
	assert.Equal(t, 1, f.meshes.loads["spot.obj"])
	assert.Equal(t, 1, f.textures.loads["spot.png"])

	for frame := uint32(0); frame < 2; frame++ {
		rec := f.render(t, frame)
		draws := rec.Draws()
		require.Len(t, draws, 2)
		assert.Equal(t, uint64(0), draws[0].Offset)
		assert.Equal(t, uint64(renderer.DrawCommandSize), draws[1].Offset)
		for _, d := range draws {
			assert.Equal(t, uint32(1), d.DrawCount)
			assert.Equal(t, uint32(renderer.DrawCommandSize), d.Stride)
			assert.Equal(t, f.sys.Tables(frame).DrawCommands, d.Buffer)
		}

		c0 := f.sys.Tables(frame).DrawCommand(0)
		c1 := f.sys.Tables(frame).DrawCommand(renderer.DrawCommandSize)
		assert.Equal(t, uint32(10), c0.InstanceCount)
		assert.Equal(t, uint32(0), c0.FirstInstance)
		assert.Equal(t, uint32(6), c0.IndexCount)
		assert.Equal(t, uint32(5), c1.InstanceCount)
		assert.Equal(t, uint32(10), c1.FirstInstance)
		assert.Equal(t, c0.FirstIndex, c1.FirstIndex)
	}
}

func TestLookupEntriesResolveToInstanceRecords(t *testing.T) {
	f := newFixture(t, testConfig())
	var entities []ecs.Entity
	for i := 0; i < 12; i++ {
		mesh := "a.obj"
		tex := "a.png"
		if i%2 == 1 {
			mesh, tex = "b.obj", "b.png"
		}
		e, err := f.sys.CreateInstance(mesh, tex)
		require.NoError(t, err)
		entities = append(entities, e)
	}
	f.renderAll(t)

	for frame := uint32(0); frame < 2; frame++ {
		tables := f.sys.Tables(frame)
		for _, e := range entities {
			bi, ok := f.registry.BindlessInstance(e)
			require.True(t, ok)
			index := tables.LookupEntry(bi.LookupSlot)
			assert.Equal(t, bi.InstanceDataOffset, uint64(index)*renderer.InstanceDataSize)

			rec := tables.Instance(bi.InstanceDataOffset)
			assert.Equal(t, bi.TextureSlot, rec.AlbedoTexture)
			batch := f.sys.batches[bi.Batch]
			assert.Equal(t, batch.DrawCmdIndex(), rec.DrawCmdIndex)
			assert.True(t, rec.Model.ApproxEqual(mgl32.Ident4()))

			cmd := tables.DrawCommand(batch.DrawCmdOffset)
			assert.GreaterOrEqual(t, bi.LookupSlot, cmd.FirstInstance)
			assert.Less(t, bi.LookupSlot, cmd.FirstInstance+cmd.InstanceCount)
		}
	}
	assert.Equal(t, int32(0), mustInstance(t, f, entities[0]).TextureSlot)
	assert.Equal(t, int32(1), mustInstance(t, f, entities[1]).TextureSlot)
}

func mustInstance(t *testing.T, f *fixture, e ecs.Entity) *ecs.BindlessInstance {
	t.Helper()
	bi, ok := f.registry.BindlessInstance(e)
	require.True(t, ok)
	return bi
}

func TestFlagDirtyOnlyTouchesRenderedFrame(t *testing.T) {
	f := newFixture(t, testConfig())
	e, err := f.sys.CreateInstance("spot.obj", "spot.png")
	require.NoError(t, err)
	f.renderAll(t)

	tr, ok := f.registry.Transform(e)
	require.True(t, ok)
	tr.Position = mgl32.Vec3{5, 0, 0}
	require.NoError(t, f.sys.FlagDirty(e))
	assert.Equal(t, []int{1, 1}, f.sys.Stats().Pending)

	offset := mustInstance(t, f, e).InstanceDataOffset
	want := mgl32.Translate3D(5, 0, 0)

	f.render(t, 0)
	assert.True(t, f.sys.Tables(0).Instance(offset).Model.ApproxEqual(want))
	assert.True(t, f.sys.Tables(1).Instance(offset).Model.ApproxEqual(mgl32.Ident4()))
	assert.Equal(t, []int{0, 1}, f.sys.Stats().Pending)

	f.render(t, 1)
	assert.True(t, f.sys.Tables(1).Instance(offset).Model.ApproxEqual(want))
	assert.Equal(t, []int{0, 0}, f.sys.Stats().Pending)
}

func TestNewInstanceReachesEveryFrameOnItsOwnTick(t *testing.T) {
	f := newFixture(t, testConfig())
	f.renderAll(t)

	e, err := f.sys.CreateInstance("spot.obj", "spot.png")
	require.NoError(t, err)
	bi := mustInstance(t, f, e)

	f.render(t, 0)
	assert.Equal(t, uint32(1), f.sys.Tables(0).DrawCommand(0).InstanceCount)
	// frame 1 has not drained yet and still draws nothing
	assert.Equal(t, uint32(0), f.sys.Tables(1).DrawCommand(0).InstanceCount)

	f.render(t, 1)
	assert.Equal(t, uint32(1), f.sys.Tables(1).DrawCommand(0).InstanceCount)
	assert.Equal(t, uint32(bi.InstanceDataOffset/renderer.InstanceDataSize), f.sys.Tables(1).LookupEntry(bi.LookupSlot))
}

func TestRenderBindsBeforeDrawing(t *testing.T) {
	f := newFixture(t, testConfig())
	_, err := f.sys.CreateInstance("spot.obj", "spot.png")
	require.NoError(t, err)

	rec := f.render(t, 1)
	var ops []headless.Op
	for _, c := range rec.Commands {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []headless.Op{
		headless.OpBindPipeline,
		headless.OpBindDescriptorSet,
		headless.OpBindVertexBuffer,
		headless.OpBindIndexBuffer,
		headless.OpDrawIndexedIndirect,
	}, ops)
	assert.Equal(t, f.sys.DescriptorSet(1), rec.Commands[1].Set)
}

func TestTextureSlots(t *testing.T) {
	f := newFixture(t, testConfig())
	_, err := f.sys.CreateInstance("spot.obj", "a.png")
	require.NoError(t, err)
	_, err = f.sys.CreateInstance("spot.obj", "b.png")
	require.NoError(t, err)
	_, err = f.sys.CreateInstance("spot.obj", "a.png")
	require.NoError(t, err)
	assert.Equal(t, 1, f.textures.loads["a.png"])
	assert.Equal(t, 2, f.sys.Stats().Textures)

	f.render(t, 0)
	set := f.sys.DescriptorSet(0).(*headless.DescriptorSet)
	// two textures added before the tick collapse into one write
	assert.Equal(t, 1, set.TextureWrites)
	require.Len(t, set.Textures, 8)
	assert.Equal(t, "a.png", set.Textures[0].(*headless.Texture).Name)
	assert.Equal(t, "b.png", set.Textures[1].(*headless.Texture).Name)
	for _, tex := range set.Textures[2:] {
		assert.Same(t, set.Textures[0], tex)
	}
	assert.Zero(t, f.sys.DescriptorSet(1).(*headless.DescriptorSet).TextureWrites)
}

func TestTextureSlotsUseCleanedPaths(t *testing.T) {
	f := newFixture(t, testConfig())
	_, err := f.sys.CreateInstance("spot.obj", "textures//a.png")
	require.NoError(t, err)
	_, err = f.sys.CreateInstance("spot.obj", "textures/./a.png")
	require.NoError(t, err)
	_, err = f.sys.CreateInstance("spot.obj", "textures/a.png")
	require.NoError(t, err)
	assert.Equal(t, 1, f.sys.Stats().Textures)

	require.NoError(t, f.sys.ReloadTexture("textures/a.png"))
	assert.Equal(t, 1, f.textures.reloads["textures/a.png"])
}

func TestTextureOverflowIsRejected(t *testing.T) {
	cfg := testConfig()
	cfg.TextureArraySize = 2
	f := newFixture(t, cfg)
	_, err := f.sys.CreateInstance("spot.obj", "a.png")
	require.NoError(t, err)
	_, err = f.sys.CreateInstance("spot.obj", "b.png")
	require.NoError(t, err)

	before := f.registry.Count()
	_, err = f.sys.CreateInstance("spot.obj", "c.png")
	assert.ErrorIs(t, err, core.ErrTextureSlotsExhausted)
	assert.Equal(t, before, f.registry.Count())
	assert.Equal(t, uint32(2), f.sys.Batches("spot.obj")[0].InstanceCount)
	assert.Zero(t, f.textures.loads["c.png"])

	// known textures still work
	_, err = f.sys.CreateInstance("spot.obj", "b.png")
	assert.NoError(t, err)
}

func TestCapacityErrors(t *testing.T) {
	t.Run("instance table", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxInstances = 2
		f := newFixture(t, cfg)
		for i := 0; i < 2; i++ {
			_, err := f.sys.CreateInstance("spot.obj", "spot.png")
			require.NoError(t, err)
		}
		_, err := f.sys.CreateInstance("spot.obj", "spot.png")
		assert.ErrorIs(t, err, core.ErrInstanceTableFull)
	})
	t.Run("lookup array", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxLookupEntries = 15
		f := newFixture(t, cfg)
		for i := 0; i < 10; i++ {
			_, err := f.sys.CreateInstance("spot.obj", "spot.png")
			require.NoError(t, err)
		}
		_, err := f.sys.CreateInstance("spot.obj", "spot.png")
		assert.ErrorIs(t, err, core.ErrLookupArrayFull)
		assert.Len(t, f.sys.Batches("spot.obj"), 1)
	})
	t.Run("draw commands", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxDrawCommands = 1
		f := newFixture(t, cfg)
		_, err := f.sys.CreateInstance("a.obj", "spot.png")
		require.NoError(t, err)
		_, err = f.sys.CreateInstance("b.obj", "spot.png")
		assert.ErrorIs(t, err, core.ErrDrawCommandsFull)
	})
	t.Run("geometry pool", func(t *testing.T) {
		cfg := testConfig()
		cfg.VertexPoolBytes = renderer.VertexSize * 4
		f := newFixture(t, cfg)
		_, err := f.sys.CreateInstance("a.obj", "spot.png")
		require.NoError(t, err)
		_, err = f.sys.CreateInstance("b.obj", "spot.png")
		assert.ErrorIs(t, err, core.ErrGeometryPoolFull)
	})
	t.Run("mesh load failure", func(t *testing.T) {
		f := newFixture(t, testConfig())
		_, err := f.sys.CreateInstance("missing.obj", "spot.png")
		assert.Error(t, err)
		assert.Zero(t, f.registry.Count())
		// the texture was never bound to a slot
		assert.Zero(t, f.sys.Stats().Textures)
		assert.Equal(t, []int{0, 0}, f.sys.Stats().Pending)

		_, err = f.sys.CreateInstance("spot.obj", "b.png")
		require.NoError(t, err)
		slot, ok := f.sys.slots.Lookup("b.png")
		require.True(t, ok)
		assert.Equal(t, int32(0), slot)
	})
}

func TestGeometryIsAppended(t *testing.T) {
	f := newFixture(t, testConfig())
	_, err := f.sys.CreateInstance("a.obj", "spot.png")
	require.NoError(t, err)
	_, err = f.sys.CreateInstance("b.obj", "spot.png")
	require.NoError(t, err)

	a, ok := f.sys.Geometry().Get("a.obj")
	require.True(t, ok)
	b, ok := f.sys.Geometry().Get("b.obj")
	require.True(t, ok)
	assert.Equal(t, int32(0), a.VertexOffset)
	assert.Equal(t, int32(4), b.VertexOffset)
	assert.Equal(t, uint32(0), a.FirstIndex)
	assert.Equal(t, uint32(6), b.FirstIndex)

	f.render(t, 0)
	cmd := f.sys.Tables(0).DrawCommand(renderer.DrawCommandSize)
	assert.Equal(t, int32(4), cmd.VertexOffset)
	assert.Equal(t, uint32(6), cmd.FirstIndex)

	ib := f.sys.Geometry().IndexBuffer().(*headless.Buffer)
	assert.Equal(t, uint32(3), renderer.ReadUint32(ib.Data()[5*renderer.IndexSize:]))
}

func TestDestroyInstanceSwapsAndReuses(t *testing.T) {
	f := newFixture(t, testConfig())
	var es []ecs.Entity
	for i := 0; i < 3; i++ {
		e, err := f.sys.CreateInstance("spot.obj", "spot.png")
		require.NoError(t, err)
		es = append(es, e)
	}
	f.renderAll(t)

	freed := mustInstance(t, f, es[0]).InstanceDataOffset
	lastOffset := mustInstance(t, f, es[2]).InstanceDataOffset
	require.NoError(t, f.sys.DestroyInstance(es[0]))
	assert.False(t, f.registry.Valid(es[0]))
	assert.ErrorIs(t, f.sys.DestroyInstance(es[0]), core.ErrInstanceNotFound)

	// the last member moved into the freed lookup entry
	moved := mustInstance(t, f, es[2])
	assert.Equal(t, uint32(0), moved.LookupSlot)

	f.renderAll(t)
	for frame := uint32(0); frame < 2; frame++ {
		tables := f.sys.Tables(frame)
		assert.Equal(t, uint32(2), tables.DrawCommand(0).InstanceCount)
		assert.Equal(t, uint32(lastOffset/renderer.InstanceDataSize), tables.LookupEntry(0))
	}

	e, err := f.sys.CreateInstance("spot.obj", "spot.png")
	require.NoError(t, err)
	bi := mustInstance(t, f, e)
	assert.Equal(t, freed, bi.InstanceDataOffset)
	assert.Equal(t, uint32(2), bi.LookupSlot)
	assert.Equal(t, 3, f.sys.Stats().Instances)
}

func TestFlaggedThenDestroyedEntityIsSkipped(t *testing.T) {
	f := newFixture(t, testConfig())
	e, err := f.sys.CreateInstance("spot.obj", "spot.png")
	require.NoError(t, err)
	require.NoError(t, f.sys.FlagDirty(e))
	require.NoError(t, f.sys.DestroyInstance(e))

	f.renderAll(t)
	assert.Equal(t, uint32(0), f.sys.Tables(0).DrawCommand(0).InstanceCount)
	assert.ErrorIs(t, f.sys.FlagDirty(e), core.ErrInstanceNotFound)
}

func TestAttachInstanceToExistingEntity(t *testing.T) {
	f := newFixture(t, testConfig())
	e := f.registry.CreateEntity("cow")
	require.NoError(t, f.registry.AddTransform(e, ecs.Transform{
		Position: mgl32.Vec3{0, 0, 2},
		Scale:    mgl32.Vec3{1, 1, 1},
	}))
	require.NoError(t, f.sys.AttachInstance(e, "spot.obj", "spot.png"))
	assert.Error(t, f.sys.AttachInstance(e, "spot.obj", "spot.png"))

	f.render(t, 0)
	rec := f.sys.Tables(0).Instance(mustInstance(t, f, e).InstanceDataOffset)
	assert.True(t, rec.Model.ApproxEqual(mgl32.Translate3D(0, 0, 2)))
}

func TestReloadTexture(t *testing.T) {
	f := newFixture(t, testConfig())
	_, err := f.sys.CreateInstance("spot.obj", "spot.png")
	require.NoError(t, err)
	f.renderAll(t)

	require.NoError(t, f.sys.ReloadTexture("unknown.png"))
	assert.Zero(t, f.device.IdleWaits)

	require.NoError(t, f.sys.ReloadTexture("spot.png"))
	assert.Equal(t, 1, f.device.IdleWaits)
	assert.Equal(t, 1, f.textures.reloads["spot.png"])

	f.renderAll(t)
	for frame := uint32(0); frame < 2; frame++ {
		set := f.sys.DescriptorSet(frame).(*headless.DescriptorSet)
		assert.Equal(t, 2, set.TextureWrites)
		assert.Equal(t, uint32(2), set.Textures[0].Width())
	}
}

func TestNotInitialized(t *testing.T) {
	sys, err := New(headless.NewDevice(), 2, ecs.NewRegistry(), &fakeMeshes{}, &fakeTextures{}, testConfig())
	require.NoError(t, err)
	_, err = sys.CreateInstance("spot.obj", "spot.png")
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	assert.ErrorIs(t, sys.Render(&renderer.FrameContext{}), core.ErrNotInitialized)

	_, err = New(headless.NewDevice(), 0, ecs.NewRegistry(), nil, nil, testConfig())
	assert.Error(t, err)
}

func TestShutdownReleasesBuffers(t *testing.T) {
	f := newFixture(t, testConfig())
	require.NoError(t, f.sys.Shutdown())
	for _, b := range f.device.Buffers {
		if b.Name == "ubo" {
			continue
		}
		assert.True(t, b.Destroyed, b.Name)
	}
	assert.True(t, f.device.Pipelines[0].Destroyed)
}
