package engine

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/ecs"
	"github.com/spaghettifunk/anima/engine/renderer"
	"github.com/spaghettifunk/anima/engine/renderer/headless"
)

// fakeWindow closes after a fixed number of pumps.
type fakeWindow struct {
	frames int
	pumped int
}

func (w *fakeWindow) PumpMessages()     { w.pumped++ }
func (w *fakeWindow) ShouldClose() bool { return w.pumped >= w.frames }

func testConfig(t *testing.T) *core.EngineConfig {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "shaders"), 0o755))
	spirv := []byte{0x03, 0x02, 0x23, 0x07}
	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "bindless.vert.spv"), spirv, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "bindless.frag.spv"), spirv, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tri.obj"), []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), 0o644))

	f, err := os.Create(filepath.Join(root, "albedo.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	require.NoError(t, f.Close())

	cfg := core.DefaultConfig()
	cfg.Window.MaxFPS = 0
	cfg.Assets.Root = root
	cfg.Assets.Watch = false
	cfg.Renderer.TextureArraySize = 16
	cfg.Renderer.MaxInstances = 64
	cfg.Renderer.MaxLookupEntries = 1024
	cfg.Renderer.MaxDrawCommands = 16
	cfg.Renderer.VertexPoolBytes = 1 << 16
	cfg.Renderer.IndexPoolBytes = 1 << 16
	return cfg
}

func TestEngineRunsFramesOnHeadlessBackend(t *testing.T) {
	cfg := testConfig(t)
	mesh := filepath.Join(cfg.Assets.Root, "tri.obj")
	texture := filepath.Join(cfg.Assets.Root, "albedo.png")

	var entities []ecs.Entity
	updates := 0
	shutdown := false
	game := &Game{
		Name: "test",
		FnInitialize: func(e *Engine) error {
			for i := 0; i < 12; i++ {
				entity, err := e.Bindless().CreateInstance(mesh, texture)
				if err != nil {
					return err
				}
				entities = append(entities, entity)
			}
			return nil
		},
		FnUpdate: func(e *Engine, deltaTime float64) error {
			updates++
			tr, _ := e.Registry().Transform(entities[0])
			tr.Rotate(mgl32.Vec3{0, 0, 0.1})
			return e.Bindless().FlagDirty(entities[0])
		},
		FnShutdown: func(e *Engine) error {
			shutdown = true
			return nil
		},
	}

	backend := headless.New(2, 3, 800, 600)
	window := &fakeWindow{frames: 5}
	e := New(game, cfg)
	require.NoError(t, e.setup(window, backend, nil))
	assert.Equal(t, EngineStageInitialized, e.Stage())

	require.NoError(t, e.Run())
	assert.Equal(t, 5, updates)
	assert.Len(t, backend.Presented, 5)

	// 12 instances of one mesh need a batch of 10 and a batch of 100
	assert.Len(t, backend.Recorder(0).Draws(), 2)

	ubo := renderer.EngineUBOStatic{}
	copy(ubo.Bytes(), e.Frontend().FrameUBOs()[0].Mapped())
	assert.Equal(t, e.Cameras().GetDefault().GetView(), ubo.View)

	require.NoError(t, e.Shutdown())
	assert.True(t, shutdown)
	assert.True(t, backend.ShutDown)
	assert.Equal(t, EngineStageShutDown, e.Stage())
	require.NoError(t, e.Shutdown())
}

func TestEngineStopEndsRun(t *testing.T) {
	cfg := testConfig(t)
	backend := headless.New(2, 3, 800, 600)
	e := New(&Game{}, cfg)
	require.NoError(t, e.setup(&fakeWindow{frames: 1 << 30}, backend, nil))

	go func() {
		time.Sleep(20 * time.Millisecond)
		e.Stop()
	}()
	require.NoError(t, e.Run())
	assert.NotEmpty(t, backend.Presented)
	require.NoError(t, e.Shutdown())
}

func TestEngineRejectsRunBeforeInitialize(t *testing.T) {
	e := New(&Game{}, core.DefaultConfig())
	assert.Error(t, e.Run())
	assert.NoError(t, e.Shutdown())
}

func TestEngineSetupFailsWithoutShaders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Assets.VertexShader = "shaders/missing.spv"
	backend := headless.New(2, 3, 800, 600)

	e := New(&Game{}, cfg)
	assert.Error(t, e.setup(&fakeWindow{}, backend, nil))
	assert.NoError(t, e.Shutdown())
	assert.True(t, backend.ShutDown)
}

func TestPreloadTextures(t *testing.T) {
	cfg := testConfig(t)
	backend := headless.New(2, 3, 800, 600)
	e := New(&Game{}, cfg)
	require.NoError(t, e.setup(&fakeWindow{}, backend, nil))
	defer e.Shutdown()

	albedo := filepath.Join(cfg.Assets.Root, "albedo.png")
	missing := filepath.Join(cfg.Assets.Root, "missing.png")
	require.NoError(t, e.PreloadTextures([]string{albedo, missing}))

	assert.True(t, e.Textures().Loaded(albedo))
	assert.False(t, e.Textures().Loaded(missing))
	assert.Len(t, backend.HeadlessDevice().Textures, 1)
}

func TestFrameSleep(t *testing.T) {
	assert.Zero(t, frameSleep(time.Millisecond, 0))
	assert.Equal(t, 9*time.Millisecond, frameSleep(time.Millisecond, 100))
	assert.Zero(t, frameSleep(20*time.Millisecond, 100))
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "running", EngineStageRunning.String())
	assert.Equal(t, "Stage(42)", Stage(42).String())
}
