package engine

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima/engine/assets"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/ecs"
	"github.com/spaghettifunk/anima/engine/platform"
	"github.com/spaghettifunk/anima/engine/renderer"
	"github.com/spaghettifunk/anima/engine/renderer/bindless"
	"github.com/spaghettifunk/anima/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it owned
	EngineStageShutDown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageBooting:
		return "booting"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageShutDown:
		return "shut down"
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

// Window is what the run loop needs from the platform window.
type Window interface {
	PumpMessages()
	ShouldClose() bool
}

type Engine struct {
	config       *core.EngineConfig
	currentStage Stage
	gameInstance *Game
	stopping     atomic.Bool

	gameInitialized bool

	platform *platform.Platform
	window   Window
	input    *core.InputState

	backend  renderer.FrameBackend
	frontend *renderer.Frontend

	assetManager  *assets.AssetManager
	textures      *assets.TextureManager
	registry      *ecs.Registry
	jobs          *systems.JobSystem
	cameras       *systems.CameraSystem
	bindless      *bindless.System
	systemManager *systems.SystemManager

	clock   *core.Clock
	metrics *core.Metrics
}

func New(g *Game, config *core.EngineConfig) *Engine {
	return &Engine{
		config:       config,
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		input:        core.NewInputState(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
	}
}

// Initialize opens the window, brings up the Vulkan backend and every
// engine system, then initializes the game.
func (e *Engine) Initialize() error {
	e.currentStage = EngineStageBooting
	core.SetLogLevel(e.config.Log.Level)

	e.platform = platform.New(e.input)
	if err := e.platform.Startup(e.config.Window); err != nil {
		return err
	}

	backend := vulkan.New(e.platform, e.config.Window.Title, e.config.Renderer.FramesInFlight, e.config.Renderer.Validation)
	if err := backend.Initialize(); err != nil {
		core.LogError("failed to initialize the vulkan backend: %s", err)
		_ = e.platform.Shutdown()
		return err
	}

	return e.setup(e.platform, backend, e.platform.CursorLocked)
}

// setup creates everything that sits on top of a window and a frame backend.
func (e *Engine) setup(window Window, backend renderer.FrameBackend, lookEnabled func() bool) error {
	e.currentStage = EngineStageInitializing
	e.window = window
	e.backend = backend

	var err error
	e.frontend, err = renderer.NewFrontend(backend)
	if err != nil {
		return err
	}
	if e.platform != nil {
		e.platform.OnResize = e.frontend.OnResized
	}

	e.assetManager = assets.NewAssetManager()
	if err := e.assetManager.Initialize(e.config.Assets.Root, e.config.Assets.Watch); err != nil {
		return fmt.Errorf("failed to index assets in %s: %w", e.config.Assets.Root, err)
	}
	e.textures = assets.NewTextureManager(backend.Device(), e.assetManager)
	e.registry = ecs.NewRegistry()
	e.systemManager = systems.NewSystemManager()

	if e.jobs, err = systems.NewJobSystem(runtime.NumCPU(), 64); err != nil {
		return err
	}
	if e.cameras, err = systems.NewCameraSystem(e.config.Camera, e.input, lookEnabled); err != nil {
		return err
	}

	e.bindless, err = bindless.New(backend.Device(), e.frontend.FramesInFlight(), e.registry, e.assetManager, e.textures, bindless.ConfigFromEngine(e.config.Renderer))
	if err != nil {
		return err
	}
	vertexShader, err := e.assetManager.LoadShader(e.assetPath(e.config.Assets.VertexShader))
	if err != nil {
		return err
	}
	fragmentShader, err := e.assetManager.LoadShader(e.assetPath(e.config.Assets.FragmentShader))
	if err != nil {
		return err
	}
	if err := e.bindless.Initialize(e.frontend.FrameUBOs(), vertexShader, fragmentShader); err != nil {
		return err
	}

	for _, s := range []systems.System{e.jobs, e.cameras, e.bindless} {
		if err := e.systemManager.Register(s); err != nil {
			return err
		}
	}
	e.frontend.SetRenderFunc(e.systemManager.Render)

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return fmt.Errorf("game initialization failed: %w", err)
		}
	}
	e.gameInitialized = true

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized")
	return nil
}

// PreloadTextures decodes the images on the job workers and uploads them
// once all are decoded. Failed images are logged and left to lazy loading.
func (e *Engine) PreloadTextures(paths []string) error {
	for _, path := range paths {
		task := systems.JobTask{
			Name: "decode " + path,
			Run: func() (interface{}, error) {
				return e.assetManager.LoadImage(path)
			},
			OnComplete: func(result interface{}) {
				if _, err := e.textures.Put(path, result.(*image.RGBA)); err != nil {
					core.LogWarn("failed to upload %s: %s", path, err)
				}
			},
			OnFailure: func(err error) {
				core.LogWarn("failed to preload %s: %s", path, err)
			},
		}
		if err := e.jobs.Submit(task); err != nil {
			return err
		}
	}
	return e.jobs.Wait()
}

// assetPath resolves a path from the configuration against the assets root.
func (e *Engine) assetPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.config.Assets.Root, path)
}

// Run drives the main loop until the window closes or Stop is called.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine cannot run while %s", e.currentStage)
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	lastTime := e.clock.Elapsed()

	for !e.stopping.Load() && !e.window.ShouldClose() {
		frameStart := time.Now()

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - lastTime
		lastTime = currentTime

		if err := e.frame(delta); err != nil {
			core.LogError("frame failed, shutting down: %s", err)
			return err
		}

		if e.metrics.Update(delta) {
			core.LogDebug("fps: %.0f, frame time: %.3fms", e.metrics.FPS(), e.metrics.FrameTime())
		}
		elapsed := time.Since(frameStart)
		if wait := frameSleep(elapsed, e.config.Window.MaxFPS); wait > 0 {
			time.Sleep(wait)
		}
	}
	return nil
}

// frame runs one iteration of the main loop.
func (e *Engine) frame(delta float64) error {
	e.window.PumpMessages()
	e.applyAssetChanges()

	if err := e.systemManager.Update(delta); err != nil {
		return err
	}
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(e, delta); err != nil {
			return err
		}
	}

	width, height := e.backend.Extent()
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	view, proj := e.cameras.Matrices(aspect)
	ubo := renderer.EngineUBOStatic{
		View:                  view,
		Proj:                  proj,
		TimeSinceStartSeconds: float32(e.clock.Elapsed()),
	}
	if _, err := e.frontend.Tick(ubo, delta); err != nil {
		return err
	}

	// NOTE: input state copying happens after everything this frame read
	// from it.
	e.input.Update()
	return nil
}

// applyAssetChanges reloads textures that changed on disk. Other asset
// types are picked up on the next start.
func (e *Engine) applyAssetChanges() {
	for {
		select {
		case info := <-e.assetManager.Changes():
			if info.Type != assets.AssetTypeTexture {
				core.LogInfo("%s %s changed, restart to apply", info.Type, info.Path)
				continue
			}
			if err := e.bindless.ReloadTexture(info.Path); err != nil {
				core.LogWarn("hot reload of %s failed: %s", info.Path, err)
			}
		default:
			return
		}
	}
}

// frameSleep is how long to wait after a frame that took elapsed to stay
// under maxFPS. Zero means unlimited.
func frameSleep(elapsed time.Duration, maxFPS uint32) time.Duration {
	if maxFPS == 0 {
		return 0
	}
	target := time.Second / time.Duration(maxFPS)
	if elapsed >= target {
		return 0
	}
	return target - elapsed
}

// Stop asks Run to return after the current frame. Safe to call from any
// goroutine.
func (e *Engine) Stop() {
	e.stopping.Store(true)
}

// Shutdown releases everything in reverse creation order. It is safe to
// call after a failed Initialize.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	var errs []error

	if e.gameInitialized && e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown(e))
	}
	if e.backend != nil {
		errs = append(errs, e.backend.Device().WaitIdle())
	}
	if e.systemManager != nil {
		errs = append(errs, e.systemManager.Shutdown())
	}
	// both are no-ops when the manager already shut them down
	if e.bindless != nil {
		errs = append(errs, e.bindless.Shutdown())
	}
	if e.jobs != nil {
		errs = append(errs, e.jobs.Shutdown())
	}
	if e.textures != nil {
		e.textures.Shutdown()
	}
	if e.frontend != nil {
		errs = append(errs, e.frontend.Shutdown())
	}
	if e.backend != nil {
		errs = append(errs, e.backend.Shutdown())
	}
	if e.assetManager != nil {
		e.assetManager.Shutdown()
	}
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
	}

	e.currentStage = EngineStageShutDown
	core.LogInfo("engine shut down")
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage                     { return e.currentStage }
func (e *Engine) Config() *core.EngineConfig       { return e.config }
func (e *Engine) Input() *core.InputState          { return e.input }
func (e *Engine) Registry() *ecs.Registry          { return e.registry }
func (e *Engine) Bindless() *bindless.System       { return e.bindless }
func (e *Engine) Jobs() *systems.JobSystem         { return e.jobs }
func (e *Engine) Cameras() *systems.CameraSystem   { return e.cameras }
func (e *Engine) Assets() *assets.AssetManager     { return e.assetManager }
func (e *Engine) Textures() *assets.TextureManager { return e.textures }
func (e *Engine) Frontend() *renderer.Frontend     { return e.frontend }
