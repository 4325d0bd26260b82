package systems

import (
	"fmt"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/math"
	"github.com/spaghettifunk/anima/engine/renderer/components"
)

/** @brief The name of the default camera. */
const DEFAULT_CAMERA_NAME string = "default"

// one wheel notch changes the fly speed by 10%
const scrollSpeedStep = 1.1

type cameraLookup struct {
	referenceCount uint16
	camera         *components.Camera
}

// CameraSystem owns the named cameras and flies the default one from the
// keyboard and mouse.
type CameraSystem struct {
	config core.CameraConfig
	input  *core.InputState
	lookup map[string]*cameraLookup

	// A default, non-registered camera that always exists as a fallback.
	defaultCamera *components.Camera

	// mouse look is applied only while this reports true
	lookEnabled func() bool

	// fly speed, scaled by the scroll wheel
	speed float32
}

func NewCameraSystem(config core.CameraConfig, input *core.InputState, lookEnabled func() bool) (*CameraSystem, error) {
	if config.ZNear <= 0 || config.ZFar <= config.ZNear {
		err := fmt.Errorf("invalid camera clip planes near=%f far=%f", config.ZNear, config.ZFar)
		core.LogError(err.Error())
		return nil, err
	}
	if lookEnabled == nil {
		lookEnabled = func() bool { return true }
	}
	return &CameraSystem{
		config:        config,
		input:         input,
		lookup:        make(map[string]*cameraLookup),
		defaultCamera: components.NewCamera(mgl32.Vec3{-3, 0, 2}, -20, 0, 0),
		lookEnabled:   lookEnabled,
		speed:         config.Speed,
	}, nil
}

func (cs *CameraSystem) Name() string {
	return "camera"
}

/**
 * @brief Acquires a camera by name, creating it on first use.
 * Internal reference counter is incremented.
 */
func (cs *CameraSystem) Acquire(name string) *components.Camera {
	if name == DEFAULT_CAMERA_NAME {
		return cs.defaultCamera
	}
	entry, ok := cs.lookup[name]
	if !ok {
		core.LogDebug("creating new camera named '%s'", name)
		entry = &cameraLookup{camera: components.NewCamera(mgl32.Vec3{}, 0, 0, 0)}
		cs.lookup[name] = entry
	}
	entry.referenceCount++
	return entry.camera
}

/**
 * @brief Releases a camera with the given name. When the counter reaches 0
 * the camera is dropped.
 */
func (cs *CameraSystem) Release(name string) {
	if name == DEFAULT_CAMERA_NAME {
		core.LogDebug("cannot release default camera, nothing was done")
		return
	}
	entry, ok := cs.lookup[name]
	if !ok {
		core.LogWarn("camera '%s' is not acquired, nothing was done", name)
		return
	}
	entry.referenceCount--
	if entry.referenceCount == 0 {
		delete(cs.lookup, name)
	}
}

func (cs *CameraSystem) GetDefault() *components.Camera {
	return cs.defaultCamera
}

// Update moves the default camera: W/S forward and back, A/D strafe,
// Space and left control up and down, mouse deltas turn it. Scrolling
// scales the fly speed within ten times either way of the configured one.
func (cs *CameraSystem) Update(deltaTime float64) error {
	in := cs.input
	if in.Scroll != 0 {
		factor := float32(stdmath.Pow(scrollSpeedStep, in.Scroll))
		cs.speed = math.Clamp(cs.speed*factor, cs.config.Speed/10, cs.config.Speed*10)
	}
	step := cs.speed * float32(deltaTime)

	var forward, left, up float32
	if in.IsKeyDown(core.KEY_W) {
		forward++
	}
	if in.IsKeyDown(core.KEY_S) {
		forward--
	}
	if in.IsKeyDown(core.KEY_A) {
		left++
	}
	if in.IsKeyDown(core.KEY_D) {
		left--
	}
	if in.IsKeyDown(core.KEY_SPACE) {
		up++
	}
	if in.IsKeyDown(core.KEY_LCONTROL) {
		up--
	}
	if forward != 0 || left != 0 || up != 0 {
		cs.defaultCamera.Move(forward*step, left*step, up*step)
	}

	if cs.lookEnabled() {
		dx, dy := in.MouseDelta()
		if dx != 0 || dy != 0 {
			s := cs.config.Sensitivity
			cs.defaultCamera.Rotate(-float32(dx)*s, -float32(dy)*s, 0)
		}
	}
	return nil
}

// Matrices returns the view and projection of the default camera for a
// framebuffer with the given aspect ratio.
func (cs *CameraSystem) Matrices(aspect float32) (mgl32.Mat4, mgl32.Mat4) {
	proj := components.Projection(cs.config.FOV, aspect, cs.config.ZNear, cs.config.ZFar)
	return cs.defaultCamera.GetView(), proj
}

func (cs *CameraSystem) Speed() float32 {
	return cs.speed
}

func (cs *CameraSystem) Shutdown() error {
	cs.lookup = make(map[string]*cameraLookup)
	return nil
}
