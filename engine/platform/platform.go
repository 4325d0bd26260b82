package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

var keyMap = map[glfw.Key]core.KeyCode{
	glfw.KeyEscape:      core.KEY_ESCAPE,
	glfw.KeyTab:         core.KEY_TAB,
	glfw.KeySpace:       core.KEY_SPACE,
	glfw.KeyEnter:       core.KEY_ENTER,
	glfw.KeyLeftShift:   core.KEY_LSHIFT,
	glfw.KeyLeftControl: core.KEY_LCONTROL,
	glfw.KeyUp:          core.KEY_UP,
	glfw.KeyDown:        core.KEY_DOWN,
	glfw.KeyLeft:        core.KEY_LEFT,
	glfw.KeyRight:       core.KEY_RIGHT,
	glfw.KeyA:           core.KEY_A,
	glfw.KeyD:           core.KEY_D,
	glfw.KeyE:           core.KEY_E,
	glfw.KeyQ:           core.KEY_Q,
	glfw.KeyR:           core.KEY_R,
	glfw.KeyS:           core.KEY_S,
	glfw.KeyW:           core.KEY_W,
	glfw.KeyF1:          core.KEY_F1,
	glfw.KeyF2:          core.KEY_F2,
	glfw.KeyF3:          core.KEY_F3,
}

func translateKey(key glfw.Key) core.KeyCode {
	if code, ok := keyMap[key]; ok {
		return code
	}
	return core.KEY_UNKNOWN
}

func translateButton(button glfw.MouseButton) (core.Button, bool) {
	switch button {
	case glfw.MouseButtonLeft:
		return core.BUTTON_LEFT, true
	case glfw.MouseButtonRight:
		return core.BUTTON_RIGHT, true
	case glfw.MouseButtonMiddle:
		return core.BUTTON_MIDDLE, true
	}
	return 0, false
}

// Platform owns the glfw window. It feeds the input state and reports
// framebuffer resizes through OnResize.
type Platform struct {
	Window *glfw.Window
	Input  *core.InputState

	// OnResize is called from the event pump with the new framebuffer size.
	OnResize func(width, height uint32)

	cursorLocked bool
}

func New(input *core.InputState) *Platform {
	return &Platform{
		Input: input,
	}
}

func (p *Platform) Startup(cfg core.WindowConfig) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return fmt.Errorf("glfw reports no vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetScrollCallback(p.scrollCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(cfg.X), int(cfg.Y))
	p.Window.Show()

	core.LogInfo("window '%s' created (%dx%d)", cfg.Title, cfg.Width, cfg.Height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events without blocking.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

func (p *Platform) ShouldClose() bool {
	return p.Window.ShouldClose()
}

func (p *Platform) CursorLocked() bool {
	return p.cursorLocked
}

func (p *Platform) SetCursorLocked(locked bool) {
	p.cursorLocked = locked
	if locked {
		p.Window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
	} else {
		p.Window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	}
}

// Time returns the seconds elapsed since glfw was initialized.
func (p *Platform) Time() float64 {
	return glfw.GetTime()
}

func (p *Platform) InstanceProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, fmt.Errorf("failed to create window surface: %w", err)
	}
	return vk.SurfaceFromPointer(ptr), nil
}

func (p *Platform) FramebufferSize() (int, int) {
	return p.Window.GetFramebufferSize()
}

func (p *Platform) WaitEvents() {
	glfw.WaitEvents()
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Repeat {
		return
	}
	pressed := action == glfw.Press

	switch key {
	case glfw.KeyEscape:
		if pressed {
			w.SetShouldClose(true)
		}
	case glfw.KeyTab:
		if pressed {
			p.SetCursorLocked(!p.cursorLocked)
		}
	}
	p.Input.ProcessKey(translateKey(key), pressed)
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	if b, ok := translateButton(button); ok {
		p.Input.ProcessButton(b, action == glfw.Press)
	}
}

func (p *Platform) cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	p.Input.ProcessMouseMove(xpos, ypos)
}

func (p *Platform) scrollCallback(w *glfw.Window, xoff, yoff float64) {
	p.Input.ProcessMouseWheel(yoff)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	if p.OnResize != nil {
		p.OnResize(uint32(width), uint32(height))
	}
}
