package core

type Button uint8

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// KeyCode identifies a keyboard key independently of the window library.
type KeyCode uint16

const (
	KEY_UNKNOWN KeyCode = iota
	KEY_ESCAPE
	KEY_TAB
	KEY_SPACE
	KEY_ENTER
	KEY_LSHIFT
	KEY_LCONTROL
	KEY_UP
	KEY_DOWN
	KEY_LEFT
	KEY_RIGHT
	KEY_A
	KEY_D
	KEY_E
	KEY_Q
	KEY_R
	KEY_S
	KEY_W
	KEY_F1
	KEY_F2
	KEY_F3
	KEYS_MAX_KEYS
)

type MouseState struct {
	X       float64
	Y       float64
	Buttons [BUTTON_MAX_BUTTONS]bool
}

type KeyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

// InputState keeps the current and previous snapshot of keyboard and mouse.
// The window callbacks write the current snapshot; Update is called once per
// frame after the frame consumed the input.
type InputState struct {
	KeyboardCurrent  KeyboardState
	KeyboardPrevious KeyboardState
	MouseCurrent     MouseState
	MousePrevious    MouseState
	Scroll           float64

	hasMouse bool
}

func NewInputState() *InputState {
	return &InputState{}
}

func (in *InputState) Update() {
	in.KeyboardPrevious = in.KeyboardCurrent
	in.MousePrevious = in.MouseCurrent
	in.Scroll = 0
}

func (in *InputState) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS {
		return
	}
	in.KeyboardCurrent.Keys[key] = pressed
}

func (in *InputState) IsKeyDown(key KeyCode) bool {
	return key < KEYS_MAX_KEYS && in.KeyboardCurrent.Keys[key]
}

func (in *InputState) IsKeyUp(key KeyCode) bool {
	return !in.IsKeyDown(key)
}

func (in *InputState) WasKeyDown(key KeyCode) bool {
	return key < KEYS_MAX_KEYS && in.KeyboardPrevious.Keys[key]
}

// KeyPressed reports a key that went down since the last Update.
func (in *InputState) KeyPressed(key KeyCode) bool {
	return in.IsKeyDown(key) && !in.WasKeyDown(key)
}

func (in *InputState) KeyReleased(key KeyCode) bool {
	return !in.IsKeyDown(key) && in.WasKeyDown(key)
}

func (in *InputState) ProcessButton(button Button, pressed bool) {
	if button >= BUTTON_MAX_BUTTONS {
		return
	}
	in.MouseCurrent.Buttons[button] = pressed
}

func (in *InputState) IsButtonDown(button Button) bool {
	return button < BUTTON_MAX_BUTTONS && in.MouseCurrent.Buttons[button]
}

func (in *InputState) WasButtonDown(button Button) bool {
	return button < BUTTON_MAX_BUTTONS && in.MousePrevious.Buttons[button]
}

func (in *InputState) ProcessMouseMove(x, y float64) {
	in.MouseCurrent.X = x
	in.MouseCurrent.Y = y
	// The first event has no previous position to diff against.
	if !in.hasMouse {
		in.MousePrevious.X = x
		in.MousePrevious.Y = y
		in.hasMouse = true
	}
}

func (in *InputState) ProcessMouseWheel(delta float64) {
	in.Scroll += delta
}

// MouseDelta is the cursor motion since the last Update.
func (in *InputState) MouseDelta() (float64, float64) {
	return in.MouseCurrent.X - in.MousePrevious.X, in.MouseCurrent.Y - in.MousePrevious.Y
}
