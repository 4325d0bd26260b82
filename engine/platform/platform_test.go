package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/anima/engine/core"
)

func TestTranslateKey(t *testing.T) {
	assert.Equal(t, core.KEY_W, translateKey(glfw.KeyW))
	assert.Equal(t, core.KEY_LCONTROL, translateKey(glfw.KeyLeftControl))
	assert.Equal(t, core.KEY_UNKNOWN, translateKey(glfw.KeyF12))
}

func TestKeyMapIsInjective(t *testing.T) {
	seen := make(map[core.KeyCode]glfw.Key)
	for key, code := range keyMap {
		other, dup := seen[code]
		assert.False(t, dup, "glfw keys %d and %d map to the same code", key, other)
		seen[code] = key
	}
}

func TestTranslateButton(t *testing.T) {
	b, ok := translateButton(glfw.MouseButtonRight)
	assert.True(t, ok)
	assert.Equal(t, core.BUTTON_RIGHT, b)

	_, ok = translateButton(glfw.MouseButton4)
	assert.False(t, ok)
}
