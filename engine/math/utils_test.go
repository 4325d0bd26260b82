package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(7, 0, 5))
	assert.Equal(t, uint32(2), Clamp(uint32(1), 2, 10))
	assert.Equal(t, float32(-89), Clamp(float32(-120), -89, 89))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
}

func TestWrapDegrees(t *testing.T) {
	assert.Equal(t, float32(-170), WrapDegrees(190))
	assert.Equal(t, float32(170), WrapDegrees(-190))
	assert.Equal(t, float32(180), WrapDegrees(180))
	assert.Equal(t, float32(0), WrapDegrees(0))
}
