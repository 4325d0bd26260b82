package vulkan

import (
	stdmath "math"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima/engine/renderer"
)

func TestChooseSurfaceFormat(t *testing.T) {
	unorm := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	srgb := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear}

	assert.Equal(t, srgb, chooseSurfaceFormat([]vk.SurfaceFormat{unorm, srgb}))
	assert.Equal(t, unorm, chooseSurfaceFormat([]vk.SurfaceFormat{unorm}), "falls back to the first format")
}

func TestChoosePresentMode(t *testing.T) {
	assert.Equal(t, vk.PresentModeMailbox, choosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox}))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode([]vk.PresentMode{vk.PresentModeImmediate}))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(nil))
}

func TestChooseExtent(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: 800, Height: 600},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
	}
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, chooseExtent(&caps, 1440, 900))

	caps.CurrentExtent = vk.Extent2D{Width: stdmath.MaxUint32, Height: stdmath.MaxUint32}
	assert.Equal(t, vk.Extent2D{Width: 1440, Height: 900}, chooseExtent(&caps, 1440, 900))
	assert.Equal(t, vk.Extent2D{Width: 4096, Height: 1}, chooseExtent(&caps, 10000, 0))
}

func TestChooseImageCount(t *testing.T) {
	caps := vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 0}
	assert.Equal(t, uint32(3), chooseImageCount(&caps), "no maximum")

	caps.MaxImageCount = 2
	assert.Equal(t, uint32(2), chooseImageCount(&caps))

	caps.MaxImageCount = 8
	assert.Equal(t, uint32(3), chooseImageCount(&caps))
}

func TestSwapchainStatus(t *testing.T) {
	status, err := swapchainStatus("vkQueuePresent", vk.Success)
	require.NoError(t, err)
	assert.Equal(t, renderer.SwapchainOK, status)

	status, err = swapchainStatus("vkQueuePresent", vk.Suboptimal)
	require.NoError(t, err)
	assert.Equal(t, renderer.SwapchainSuboptimal, status)

	status, err = swapchainStatus("vkQueuePresent", vk.ErrorOutOfDate)
	require.NoError(t, err)
	assert.Equal(t, renderer.SwapchainOutOfDate, status)

	_, err = swapchainStatus("vkQueuePresent", vk.ErrorDeviceLost)
	assert.EqualError(t, err, "vkQueuePresent failed: VK_ERROR_DEVICE_LOST")
}
