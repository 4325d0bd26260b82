package vulkan

import (
	"fmt"
	"image"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/renderer"
)

const maxAnisotropy = 16

// VulkanTexture is a sampled RGBA image with its own sampler.
type VulkanTexture struct {
	Name    string
	Image   *VulkanImage
	Sampler vk.Sampler

	context *VulkanContext
}

func TextureCreate(context *VulkanContext, name string, img *image.RGBA) (*VulkanTexture, error) {
	width := uint32(img.Rect.Dx())
	height := uint32(img.Rect.Dy())
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("texture %s has no pixels", name)
	}
	pixels := tightPixels(img)

	staging, err := BufferCreate(context, name+"_staging", uint64(len(pixels)),
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		memoryPropertyFlags(renderer.MemoryHostVisible))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()
	copy(staging.Mapped(), pixels)

	texImage, err := ImageCreate(context, width, height, vk.FormatR8g8b8a8Srgb,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return nil, err
	}

	pool := context.Device.GraphicsCommandPool
	commandBuffer, err := AllocateAndBeginSingleUse(context, pool)
	if err != nil {
		texImage.ImageDestroy(context)
		return nil, err
	}
	if err := texImage.TransitionLayout(commandBuffer, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
		commandBuffer.Free(context, pool)
		texImage.ImageDestroy(context)
		return nil, err
	}
	texImage.CopyFromBuffer(commandBuffer, staging.Handle)
	if err := texImage.TransitionLayout(commandBuffer, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal); err != nil {
		commandBuffer.Free(context, pool)
		texImage.ImageDestroy(context)
		return nil, err
	}
	if err := commandBuffer.EndSingleUse(context, pool, context.Device.GraphicsQueue); err != nil {
		texImage.ImageDestroy(context)
		return nil, err
	}

	anisotropy := context.Device.Properties.Limits.MaxSamplerAnisotropy
	if anisotropy > maxAnisotropy {
		anisotropy = maxAnisotropy
	}
	samplerInfo := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        vk.FilterLinear,
		MinFilter:        vk.FilterLinear,
		AddressModeU:     vk.SamplerAddressModeRepeat,
		AddressModeV:     vk.SamplerAddressModeRepeat,
		AddressModeW:     vk.SamplerAddressModeRepeat,
		AnisotropyEnable: vk.True,
		MaxAnisotropy:    anisotropy,
		BorderColor:      vk.BorderColorIntOpaqueBlack,
		CompareOp:        vk.CompareOpAlways,
		MipmapMode:       vk.SamplerMipmapModeLinear,
	}
	texture := &VulkanTexture{
		Name:    name,
		Image:   texImage,
		context: context,
	}
	if err := check("vkCreateSampler", vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &texture.Sampler)); err != nil {
		texImage.ImageDestroy(context)
		return nil, err
	}
	return texture, nil
}

// tightPixels returns the pixel rows without stride padding.
func tightPixels(img *image.RGBA) []byte {
	rowBytes := img.Rect.Dx() * 4
	if img.Stride == rowBytes && img.Rect.Min == (image.Point{}) {
		return img.Pix[:rowBytes*img.Rect.Dy()]
	}
	out := make([]byte, 0, rowBytes*img.Rect.Dy())
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		start := img.PixOffset(img.Rect.Min.X, y)
		out = append(out, img.Pix[start:start+rowBytes]...)
	}
	return out
}

func (vt *VulkanTexture) Width() uint32 {
	return vt.Image.Width
}

func (vt *VulkanTexture) Height() uint32 {
	return vt.Image.Height
}

func (vt *VulkanTexture) imageInfo() vk.DescriptorImageInfo {
	return vk.DescriptorImageInfo{
		Sampler:     vt.Sampler,
		ImageView:   vt.Image.View,
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	}
}

func (vt *VulkanTexture) Destroy() {
	if vt.Sampler != vk.NullSampler {
		vk.DestroySampler(vt.context.Device.LogicalDevice, vt.Sampler, vt.context.Allocator)
		vt.Sampler = vk.NullSampler
	}
	if vt.Image != nil {
		vt.Image.ImageDestroy(vt.context)
		vt.Image = nil
	}
}
