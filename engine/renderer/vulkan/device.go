package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   *VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32
	TransferQueueIndex int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Transfer             bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	DiscreteGPU          bool
}

// VulkanPhysicalDeviceQueueFamilyInfo holds -1 for a family that was not found.
type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	TransferFamilyIndex int32
}

var bindlessRequirements = VulkanPhysicalDeviceRequirements{
	Graphics:             true,
	Present:              true,
	Transfer:             true,
	DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	SamplerAnisotropy:    true,
}

// depthFormatCandidates are tried in order of preference.
var depthFormatCandidates = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

func DeviceCreate(context *VulkanContext) error {
	if err := selectPhysicalDevice(context); err != nil {
		return err
	}
	device := context.Device

	core.LogInfo("Creating logical device...")

	indices := []uint32{uint32(device.GraphicsQueueIndex)}
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, uint32(device.PresentQueueIndex))
	}
	if device.TransferQueueIndex != device.GraphicsQueueIndex && device.TransferQueueIndex != device.PresentQueueIndex {
		indices = append(indices, uint32(device.TransferQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := VulkanSafeStrings(bindlessRequirements.DeviceExtensionNames)
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy:                      vk.True,
			DrawIndirectFirstInstance:              vk.True,
			ShaderSampledImageArrayDynamicIndexing: vk.True,
		}},
		// Instances index the sampler array with a per-instance value.
		PNext: unsafe.Pointer(&vk.PhysicalDeviceVulkan12Features{
			SType:                                     vk.StructureTypePhysicalDeviceVulkan12Features,
			RuntimeDescriptorArray:                    vk.True,
			DescriptorBindingPartiallyBound:           vk.True,
			ShaderSampledImageArrayNonUniformIndexing: vk.True,
		}),
	}

	var logicalDevice vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logicalDevice)); err != nil {
		return err
	}
	device.LogicalDevice = logicalDevice
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.GraphicsQueueIndex), 0, &queue)
	device.GraphicsQueue = queue
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.PresentQueueIndex), 0, &queue)
	device.PresentQueue = queue
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.TransferQueueIndex), 0, &queue)
	device.TransferQueue = queue

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool)); err != nil {
		return err
	}
	device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}
	if device.GraphicsCommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(device.LogicalDevice, device.GraphicsCommandPool, context.Allocator)
		device.GraphicsCommandPool = vk.NullCommandPool
	}
	if device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}
	device.GraphicsQueue = nil
	device.PresentQueue = nil
	device.TransferQueue = nil
	device.PhysicalDevice = nil
	device.SwapchainSupport = nil
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (*VulkanSwapchainSupportInfo, error) {
	support := &VulkanSwapchainSupportInfo{}

	if err := check("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &support.Capabilities)); err != nil {
		return nil, err
	}
	support.Capabilities.Deref()
	support.Capabilities.CurrentExtent.Deref()
	support.Capabilities.MinImageExtent.Deref()
	support.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil)); err != nil {
		return nil, err
	}
	if formatCount > 0 {
		support.Formats = make([]vk.SurfaceFormat, formatCount)
		if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, support.Formats)); err != nil {
			return nil, err
		}
		for i := range support.Formats {
			support.Formats[i].Deref()
		}
	}

	var presentModeCount uint32
	if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil)); err != nil {
		return nil, err
	}
	if presentModeCount > 0 {
		support.PresentModes = make([]vk.PresentMode, presentModeCount)
		if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, support.PresentModes)); err != nil {
			return nil, err
		}
	}
	return support, nil
}

func DeviceDetectDepthFormat(device *VulkanDevice) error {
	format, ok := pickDepthFormat(func(f vk.Format) vk.FormatFeatureFlags {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, f, &properties)
		properties.Deref()
		return properties.OptimalTilingFeatures
	})
	if !ok {
		return fmt.Errorf("no supported depth format among %v", depthFormatCandidates)
	}
	device.DepthFormat = format
	return nil
}

func pickDepthFormat(optimalFeatures func(vk.Format) vk.FormatFeatureFlags) (vk.Format, bool) {
	want := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range depthFormatCandidates {
		if optimalFeatures(candidate)&want == want {
			return candidate, true
		}
	}
	return vk.FormatUndefined, false
}

func selectPhysicalDevice(context *VulkanContext) error {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &count, physicalDevices)); err != nil {
		return err
	}

	for _, physicalDevice := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
		properties.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(physicalDevice, &features)
		features.Deref()

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
		memory.Deref()

		name := vk.ToString(properties.DeviceName[:])
		core.LogInfo("Evaluating device: '%s'", name)

		queueInfo, support, err := physicalDeviceMeetsRequirements(physicalDevice, context.Surface, &properties, &features, &bindlessRequirements)
		if err != nil {
			core.LogInfo("Device '%s' skipped: %s", name, err)
			continue
		}

		core.LogInfo("Selected device: '%s'", name)
		core.LogInfo("API version: %d.%d.%d",
			properties.ApiVersion>>22,
			(properties.ApiVersion>>12)&0x3ff,
			properties.ApiVersion&0xfff)

		context.Device = &VulkanDevice{
			PhysicalDevice:     physicalDevice,
			SwapchainSupport:   support,
			GraphicsQueueIndex: queueInfo.GraphicsFamilyIndex,
			PresentQueueIndex:  queueInfo.PresentFamilyIndex,
			TransferQueueIndex: queueInfo.TransferFamilyIndex,
			Properties:         properties,
			Features:           features,
			Memory:             memory,
		}
		return DeviceDetectDepthFormat(context.Device)
	}

	return fmt.Errorf("no physical devices were found which meet the requirements")
}

func physicalDeviceMeetsRequirements(
	device vk.PhysicalDevice,
	surface vk.Surface,
	properties *vk.PhysicalDeviceProperties,
	features *vk.PhysicalDeviceFeatures,
	requirements *VulkanPhysicalDeviceRequirements,
) (VulkanPhysicalDeviceQueueFamilyInfo, *VulkanSwapchainSupportInfo, error) {
	none := VulkanPhysicalDeviceQueueFamilyInfo{-1, -1, -1}

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		return none, nil, fmt.Errorf("not a discrete GPU")
	}
	if properties.ApiVersion < uint32(vk.MakeVersion(1, 2, 0)) {
		return none, nil, fmt.Errorf("Vulkan 1.2 is required")
	}
	if requirements.SamplerAnisotropy && features.SamplerAnisotropy != vk.True {
		return none, nil, fmt.Errorf("sampler anisotropy not supported")
	}
	if features.DrawIndirectFirstInstance != vk.True {
		return none, nil, fmt.Errorf("drawIndirectFirstInstance not supported")
	}
	if features.ShaderSampledImageArrayDynamicIndexing != vk.True {
		return none, nil, fmt.Errorf("dynamic sampled image indexing not supported")
	}
	indexing := queryVulkan12Features(device)
	if missing := missingIndexingFeatures(&indexing); len(missing) > 0 {
		return none, nil, fmt.Errorf("descriptor indexing features not supported: %v", missing)
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)
	for i := range families {
		families[i].Deref()
	}

	queueInfo := selectQueueFamilies(families, func(index uint32) bool {
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(device, index, surface, &supported)
		return supported == vk.True
	})
	if (requirements.Graphics && queueInfo.GraphicsFamilyIndex < 0) ||
		(requirements.Present && queueInfo.PresentFamilyIndex < 0) ||
		(requirements.Transfer && queueInfo.TransferFamilyIndex < 0) {
		return none, nil, fmt.Errorf("missing queue families %+v", queueInfo)
	}

	support, err := DeviceQuerySwapchainSupport(device, surface)
	if err != nil {
		return none, nil, err
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return none, nil, fmt.Errorf("swapchain support incomplete")
	}

	if len(requirements.DeviceExtensionNames) > 0 {
		var extCount uint32
		if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &extCount, nil)); err != nil {
			return none, nil, err
		}
		available := make([]vk.ExtensionProperties, extCount)
		if err := check("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &extCount, available)); err != nil {
			return none, nil, err
		}
		names := make(map[string]bool, extCount)
		for i := range available {
			available[i].Deref()
			names[vk.ToString(available[i].ExtensionName[:])] = true
		}
		for _, required := range requirements.DeviceExtensionNames {
			if !names[required] {
				return none, nil, fmt.Errorf("required extension not found: '%s'", required)
			}
		}
	}

	return queueInfo, support, nil
}

// selectQueueFamilies picks the first graphics family, prefers presenting
// from it and picks the transfer family with the fewest other capabilities.
func selectQueueFamilies(families []vk.QueueFamilyProperties, supportsPresent func(index uint32) bool) VulkanPhysicalDeviceQueueFamilyInfo {
	info := VulkanPhysicalDeviceQueueFamilyInfo{-1, -1, -1}
	minTransferScore := 255

	for i, family := range families {
		index := int32(i)
		score := 0
		if family.QueueCount == 0 {
			continue
		}
		if family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			if info.GraphicsFamilyIndex < 0 {
				info.GraphicsFamilyIndex = index
				if supportsPresent(uint32(i)) {
					info.PresentFamilyIndex = index
				}
			}
			score++
		}
		if family.QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			score++
		}
		if family.QueueFlags&vk.QueueFlags(vk.QueueTransferBit) != 0 && score <= minTransferScore {
			minTransferScore = score
			info.TransferFamilyIndex = index
		}
	}

	if info.PresentFamilyIndex < 0 {
		for i := range families {
			if families[i].QueueCount > 0 && supportsPresent(uint32(i)) {
				info.PresentFamilyIndex = int32(i)
				break
			}
		}
	}
	return info
}

// queryVulkan12Features reads the Vulkan 1.2 feature block of device. The
// leading fields of the Go struct share the C layout, so the driver fills
// them in place.
func queryVulkan12Features(device vk.PhysicalDevice) vk.PhysicalDeviceVulkan12Features {
	features12 := vk.PhysicalDeviceVulkan12Features{
		SType: vk.StructureTypePhysicalDeviceVulkan12Features,
	}
	features2 := vk.PhysicalDeviceFeatures2{
		SType: vk.StructureTypePhysicalDeviceFeatures2,
		PNext: unsafe.Pointer(&features12),
	}
	vk.GetPhysicalDeviceFeatures2(device, &features2)
	return features12
}

// missingIndexingFeatures lists the descriptor indexing features the bindless
// texture array depends on that f does not report.
func missingIndexingFeatures(f *vk.PhysicalDeviceVulkan12Features) []string {
	var missing []string
	if f.RuntimeDescriptorArray != vk.True {
		missing = append(missing, "runtimeDescriptorArray")
	}
	if f.ShaderSampledImageArrayNonUniformIndexing != vk.True {
		missing = append(missing, "shaderSampledImageArrayNonUniformIndexing")
	}
	if f.DescriptorBindingPartiallyBound != vk.True {
		missing = append(missing, "descriptorBindingPartiallyBound")
	}
	return missing
}
