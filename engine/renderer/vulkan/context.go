package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima/engine/core"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// WindowSurface is the part of the platform window the backend needs.
type WindowSurface interface {
	// InstanceProcAddr returns vkGetInstanceProcAddr as loaded by the window library.
	InstanceProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	FramebufferSize() (width, height int)
	// WaitEvents blocks until the window produces an event.
	WaitEvents()
}

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface
	Locks     *VulkanLockPool

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	Swapchain      *VulkanSwapchain
	MainRenderpass *VulkanRenderpass

	// One entry per frame in flight.
	GraphicsCommandBuffers   []*VulkanCommandBuffer
	ImageAvailableSemaphores []vk.Semaphore
	QueueCompleteSemaphores  []vk.Semaphore
	InFlightFences           []*VulkanFence

	// Fence of the frame that last rendered to each swapchain image; owned
	// by InFlightFences.
	ImagesInFlight []*VulkanFence
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return 0, fmt.Errorf("no memory type matches filter %b with properties %b", typeFilter, propertyFlags)
}

func createInstance(context *VulkanContext, appName string, window WindowSurface, validation bool) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Anima Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := window.RequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	for _, ext := range requiredExtensions {
		core.LogDebug("Required extension: %s", ext)
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	var layers []string
	if validation {
		if err := requireLayer(validationLayerName); err != nil {
			return err
		}
		layers = append(layers, validationLayerName)
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, context.Allocator, &context.Instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(context.Instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := check("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(context.Instance, &debugCreateInfo, context.Allocator, &dbg)); err != nil {
			return err
		}
		context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	surface, err := window.CreateSurface(context.Instance)
	if err != nil {
		return fmt.Errorf("failed to create window surface: %w", err)
	}
	context.Surface = surface
	return nil
}

func requireLayer(name string) error {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return err
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].LayerName[:]) == name {
			return nil
		}
	}
	return fmt.Errorf("required validation layer is missing: %s", name)
}

func destroyInstance(context *VulkanContext) {
	if context.Surface != vk.NullSurface {
		vk.DestroySurface(context.Instance, context.Surface, context.Allocator)
		context.Surface = vk.NullSurface
	}
	if context.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(context.Instance, context.debugMessenger, context.Allocator)
		context.debugMessenger = vk.NullDebugReportCallback
	}
	if context.Instance != nil {
		vk.DestroyInstance(context.Instance, context.Allocator)
		context.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
