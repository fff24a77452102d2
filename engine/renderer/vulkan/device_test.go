package vulkan

import (
	"math"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestPickQueueFamilies(t *testing.T) {
	tests := []struct {
		name              string
		families          []queueFamily
		graphics, present int32
	}{
		{"none", nil, -1, -1},
		{"shared family wins", []queueFamily{{graphics: true}, {present: true}, {graphics: true, present: true}}, 2, 2},
		{"split families", []queueFamily{{present: true}, {graphics: true}}, 1, 0},
		{"no present", []queueFamily{{graphics: true}}, 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, p := pickQueueFamilies(tt.families)
			assert.Equal(t, tt.graphics, g)
			assert.Equal(t, tt.present, p)
		})
	}
}

func TestDeviceScoreOrder(t *testing.T) {
	assert.Greater(t, deviceScore(vk.PhysicalDeviceTypeDiscreteGpu), deviceScore(vk.PhysicalDeviceTypeIntegratedGpu))
	assert.Greater(t, deviceScore(vk.PhysicalDeviceTypeIntegratedGpu), deviceScore(vk.PhysicalDeviceTypeVirtualGpu))
	assert.Greater(t, deviceScore(vk.PhysicalDeviceTypeVirtualGpu), deviceScore(vk.PhysicalDeviceTypeCpu))
	assert.Equal(t, 0, deviceScore(vk.PhysicalDeviceTypeOther))
	assert.Equal(t, "Discrete", deviceTypeString(vk.PhysicalDeviceTypeDiscreteGpu))
}

func TestFindMemoryType(t *testing.T) {
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	hostCoherent := vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	deviceLocal := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	types := []vk.MemoryPropertyFlags{deviceLocal, hostVisible, hostVisible | hostCoherent}

	idx, ok := findMemoryType(types, 0b111, hostVisible|hostCoherent)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), idx)

	idx, ok = findMemoryType(types, 0b111, hostVisible)
	assert.True(t, ok)
	assert.Equal(t, uint32(1), idx)

	_, ok = findMemoryType(types, 0b001, hostVisible)
	assert.False(t, ok)
}

func TestInstanceExtensions(t *testing.T) {
	got := instanceExtensions([]string{"VK_KHR_xcb_surface", "VK_KHR_surface"}, false, "linux")
	assert.Equal(t, []string{"VK_KHR_surface", "VK_KHR_xcb_surface"}, got)

	got = instanceExtensions([]string{"VK_EXT_metal_surface"}, true, "darwin")
	assert.Equal(t, []string{
		"VK_KHR_surface",
		"VK_EXT_metal_surface",
		"VK_KHR_portability_enumeration",
		"VK_KHR_get_physical_device_properties2",
		vk.ExtDebugReportExtensionName,
	}, got)
}

func TestMissingNames(t *testing.T) {
	assert.Empty(t, missingNames([]string{"a"}, []string{"b", "a"}))
	assert.Equal(t, []string{"c"}, missingNames([]string{"a", "c"}, []string{"a"}))
}

func TestChoosePresentMode(t *testing.T) {
	all := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate, vk.PresentModeMailbox}
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(all, true))
	assert.Equal(t, vk.PresentModeMailbox, choosePresentMode(all, false))
	assert.Equal(t, vk.PresentModeImmediate, choosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate}, false))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode([]vk.PresentMode{vk.PresentModeFifo}, false))
}

func TestChooseExtent(t *testing.T) {
	fixed := vk.SurfaceCapabilities{CurrentExtent: vk.Extent2D{Width: 640, Height: 480}}
	assert.Equal(t, vk.Extent2D{Width: 640, Height: 480}, chooseExtent(fixed, 1000, 1000))

	free := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 100, Height: 100},
		MaxImageExtent: vk.Extent2D{Width: 1920, Height: 1080},
	}
	assert.Equal(t, vk.Extent2D{Width: 1920, Height: 100}, chooseExtent(free, 4000, 10))
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), chooseImageCount(vk.SurfaceCapabilities{MinImageCount: 2}))
	assert.Equal(t, uint32(2), chooseImageCount(vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
}

func TestChooseSurfaceFormat(t *testing.T) {
	preferred := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	other := vk.SurfaceFormat{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	assert.Equal(t, preferred, chooseSurfaceFormat([]vk.SurfaceFormat{other, preferred}))
	assert.Equal(t, other, chooseSurfaceFormat([]vk.SurfaceFormat{other}))
}

func TestResultStrings(t *testing.T) {
	assert.Equal(t, "VK_SUCCESS", VulkanResultString(vk.Success, false))
	assert.Contains(t, VulkanResultString(vk.ErrorDeviceLost, true), "VK_ERROR_DEVICE_LOST")
	assert.Equal(t, "VkResult(-424242)", VulkanResultString(vk.Result(-424242), false))

	assert.True(t, VulkanResultIsSuccess(vk.Suboptimal))
	assert.False(t, VulkanResultIsSuccess(vk.ErrorOutOfDate))
	assert.False(t, VulkanResultIsSuccess(vk.Result(-424242)))
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))

	in := []string{"a", "b"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, []string{"a", "b"}, in)

	assert.Equal(t, "VK_LAYER", cString([]byte{'V', 'K', '_', 'L', 'A', 'Y', 'E', 'R', 0, 0, 'x'}))
	assert.Equal(t, uint32(5), Clamp(uint32(9), 1, 5))
}
