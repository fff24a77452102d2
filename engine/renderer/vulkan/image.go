package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
}

func ImageCreate(
	ctx *Context,
	width, height uint32,
	format vk.Format,
	tiling vk.ImageTiling,
	usage vk.ImageUsageFlags,
	memoryFlags vk.MemoryPropertyFlags,
	createView bool,
	viewAspectFlags vk.ImageAspectFlags,
) (*VulkanImage, error) {
	outImage := &VulkanImage{
		Width:  width,
		Height: height,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	var image vk.Image
	if res := vk.CreateImage(ctx.Device.LogicalDevice, &imageCreateInfo, ctx.Allocator, &image); res != vk.Success {
		return nil, resultError("vkCreateImage", res)
	}
	outImage.Handle = image

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(ctx.Device.LogicalDevice, image, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType, err := ctx.FindMemoryIndex(memoryRequirements.MemoryTypeBits, memoryFlags)
	if err != nil {
		outImage.ImageDestroy(ctx)
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(ctx.Device.LogicalDevice, &allocateInfo, ctx.Allocator, &memory); res != vk.Success {
		outImage.ImageDestroy(ctx)
		return nil, resultError("vkAllocateMemory (image)", res)
	}
	outImage.Memory = memory

	if res := vk.BindImageMemory(ctx.Device.LogicalDevice, image, memory, 0); res != vk.Success {
		outImage.ImageDestroy(ctx)
		return nil, resultError("vkBindImageMemory", res)
	}

	if createView {
		view, err := ImageViewCreate(ctx, image, format, viewAspectFlags)
		if err != nil {
			outImage.ImageDestroy(ctx)
			return nil, err
		}
		outImage.View = view
	}
	return outImage, nil
}

func ImageViewCreate(ctx *Context, image vk.Image, format vk.Format, aspectFlags vk.ImageAspectFlags) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFlags,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(ctx.Device.LogicalDevice, &viewCreateInfo, ctx.Allocator, &view); res != vk.Success {
		return vk.NullImageView, resultError("vkCreateImageView", res)
	}
	return view, nil
}

func (vi *VulkanImage) ImageDestroy(ctx *Context) {
	if vi.View != vk.NullImageView {
		vk.DestroyImageView(ctx.Device.LogicalDevice, vi.View, ctx.Allocator)
		vi.View = vk.NullImageView
	}
	if vi.Handle != vk.NullImage {
		vk.DestroyImage(ctx.Device.LogicalDevice, vi.Handle, ctx.Allocator)
		vi.Handle = vk.NullImage
	}
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(ctx.Device.LogicalDevice, vi.Memory, ctx.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
}
