package vulkan

import "sync"

type LockGroup string

const (
	PipelineManagement     LockGroup = "pipeline_management"
	DescriptorManagement   LockGroup = "descriptor_management"
	CommandPoolManagement  LockGroup = "command_pool_management"
	ShaderModuleManagement LockGroup = "shader_module_management"
	BufferManagement       LockGroup = "buffer_management"
	SwapchainManagement    LockGroup = "swapchain_management"
	SynchronizationGroup   LockGroup = "synchronization"
)

// VulkanLockPool serializes access to externally synchronized Vulkan
// objects. Pools and queues must never be used from two goroutines at once.
type VulkanLockPool struct {
	mu     sync.Mutex
	locks  map[LockGroup]*sync.Mutex
	queues map[uint32]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks:  make(map[LockGroup]*sync.Mutex),
		queues: make(map[uint32]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) group(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	l, ok := vs.locks[group]
	if !ok {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	return l
}

func (vs *VulkanLockPool) queue(family uint32) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	l, ok := vs.queues[family]
	if !ok {
		l = &sync.Mutex{}
		vs.queues[family] = l
	}
	return l
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.group(group)
	l.Lock()
	defer l.Unlock()

	return fn()
}

// SafeQueueCall runs fn while holding the lock of a queue family. Graphics
// and present may share a family and therefore a lock.
func (vs *VulkanLockPool) SafeQueueCall(family uint32, fn func() error) error {
	l := vs.queue(family)
	l.Lock()
	defer l.Unlock()

	return fn()
}
