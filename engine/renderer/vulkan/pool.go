package vulkan

import "sync"

type LockGroup string

const (
	QueueManagement    LockGroup = "queue_management"
	PipelineManagement LockGroup = "pipeline_management"
	DescriptorUpdates  LockGroup = "descriptor_updates"
)

// VulkanLockPool hands out one mutex per group. Vulkan requires external
// synchronization for queue submission and descriptor set writes, and
// uploads may come from the asset reload path.
type VulkanLockPool struct {
	mu    sync.Mutex
	locks map[LockGroup]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks: make(map[LockGroup]*sync.Mutex),
	}
}

func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	l, exists := vs.locks[group]
	if !exists {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	return l
}

// SafeCall runs fn while holding the mutex of group.
func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	l.Lock()
	defer l.Unlock()

	return fn()
}
