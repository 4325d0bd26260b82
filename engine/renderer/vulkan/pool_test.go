package vulkan

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockPoolSerializesGroup(t *testing.T) {
	pool := NewVulkanLockPool()

	var wg sync.WaitGroup
	inside := 0
	maxInside := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeCall(QueueManagement, func() error {
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				inside--
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
}

func TestLockPoolReturnsError(t *testing.T) {
	pool := NewVulkanLockPool()
	boom := errors.New("boom")

	err := pool.SafeCall(PipelineManagement, func() error { return boom })
	require.ErrorIs(t, err, boom)

	// the mutex was released
	require.NoError(t, pool.SafeCall(PipelineManagement, func() error { return nil }))
}

func TestLockPoolGroupsAreIndependent(t *testing.T) {
	pool := NewVulkanLockPool()

	err := pool.SafeCall(QueueManagement, func() error {
		return pool.SafeCall(DescriptorUpdates, func() error { return nil })
	})
	assert.NoError(t, err)
}
