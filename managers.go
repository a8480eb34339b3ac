package vkbackend

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// syncManager keeps the per-slot semaphores and fences which in turn are
// used to keep track of GPU progress. Fences are created signaled so the
// first wait on every slot returns immediately.
// The manager is not thread-safe.
type syncManager struct {
	device         vk.Device
	imageAvailable []vk.Semaphore
	queueComplete  []vk.Semaphore
	inFlight       []vk.Fence
}

func newSyncManager(device vk.Device, slots int) (m *syncManager, err error) {
	if slots < 1 || slots > MaxFramesInFlight {
		return nil, errors.Mark(errors.Newf("%d frame slots", slots), ErrInvalidValue)
	}
	m = &syncManager{device: device}
	defer func() {
		if err != nil {
			m.Destroy()
			m = nil
		}
	}()

	for i := 0; i < slots; i++ {
		available, err := m.newSemaphore()
		if err != nil {
			return m, err
		}
		m.imageAvailable = append(m.imageAvailable, available)

		complete, err := m.newSemaphore()
		if err != nil {
			return m, err
		}
		m.queueComplete = append(m.queueComplete, complete)

		var fence vk.Fence
		ret := vk.CreateFence(device, &vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
			Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
		}, nil, &fence)
		if err := vkCall(ret, "creating in-flight fence %d", i); err != nil {
			return m, err
		}
		m.inFlight = append(m.inFlight, fence)
	}
	return m, nil
}

func (m *syncManager) newSemaphore() (vk.Semaphore, error) {
	var sem vk.Semaphore
	ret := vk.CreateSemaphore(m.device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if err := vkCall(ret, "vkCreateSemaphore"); err != nil {
		return vk.NullSemaphore, err
	}
	return sem, nil
}

// wait blocks until the slot's fence is signaled and returns the raw result.
func (m *syncManager) wait(slot int) vk.Result {
	return vk.WaitForFences(m.device, 1, m.inFlight[slot:slot+1], vk.True, vk.MaxUint64)
}

func (m *syncManager) reset(slot int) error {
	return vkCall(vk.ResetFences(m.device, 1, m.inFlight[slot:slot+1]), "resetting fence %d", slot)
}

func (m *syncManager) Destroy() {
	for _, f := range m.inFlight {
		vk.DestroyFence(m.device, f, nil)
	}
	for _, s := range m.queueComplete {
		vk.DestroySemaphore(m.device, s, nil)
	}
	for _, s := range m.imageAvailable {
		vk.DestroySemaphore(m.device, s, nil)
	}
	m.inFlight, m.queueComplete, m.imageAvailable = nil, nil, nil
}
