package vkbackend

import (
	vk "github.com/vulkan-go/vulkan"
)

// queueFamilyInfo is what the selection logic needs to know about one queue family.
type queueFamilyInfo struct {
	flags   vk.QueueFlags
	count   uint32
	present bool
}

func (f queueFamilyInfo) has(bit vk.QueueFlagBits) bool {
	return f.flags&vk.QueueFlags(bit) != 0
}

// transfer capability is implied by graphics and compute.
func (f queueFamilyInfo) canTransfer() bool {
	return f.has(vk.QueueTransferBit) || f.has(vk.QueueGraphicsBit) || f.has(vk.QueueComputeBit)
}

const noFamily = -1

// queueFamilyIndices are resolved once at bootstrap and never change.
type queueFamilyIndices struct {
	graphics int
	present  int
	compute  int
	transfer int
}

func (q queueFamilyIndices) complete() bool {
	return q.graphics != noFamily && q.present != noFamily && q.compute != noFamily && q.transfer != noFamily
}

// separateTransfer reports whether transfers can run on a family other than graphics.
func (q queueFamilyIndices) separateTransfer() bool {
	return q.transfer != q.graphics
}

// unique returns the distinct family indices in graphics, present, compute, transfer order.
func (q queueFamilyIndices) unique() []uint32 {
	var out []uint32
	seen := map[int]bool{}
	for _, idx := range []int{q.graphics, q.present, q.compute, q.transfer} {
		if idx == noFamily || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, uint32(idx))
	}
	return out
}

// resolveQueueFamilies picks a family for each queue role. Graphics prefers a
// family that can also present; transfer prefers the family with the fewest
// other capabilities so uploads can overlap rendering.
func resolveQueueFamilies(families []queueFamilyInfo) queueFamilyIndices {
	idx := queueFamilyIndices{graphics: noFamily, present: noFamily, compute: noFamily, transfer: noFamily}

	for i, f := range families {
		if f.count == 0 || !f.has(vk.QueueGraphicsBit) {
			continue
		}
		if idx.graphics == noFamily {
			idx.graphics = i
		}
		if f.present {
			idx.graphics = i
			break
		}
	}
	if idx.graphics != noFamily && families[idx.graphics].present {
		idx.present = idx.graphics
	}

	bestTransferScore := 3
	for i, f := range families {
		if f.count == 0 {
			continue
		}
		if idx.present == noFamily && f.present {
			idx.present = i
		}
		if idx.compute == noFamily && f.has(vk.QueueComputeBit) {
			idx.compute = i
		}
		if f.canTransfer() {
			score := 0
			if f.has(vk.QueueGraphicsBit) {
				score++
			}
			if f.has(vk.QueueComputeBit) {
				score++
			}
			if score < bestTransferScore {
				bestTransferScore = score
				idx.transfer = i
			}
		}
	}
	return idx
}

// queueCreateInfos requests one queue per distinct family. Roles sharing a
// family index are not requested twice.
func queueCreateInfos(idx queueFamilyIndices) []vk.DeviceQueueCreateInfo {
	families := idx.unique()
	infos := make([]vk.DeviceQueueCreateInfo, 0, len(families))
	for _, family := range families {
		infos = append(infos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}
	return infos
}

// CoreQueue holds the queue handles of the logical device.
type CoreQueue struct {
	families queueFamilyIndices
	graphics vk.Queue
	present  vk.Queue
	compute  vk.Queue
	transfer vk.Queue
}

func newCoreQueue(device vk.Device, families queueFamilyIndices) *CoreQueue {
	q := &CoreQueue{families: families}
	vk.GetDeviceQueue(device, uint32(families.graphics), 0, &q.graphics)
	vk.GetDeviceQueue(device, uint32(families.present), 0, &q.present)
	vk.GetDeviceQueue(device, uint32(families.compute), 0, &q.compute)
	vk.GetDeviceQueue(device, uint32(families.transfer), 0, &q.transfer)
	return q
}

func (q *CoreQueue) Graphics() vk.Queue { return q.graphics }
func (q *CoreQueue) Present() vk.Queue  { return q.present }
func (q *CoreQueue) Compute() vk.Queue  { return q.compute }
func (q *CoreQueue) Transfer() vk.Queue { return q.transfer }

func (q *CoreQueue) GraphicsFamily() uint32 { return uint32(q.families.graphics) }
