package vkbackend

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// InvalidGeneration marks a descriptor that has never been written, and a
// texture whose contents are not versioned.
const InvalidGeneration = math.MaxUint32

const (
	// MaxObjectCount bounds the objects the object shader can draw at once.
	MaxObjectCount = 1024
	// MaxObjectTextures is the number of samplers in the object descriptor set.
	MaxObjectTextures = 1
	// objectBindings is the object UBO followed by the samplers.
	objectBindings = 1 + MaxObjectTextures
)

// ObjectID names an object's descriptor resources in the object shader.
type ObjectID uint32

// descriptorState remembers, per frame slot, which resource and which
// generation of it a binding was last written with.
type descriptorState struct {
	generations [MaxFramesInFlight]uint32
	ids         [MaxFramesInFlight]uint32
}

func newDescriptorState() descriptorState {
	var s descriptorState
	s.reset()
	return s
}

func (s *descriptorState) reset() {
	for i := range s.generations {
		s.generations[i] = InvalidGeneration
		s.ids[i] = InvalidGeneration
	}
}

// stale reports whether slot must be rewritten to reference generation of
// resource id. Unversioned resources are always rewritten.
func (s *descriptorState) stale(slot int, id, generation uint32) bool {
	return generation == InvalidGeneration ||
		s.generations[slot] != generation ||
		s.ids[slot] != id
}

func (s *descriptorState) record(slot int, id, generation uint32) {
	s.generations[slot] = generation
	s.ids[slot] = id
}

// descriptorUpdate is one pending write of an object's set. texture is nil
// for the uniform buffer binding.
type descriptorUpdate struct {
	binding uint32
	texture *Texture
}

// objectDescriptors is the per object state of the object shader.
type objectDescriptors struct {
	inUse bool
	sets  [MaxFramesInFlight]vk.DescriptorSet
	state [objectBindings]descriptorState
	// bound holds one past the frame number that last bound each slot's set.
	bound [MaxFramesInFlight]uint64
}

func (o *objectDescriptors) reset() {
	for i := range o.state {
		o.state[i].reset()
	}
	o.bound = [MaxFramesInFlight]uint64{}
}

// boundIn reports whether slot's set is already referenced by frame's
// command buffer. Such a set must not be written again until the frame
// completes, so later draws of the object in that frame reuse it.
func (o *objectDescriptors) boundIn(slot int, frame uint64) bool {
	return o.bound[slot] == frame+1
}

func (o *objectDescriptors) markBound(slot int, frame uint64) {
	o.bound[slot] = frame + 1
}

// pending lists the writes slot needs before drawing with textures. A nil
// texture, or one without a generation, is replaced by fallback.
func (o *objectDescriptors) pending(slot int, textures [MaxObjectTextures]*Texture, fallback *Texture) []descriptorUpdate {
	var updates []descriptorUpdate
	if o.state[0].generations[slot] == InvalidGeneration {
		updates = append(updates, descriptorUpdate{binding: 0})
	}
	for i, tex := range textures {
		if tex == nil || tex.generation == InvalidGeneration {
			tex = fallback
		}
		if tex == nil {
			continue
		}
		if o.state[i+1].stale(slot, tex.id, tex.generation) {
			updates = append(updates, descriptorUpdate{binding: uint32(i + 1), texture: tex})
		}
	}
	return updates
}

// commit records that updates were written to slot.
func (o *objectDescriptors) commit(slot int, updates []descriptorUpdate) {
	for _, u := range updates {
		if u.texture == nil {
			o.state[u.binding].record(slot, 0, 0)
			continue
		}
		o.state[u.binding].record(slot, u.texture.id, u.texture.generation)
	}
}

// objectTable hands out object ids, lowest free first.
type objectTable struct {
	objects [MaxObjectCount]objectDescriptors
}

func (t *objectTable) acquire() (ObjectID, error) {
	for i := range t.objects {
		if !t.objects[i].inUse {
			t.objects[i].inUse = true
			t.objects[i].reset()
			return ObjectID(i), nil
		}
	}
	return 0, errors.Mark(errors.Newf("all %d object slots are in use", MaxObjectCount), ErrInvalidState)
}

func (t *objectTable) get(id ObjectID) (*objectDescriptors, error) {
	if int(id) >= len(t.objects) || !t.objects[id].inUse {
		return nil, errors.Mark(errors.Newf("object %d is not acquired", id), ErrInvalidValue)
	}
	return &t.objects[id], nil
}

func (t *objectTable) release(id ObjectID) error {
	obj, err := t.get(id)
	if err != nil {
		return err
	}
	obj.inUse = false
	obj.sets = [MaxFramesInFlight]vk.DescriptorSet{}
	obj.reset()
	return nil
}

func createSetLayout(device vk.Device, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	var layout vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &layout)
	if err := vkCall(ret, "vkCreateDescriptorSetLayout"); err != nil {
		return vk.NullDescriptorSetLayout, err
	}
	return layout, nil
}

func createDescriptorPool(device vk.Device, maxSets uint32, sizes []vk.DescriptorPoolSize,
	flags vk.DescriptorPoolCreateFlags) (vk.DescriptorPool, error) {
	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         flags,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &pool)
	if err := vkCall(ret, "vkCreateDescriptorPool"); err != nil {
		return nil, err
	}
	return pool, nil
}

func allocateSet(device vk.Device, pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	var set vk.DescriptorSet
	ret := vk.AllocateDescriptorSets(device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}, &set)
	if err := vkCall(ret, "vkAllocateDescriptorSets"); err != nil {
		return nil, err
	}
	return set, nil
}

func bufferWrite(set vk.DescriptorSet, binding uint32, buffer vk.Buffer, offset, size vk.DeviceSize) vk.WriteDescriptorSet {
	return vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buffer,
			Offset: offset,
			Range:  size,
		}},
	}
}

func samplerWrite(set vk.DescriptorSet, binding uint32, tex *Texture) vk.WriteDescriptorSet {
	return vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			Sampler:     tex.Sampler(),
			ImageView:   tex.View(),
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	}
}
