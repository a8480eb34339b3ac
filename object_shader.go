package vkbackend

import (
	"io/fs"
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/vulkan-go/vulkan"
)

const (
	globalSet = 0
	objectSet = 1
)

var defaultDiffuse = ObjectUniform{DiffuseColour: mgl32.Vec4{1, 1, 1, 1}}

// ObjectShader is the built in textured object program: its pipeline, the
// global uniform set of each frame slot and the per object sets.
type ObjectShader struct {
	device vk.Device
	log    *slog.Logger
	slots  int

	modules  []shaderModule
	pipeline *CorePipeline

	globalLayout vk.DescriptorSetLayout
	objectLayout vk.DescriptorSetLayout
	globalPool   vk.DescriptorPool
	objectPool   vk.DescriptorPool
	globalSets   [MaxFramesInFlight]vk.DescriptorSet
	globalUBO    *CoreBuffer
	objectUBO    *CoreBuffer

	objects  objectTable
	fallback *Texture
}

type objectShaderParams struct {
	fsys       fs.FS
	name       string
	renderPass vk.RenderPass
	slots      int
	wireframe  bool
}

func newObjectShader(device vk.Device, mem memoryDevice, p objectShaderParams, log *slog.Logger) (_ *ObjectShader, err error) {
	s := &ObjectShader{device: device, log: log, slots: p.slots}
	defer func() {
		if err != nil {
			s.Destroy()
		}
	}()

	for _, stage := range []ShaderStage{StageVertex, StageFragment} {
		module, err := loadShaderModule(device, p.fsys, p.name, stage)
		if err != nil {
			return nil, err
		}
		s.modules = append(s.modules, module)
	}

	if s.globalLayout, err = createSetLayout(device, []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}}); err != nil {
		return nil, err
	}
	objectBindingList := []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}}
	for i := 0; i < MaxObjectTextures; i++ {
		objectBindingList = append(objectBindingList, vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i + 1),
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		})
	}
	if s.objectLayout, err = createSetLayout(device, objectBindingList); err != nil {
		return nil, err
	}

	if s.globalPool, err = createDescriptorPool(device, MaxFramesInFlight, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: MaxFramesInFlight},
	}, 0); err != nil {
		return nil, err
	}
	objectSets := uint32(MaxObjectCount * MaxFramesInFlight)
	if s.objectPool, err = createDescriptorPool(device, objectSets, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: objectSets},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: objectSets * MaxObjectTextures},
	}, vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit)); err != nil {
		return nil, err
	}

	if s.pipeline, err = newCorePipeline(device, pipelineParams{
		renderPass: p.renderPass,
		stages:     s.modules,
		setLayouts: []vk.DescriptorSetLayout{s.globalLayout, s.objectLayout},
		wireframe:  p.wireframe,
	}); err != nil {
		return nil, errors.Wrapf(err, "creating pipeline for %s", p.name)
	}

	uniform := vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	if s.globalUBO, err = newCoreBuffer(mem, MaxFramesInFlight*uniformStride, uniform, hostVisibleCoherent, true); err != nil {
		return nil, err
	}
	if s.objectUBO, err = newCoreBuffer(mem, MaxObjectCount*MaxFramesInFlight*uniformStride, uniform, hostVisibleCoherent, true); err != nil {
		return nil, err
	}

	// global sets always point at their slot's block, so they are written once
	writes := make([]vk.WriteDescriptorSet, 0, MaxFramesInFlight)
	for slot := 0; slot < MaxFramesInFlight; slot++ {
		if s.globalSets[slot], err = allocateSet(device, s.globalPool, s.globalLayout); err != nil {
			return nil, err
		}
		writes = append(writes, bufferWrite(s.globalSets[slot], 0, s.globalUBO.Handle(),
			globalOffset(slot), vk.DeviceSize(unsafe.Sizeof(GlobalUniform{}))))
	}
	vk.UpdateDescriptorSets(device, uint32(len(writes)), writes, 0, nil)

	log.Info("object shader ready", slog.String("name", p.name), slog.Bool("wireframe", p.wireframe))
	return s, nil
}

func globalOffset(slot int) vk.DeviceSize {
	return vk.DeviceSize(slot) * uniformStride
}

func objectOffset(id ObjectID, slot int) vk.DeviceSize {
	return (vk.DeviceSize(id)*MaxFramesInFlight + vk.DeviceSize(slot)) * uniformStride
}

// setFallback sets the texture drawn in place of missing ones.
func (s *ObjectShader) setFallback(tex *Texture) {
	s.fallback = tex
}

// use binds the pipeline on cmd.
func (s *ObjectShader) use(cmd vk.CommandBuffer) {
	s.pipeline.Bind(cmd)
}

// updateGlobal writes g into slot's block and binds the global set.
func (s *ObjectShader) updateGlobal(cmd vk.CommandBuffer, slot int, g GlobalUniform) error {
	if err := s.globalUBO.LoadData(globalOffset(slot), bytesOf(&g)); err != nil {
		return errors.Wrap(err, "writing global uniforms")
	}
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, s.pipeline.Layout(),
		globalSet, 1, s.globalSets[slot:slot+1], 0, nil)
	return nil
}

// updateObject pushes the model matrix, brings the object's set for slot up
// to date and draws its geometry, if any. Only the first draw of an object
// in a frame writes its set; later draws in the same frame reuse it.
func (s *ObjectShader) updateObject(cmd vk.CommandBuffer, slot int, frame uint64, data GeometryRenderData, geometry *geometryBuffers) error {
	obj, err := s.objects.get(data.ObjectID)
	if err != nil {
		return err
	}

	model := data.Model
	vk.CmdPushConstants(cmd, s.pipeline.Layout(), vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		0, pushConstantSize, unsafe.Pointer(&model))

	set := obj.sets[slot]
	if !obj.boundIn(slot, frame) {
		uniform := defaultDiffuse
		if err := s.objectUBO.LoadData(objectOffset(data.ObjectID, slot), bytesOf(&uniform)); err != nil {
			return errors.Wrap(err, "writing object uniforms")
		}
		if updates := obj.pending(slot, data.Textures, s.fallback); len(updates) > 0 {
			writes := make([]vk.WriteDescriptorSet, 0, len(updates))
			for _, u := range updates {
				if u.texture == nil {
					writes = append(writes, bufferWrite(set, u.binding, s.objectUBO.Handle(),
						objectOffset(data.ObjectID, slot), vk.DeviceSize(unsafe.Sizeof(ObjectUniform{}))))
					continue
				}
				writes = append(writes, samplerWrite(set, u.binding, u.texture))
			}
			vk.UpdateDescriptorSets(s.device, uint32(len(writes)), writes, 0, nil)
			obj.commit(slot, updates)
		}
		obj.markBound(slot, frame)
	}
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, s.pipeline.Layout(),
		objectSet, 1, []vk.DescriptorSet{set}, 0, nil)

	if data.Geometry != nil {
		geometry.draw(cmd, data.Geometry)
	}
	return nil
}

// AcquireResources reserves an object id and allocates its set for every frame slot.
func (s *ObjectShader) AcquireResources() (ObjectID, error) {
	id, err := s.objects.acquire()
	if err != nil {
		return 0, err
	}
	obj := &s.objects.objects[id]
	for slot := 0; slot < s.slots; slot++ {
		set, err := allocateSet(s.device, s.objectPool, s.objectLayout)
		if err != nil {
			_ = s.ReleaseResources(id)
			return 0, errors.Wrapf(err, "allocating descriptor sets for object %d", id)
		}
		obj.sets[slot] = set
	}
	return id, nil
}

// ReleaseResources frees the object's sets. The caller must make sure no
// frame in flight still uses them.
func (s *ObjectShader) ReleaseResources(id ObjectID) error {
	obj, err := s.objects.get(id)
	if err != nil {
		return err
	}
	var sets []vk.DescriptorSet
	for slot := 0; slot < s.slots; slot++ {
		if obj.sets[slot] != nil {
			sets = append(sets, obj.sets[slot])
		}
	}
	var ret vk.Result
	if len(sets) > 0 {
		ret = vk.FreeDescriptorSets(s.device, s.objectPool, uint32(len(sets)), &sets[0])
	}
	if err := s.objects.release(id); err != nil {
		return err
	}
	return vkCall(ret, "freeing descriptor sets of object %d", id)
}

// Destroy releases everything the shader created. It tolerates a partially
// built shader.
func (s *ObjectShader) Destroy() {
	if s.objectUBO != nil {
		s.objectUBO.Destroy()
		s.objectUBO = nil
	}
	if s.globalUBO != nil {
		s.globalUBO.Destroy()
		s.globalUBO = nil
	}
	if s.pipeline != nil {
		s.pipeline.Destroy()
		s.pipeline = nil
	}
	for i := range s.modules {
		s.modules[i].destroy(s.device)
	}
	s.modules = nil
	// destroying the pools frees every set allocated from them
	if s.objectPool != nil {
		vk.DestroyDescriptorPool(s.device, s.objectPool, nil)
		s.objectPool = nil
	}
	if s.globalPool != nil {
		vk.DestroyDescriptorPool(s.device, s.globalPool, nil)
		s.globalPool = nil
	}
	if s.objectLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(s.device, s.objectLayout, nil)
		s.objectLayout = vk.NullDescriptorSetLayout
	}
	if s.globalLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(s.device, s.globalLayout, nil)
		s.globalLayout = vk.NullDescriptorSetLayout
	}
}
