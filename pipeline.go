package vkbackend

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// pushConstantSize is the per draw model matrix.
const pushConstantSize = 64

// Vertex3D is the vertex layout every pipeline consumes.
type Vertex3D struct {
	Position [3]float32
	TexCoord [2]float32
}

var vertexStride = uint32(unsafe.Sizeof(Vertex3D{}))

func vertexBinding() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    vertexStride,
		InputRate: vk.VertexInputRateVertex,
	}
}

func vertexAttributes() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex3D{}.Position))},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex3D{}.TexCoord))},
	}
}

func polygonMode(wireframe bool) vk.PolygonMode {
	if wireframe {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

type pipelineParams struct {
	renderPass vk.RenderPass
	stages     []shaderModule
	setLayouts []vk.DescriptorSetLayout
	wireframe  bool
}

// CorePipeline is an immutable graphics pipeline and its layout.
type CorePipeline struct {
	device vk.Device
	handle vk.Pipeline
	layout vk.PipelineLayout
}

func newCorePipeline(device vk.Device, p pipelineParams) (_ *CorePipeline, err error) {
	cp := &CorePipeline{device: device}
	defer func() {
		if err != nil {
			cp.Destroy()
		}
	}()

	ret := vk.CreatePipelineLayout(device, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(p.setLayouts)),
		PSetLayouts:            p.setLayouts,
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit),
			Size:       pushConstantSize,
		}},
	}, nil, &cp.layout)
	if err := vkCall(ret, "vkCreatePipelineLayout"); err != nil {
		return nil, err
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(p.stages))
	for i, s := range p.stages {
		stages[i] = s.stageInfo()
	}
	attributes := vertexAttributes()
	dynamic := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}

	info := vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   1,
			PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{vertexBinding()},
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology:               vk.PrimitiveTopologyTriangleList,
			PrimitiveRestartEnable: vk.False,
		},
		// viewport and scissor are dynamic, only the counts matter
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
			DepthClampEnable:        vk.False,
			RasterizerDiscardEnable: vk.False,
			PolygonMode:             polygonMode(p.wireframe),
			CullMode:                vk.CullModeFlags(vk.CullModeBackBit),
			FrontFace:               vk.FrontFaceCounterClockwise,
			DepthBiasEnable:         vk.False,
			LineWidth:               1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
			SampleShadingEnable:  vk.False,
			MinSampleShading:     1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  vk.True,
			DepthWriteEnable: vk.True,
			DepthCompareOp:   vk.CompareOpLess,
			MaxDepthBounds:   1,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOpEnable:   vk.False,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				BlendEnable:         vk.True,
				SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
				DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				ColorBlendOp:        vk.BlendOpAdd,
				SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
				DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				AlphaBlendOp:        vk.BlendOpAdd,
				ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
					vk.ColorComponentBBit | vk.ColorComponentABit),
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamic)),
			PDynamicStates:    dynamic,
		},
		Layout:            cp.layout,
		RenderPass:        p.renderPass,
		Subpass:           0,
		BasePipelineIndex: -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	ret = vk.CreateGraphicsPipelines(device, nil, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if err := vkCall(ret, "vkCreateGraphicsPipelines"); err != nil {
		return nil, err
	}
	cp.handle = pipelines[0]
	return cp, nil
}

func (p *CorePipeline) Handle() vk.Pipeline       { return p.handle }
func (p *CorePipeline) Layout() vk.PipelineLayout { return p.layout }

func (p *CorePipeline) Bind(cmd vk.CommandBuffer) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, p.handle)
}

func (p *CorePipeline) Destroy() {
	if p.handle != vk.NullPipeline {
		vk.DestroyPipeline(p.device, p.handle, nil)
		p.handle = vk.NullPipeline
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(p.device, p.layout, nil)
		p.layout = vk.NullPipelineLayout
	}
}
