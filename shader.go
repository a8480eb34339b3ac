package vkbackend

import (
	"encoding/binary"
	"io/fs"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// ShaderStage is the stage suffix of a compiled shader file.
type ShaderStage string

const (
	StageVertex   ShaderStage = "vert"
	StageFragment ShaderStage = "frag"
)

const (
	spirvMagic      = 0x07230203
	shaderEntryName = "main"
)

func (s ShaderStage) flag() vk.ShaderStageFlagBits {
	if s == StageFragment {
		return vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageVertexBit
}

// shaderPath names the SPIR-V file of one stage, e.g. builtin/object.vert.spv.
func shaderPath(name string, stage ShaderStage) string {
	return name + "." + string(stage) + ".spv"
}

// readSPIRV loads a SPIR-V blob from fsys and returns its words.
func readSPIRV(fsys fs.FS, path string) ([]uint32, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "reading shader %s", path), ErrAccessFailed)
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errors.Mark(errors.Newf("shader %s is %d bytes, not a whole number of words", path, len(data)), ErrInvalidValue)
	}
	if magic := binary.LittleEndian.Uint32(data); magic != spirvMagic {
		return nil, errors.Mark(errors.Newf("shader %s has magic 0x%08x, not SPIR-V", path, magic), ErrInvalidValue)
	}
	return sliceUint32(data), nil
}

// shaderModule is one compiled stage of a shader program.
type shaderModule struct {
	stage  ShaderStage
	module vk.ShaderModule
}

func loadShaderModule(device vk.Device, fsys fs.FS, name string, stage ShaderStage) (shaderModule, error) {
	path := shaderPath(name, stage)
	code, err := readSPIRV(fsys, path)
	if err != nil {
		return shaderModule{}, err
	}
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}, nil, &module)
	if err := vkCall(ret, "creating shader module %s", path); err != nil {
		return shaderModule{}, err
	}
	return shaderModule{stage: stage, module: module}, nil
}

func (s shaderModule) stageInfo() vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  s.stage.flag(),
		Module: s.module,
		PName:  safeString(shaderEntryName),
	}
}

func (s *shaderModule) destroy(device vk.Device) {
	if s.module != vk.NullShaderModule {
		vk.DestroyShaderModule(device, s.module, nil)
		s.module = vk.NullShaderModule
	}
}
