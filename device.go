package vkbackend

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// physicalDeviceInfo is everything gathered about one GPU before scoring.
type physicalDeviceInfo struct {
	handle           vk.PhysicalDevice
	name             string
	deviceType       vk.PhysicalDeviceType
	apiVersion       uint32
	driverVersion    uint32
	families         []queueFamilyInfo
	extensions       []string
	anisotropy       bool
	maxAnisotropy    float32
	formatCount      int
	presentModeCount int
	memory           vk.PhysicalDeviceMemoryProperties
}

type deviceRequirements struct {
	graphics   bool
	present    bool
	compute    bool
	transfer   bool
	anisotropy bool
	discrete   bool
	extensions []string
}

func newDeviceRequirements(cfg DeviceConfig) deviceRequirements {
	return deviceRequirements{
		graphics:   true,
		present:    true,
		compute:    true,
		transfer:   true,
		anisotropy: true,
		discrete:   cfg.RequireDiscrete,
		extensions: []string{swapchainExtension},
	}
}

// suitability checks info against req and returns the resolved queue
// families, or an error describing the first unmet requirement.
func suitability(info physicalDeviceInfo, req deviceRequirements) (queueFamilyIndices, error) {
	families := resolveQueueFamilies(info.families)
	switch {
	case req.discrete && info.deviceType != vk.PhysicalDeviceTypeDiscreteGpu:
		return families, errors.New("not a discrete GPU")
	case req.graphics && families.graphics == noFamily:
		return families, errors.New("no graphics queue")
	case req.present && families.present == noFamily:
		return families, errors.New("no present queue")
	case req.compute && families.compute == noFamily:
		return families, errors.New("no compute queue")
	case req.transfer && families.transfer == noFamily:
		return families, errors.New("no transfer queue")
	case req.anisotropy && !info.anisotropy:
		return families, errors.New("sampler anisotropy unsupported")
	}
	if missing := missingNames(info.extensions, req.extensions); len(missing) > 0 {
		return families, errors.Newf("missing device extensions %v", missing)
	}
	if info.formatCount == 0 || info.presentModeCount == 0 {
		return families, errors.New("incomplete swapchain support")
	}
	return families, nil
}

// selectPhysicalDevice returns the index of the device to use. Among the
// suitable devices the first one with a transfer family separate from
// graphics wins, otherwise the first suitable device in enumeration order.
func selectPhysicalDevice(infos []physicalDeviceInfo, req deviceRequirements, log *slog.Logger) (int, queueFamilyIndices, error) {
	first := -1
	var firstFamilies queueFamilyIndices
	for i, info := range infos {
		families, err := suitability(info, req)
		if err != nil {
			log.Debug("physical device rejected", slog.String("device", info.name), slog.String("reason", err.Error()))
			continue
		}
		if families.separateTransfer() {
			return i, families, nil
		}
		if first < 0 {
			first, firstFamilies = i, families
		}
	}
	if first < 0 {
		return -1, firstFamilies, errors.Mark(
			errors.Newf("none of %d physical devices meets the requirements", len(infos)), ErrInitializationFailed)
	}
	return first, firstFamilies, nil
}

// logicalDeviceFactory creates the logical device for the chosen GPU.
type logicalDeviceFactory func(info *physicalDeviceInfo, families queueFamilyIndices) (vk.Device, error)

// openDevice selects a GPU and creates its logical device. Nothing is
// created when no GPU qualifies.
func openDevice(infos []physicalDeviceInfo, req deviceRequirements, create logicalDeviceFactory, log *slog.Logger) (int, queueFamilyIndices, vk.Device, error) {
	idx, families, err := selectPhysicalDevice(infos, req, log)
	if err != nil {
		return -1, families, nil, err
	}
	info := &infos[idx]
	log.Info("physical device selected",
		slog.String("name", info.name),
		slog.String("type", deviceTypeName(info.deviceType)),
		slog.String("driver", versionString(info.driverVersion)),
		slog.String("api", versionString(info.apiVersion)),
		slog.Int("graphics_family", families.graphics),
		slog.Int("present_family", families.present),
		slog.Int("transfer_family", families.transfer),
		slog.Int("compute_family", families.compute))

	device, err := create(info, families)
	if err != nil {
		return idx, families, nil, initFailed(err, "creating logical device on %s", info.name)
	}
	return idx, families, device, nil
}

func deviceTypeName(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	}
	return "other"
}

func versionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22, (v>>12)&0x3ff, v&0xfff)
}

// gatherPhysicalDevice queries gpu for the properties used by suitability.
func gatherPhysicalDevice(gpu vk.PhysicalDevice, surface vk.Surface) (physicalDeviceInfo, error) {
	info := physicalDeviceInfo{handle: gpu}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()
	props.Limits.Deref()
	info.name = vk.ToString(props.DeviceName[:])
	info.deviceType = props.DeviceType
	info.apiVersion = props.ApiVersion
	info.driverVersion = props.DriverVersion
	info.maxAnisotropy = props.Limits.MaxSamplerAnisotropy

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(gpu, &features)
	features.Deref()
	info.anisotropy = features.SamplerAnisotropy == vk.True

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, families)
	for i := range families {
		families[i].Deref()
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(gpu, uint32(i), surface, &supported)
		info.families = append(info.families, queueFamilyInfo{
			flags:   families[i].QueueFlags,
			count:   families[i].QueueCount,
			present: supported.B(),
		})
	}

	extensions, err := DeviceExtensions(gpu)
	if err != nil {
		return info, err
	}
	info.extensions = extensions

	var formatCount, modeCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formatCount, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &modeCount, nil)
	info.formatCount = int(formatCount)
	info.presentModeCount = int(modeCount)

	vk.GetPhysicalDeviceMemoryProperties(gpu, &info.memory)
	info.memory.Deref()
	return info, nil
}

// findMemoryType returns the first memory type allowed by typeFilter whose
// property flags intersect the requested flags.
func findMemoryType(props vk.PhysicalDeviceMemoryProperties, typeFilter uint32, flags vk.MemoryPropertyFlags) (uint32, error) {
	count := props.MemoryTypeCount
	if count > vk.MaxMemoryTypes {
		count = vk.MaxMemoryTypes
	}
	for i := uint32(0); i < count; i++ {
		props.MemoryTypes[i].Deref()
		if typeFilter&(1<<i) != 0 && props.MemoryTypes[i].PropertyFlags&flags != 0 {
			return i, nil
		}
	}
	return 0, errors.Mark(errors.Newf("no memory type for filter %#x with flags %#x", typeFilter, uint32(flags)), ErrInvalidValue)
}

// depthFormatCandidates are probed most precise first.
var depthFormatCandidates = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

// chooseDepthFormat returns the first candidate usable as a depth attachment
// with linear or optimal tiling.
func chooseDepthFormat(candidates []vk.Format, query func(vk.Format) vk.FormatProperties) (vk.Format, error) {
	required := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, format := range candidates {
		props := query(format)
		if props.LinearTilingFeatures&required == required || props.OptimalTilingFeatures&required == required {
			return format, nil
		}
	}
	return vk.FormatUndefined, errors.Mark(errors.New("no supported depth format"), ErrInitializationFailed)
}

// CoreDevice is the device context: the chosen GPU, the logical device and its queues.
type CoreDevice struct {
	info        physicalDeviceInfo
	handle      vk.Device
	queues      *CoreQueue
	depthFormat vk.Format
	surface     vk.Surface
}

// newCoreDevice selects a GPU for surface and creates the logical device.
// The device release is registered on arena.
func newCoreDevice(instance vk.Instance, surface vk.Surface, cfg DeviceConfig, log *slog.Logger, arena *releaseArena) (*CoreDevice, error) {
	var gpuCount uint32
	if err := vkCall(vk.EnumeratePhysicalDevices(instance, &gpuCount, nil), "counting physical devices"); err != nil {
		return nil, initFailed(err, "physical devices")
	}
	if gpuCount == 0 {
		return nil, errors.Mark(errors.New("no physical devices found"), ErrInitializationFailed)
	}
	gpus := make([]vk.PhysicalDevice, gpuCount)
	if err := vkCall(vk.EnumeratePhysicalDevices(instance, &gpuCount, gpus), "enumerating physical devices"); err != nil {
		return nil, initFailed(err, "physical devices")
	}

	infos := make([]physicalDeviceInfo, 0, len(gpus))
	for _, gpu := range gpus {
		info, err := gatherPhysicalDevice(gpu, surface)
		if err != nil {
			log.Warn("skipping physical device", slog.Any("error", err))
			continue
		}
		infos = append(infos, info)
	}

	idx, families, device, err := openDevice(infos, newDeviceRequirements(cfg), createLogicalDevice, log)
	if err != nil {
		return nil, err
	}
	arena.pushFunc("logical device", func() {
		vk.DestroyDevice(device, nil)
	})

	core := &CoreDevice{
		info:    infos[idx],
		handle:  device,
		queues:  newCoreQueue(device, families),
		surface: surface,
	}
	core.depthFormat, err = chooseDepthFormat(depthFormatCandidates, core.formatProperties)
	if err != nil {
		return nil, err
	}
	log.Debug("depth format selected", slog.Int("format", int(core.depthFormat)))
	return core, nil
}

func createLogicalDevice(info *physicalDeviceInfo, families queueFamilyIndices) (vk.Device, error) {
	queueInfos := queueCreateInfos(families)
	extensions := safeStrings([]string{swapchainExtension})
	if len(missingNames(info.extensions, []string{"VK_KHR_portability_subset"})) == 0 {
		extensions = append(extensions, safeString("VK_KHR_portability_subset"))
	}
	var device vk.Device
	ret := vk.CreateDevice(info.handle, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy: vk.True,
		}},
	}, nil, &device)
	if err := vkCall(ret, "vkCreateDevice"); err != nil {
		return nil, err
	}
	return device, nil
}

func (d *CoreDevice) formatProperties(format vk.Format) vk.FormatProperties {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.info.handle, format, &props)
	props.Deref()
	return props
}

func (d *CoreDevice) Handle() vk.Device                 { return d.handle }
func (d *CoreDevice) PhysicalDevice() vk.PhysicalDevice { return d.info.handle }
func (d *CoreDevice) Queues() *CoreQueue                { return d.queues }
func (d *CoreDevice) DepthFormat() vk.Format            { return d.depthFormat }
func (d *CoreDevice) Name() string                      { return d.info.name }

func (d *CoreDevice) MemoryProperties() vk.PhysicalDeviceMemoryProperties {
	return d.info.memory
}

// MaxAnisotropy is the sampler anisotropy limit reported by the GPU.
func (d *CoreDevice) MaxAnisotropy() float32 {
	return d.info.maxAnisotropy
}

func (d *CoreDevice) WaitIdle() error {
	return vkCall(vk.DeviceWaitIdle(d.handle), "vkDeviceWaitIdle")
}
