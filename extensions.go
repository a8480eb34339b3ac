package vkbackend

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

const (
	swapchainExtension   = "VK_KHR_swapchain"
	debugReportExtension = "VK_EXT_debug_report"
	validationLayer      = "VK_LAYER_KHRONOS_validation"
)

// InstanceExtensions gets a list of instance extensions available on the platform.
func InstanceExtensions() (names []string, err error) {
	defer checkErr(&err)

	var count uint32
	ret := vk.EnumerateInstanceExtensionProperties("", &count, nil)
	orPanic(newError(ret))
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateInstanceExtensionProperties("", &count, list)
	orPanic(newError(ret))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, err
}

// DeviceExtensions gets a list of extensions available on the provided physical device.
func DeviceExtensions(gpu vk.PhysicalDevice) (names []string, err error) {
	defer checkErr(&err)

	var count uint32
	ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)
	orPanic(newError(ret))
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list)
	orPanic(newError(ret))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, err
}

// ValidationLayers gets a list of validation layers available on the platform.
func ValidationLayers() (names []string, err error) {
	defer checkErr(&err)

	var count uint32
	ret := vk.EnumerateInstanceLayerProperties(&count, nil)
	orPanic(newError(ret))
	list := make([]vk.LayerProperties, count)
	ret = vk.EnumerateInstanceLayerProperties(&count, list)
	orPanic(newError(ret))
	for _, layer := range list {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, err
}

// extensionSet resolves the names to enable against what the driver reports.
// Required names must all be present; wanted names are enabled when available.
type extensionSet struct {
	kind     string
	required []string
	wanted   []string
	actual   []string
}

func (e extensionSet) missingRequired() []string {
	return missingNames(e.actual, e.required)
}

// enabled returns the NUL terminated names to pass to the create info, or an
// error naming every missing required entry.
func (e extensionSet) enabled() ([]string, []string, error) {
	if missing := e.missingRequired(); len(missing) > 0 {
		return nil, nil, errors.Mark(
			errors.Newf("missing required %s: %v", e.kind, missing), ErrInitializationFailed)
	}
	names := mergeNames(nil, e.required...)
	skipped := missingNames(e.actual, e.wanted)
	for _, want := range e.wanted {
		if len(missingNames(e.actual, []string{want})) == 0 {
			names = mergeNames(names, want)
		}
	}
	return safeStrings(names), skipped, nil
}
