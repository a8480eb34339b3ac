package vkbackend

import (
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

const portabilityEnumerationExtension = "VK_KHR_portability_enumeration"

// loadVulkan points the binding at the platform loader and resolves the global entry points.
func loadVulkan(platform Platform) error {
	proc := platform.GetInstanceProcAddress()
	if proc == nil {
		return errors.Mark(errors.New("platform returned a nil vkGetInstanceProcAddr"), ErrInitializationFailed)
	}
	vk.SetGetInstanceProcAddr(proc)
	if err := vk.Init(); err != nil {
		return initFailed(err, "loading vulkan")
	}
	return nil
}

// instanceSettings computes the instance extensions and layers to enable.
func instanceSettings(platform Platform, debug bool, log *slog.Logger) (extensions, layers []string, err error) {
	available, err := InstanceExtensions()
	if err != nil {
		return nil, nil, initFailed(err, "enumerating instance extensions")
	}
	exts := extensionSet{kind: "instance extensions", required: platform.RequiredInstanceExtensions(), actual: available}
	if debug {
		exts.required = mergeNames(exts.required, debugReportExtension)
	}
	if runtime.GOOS == "darwin" {
		exts.wanted = append(exts.wanted, portabilityEnumerationExtension)
	}
	extensions, skipped, err := exts.enabled()
	if err != nil {
		return nil, nil, err
	}
	if len(skipped) > 0 {
		log.Warn("optional instance extensions unavailable", slog.Any("names", skipped))
	}

	if debug {
		availableLayers, err := ValidationLayers()
		if err != nil {
			return nil, nil, initFailed(err, "enumerating validation layers")
		}
		layerSet := extensionSet{kind: "validation layers", required: []string{validationLayer}, actual: availableLayers}
		if layers, _, err = layerSet.enabled(); err != nil {
			return nil, nil, err
		}
	}
	return extensions, layers, nil
}

// createInstance creates the instance and, in debug mode, the debug report
// callback. Both releases are registered on arena.
func createInstance(appName string, platform Platform, debug bool, log *slog.Logger, arena *releaseArena) (vk.Instance, error) {
	extensions, layers, err := instanceSettings(platform, debug, log)
	if err != nil {
		return nil, err
	}

	var flags vk.InstanceCreateFlags
	for _, name := range extensions {
		if trimString(name) == portabilityEnumerationExtension {
			flags = vk.InstanceCreateFlags(0x00000001) //VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		}
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   safeString(appName),
			PEngineName:        safeString("vkbackend"),
			EngineVersion:      uint32(vk.MakeVersion(1, 0, 0)),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
		Flags:                   flags,
	}, nil, &instance)
	if err := vkCall(ret, "creating instance"); err != nil {
		return nil, initFailed(err, "instance")
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, initFailed(err, "loading instance functions")
	}
	arena.pushFunc("instance", func() {
		vk.DestroyInstance(instance, nil)
	})
	log.Info("vulkan instance created",
		slog.Int("extensions", len(extensions)), slog.Int("layers", len(layers)))

	if debug {
		var callback vk.DebugReportCallback
		reporter := debugReporter{log: log.With("component", "validation")}
		ret := vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType: vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
				vk.DebugReportPerformanceWarningBit),
			PfnCallback: reporter.callback,
		}, nil, &callback)
		if err := vkCall(ret, "creating debug report callback"); err != nil {
			return nil, initFailed(err, "debug callback")
		}
		arena.pushFunc("debug report callback", func() {
			vk.DestroyDebugReportCallback(instance, callback, nil)
		})
		log.Debug("vulkan debug report callback enabled")
	}
	return instance, nil
}

// debugReporter routes validation messages to the structured logger by severity.
type debugReporter struct {
	log *slog.Logger
}

func (d debugReporter) callback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	attrs := []any{slog.String("layer", pLayerPrefix), slog.Int("code", int(messageCode))}
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		d.log.Error(pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		d.log.Warn(pMessage, attrs...)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		d.log.Warn(pMessage, append(attrs, slog.Bool("performance", true))...)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		d.log.Debug(pMessage, attrs...)
	default:
		d.log.Info(pMessage, attrs...)
	}
	return vk.Bool32(vk.False)
}
