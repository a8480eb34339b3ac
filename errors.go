package vkbackend

import (
	"fmt"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Error classes returned by the backend. Callers classify with errors.Is.
var (
	ErrInitializationFailed = errors.New("initialization failed")
	ErrShutdownFailed       = errors.New("shutdown failed")
	ErrVulkanFailed         = errors.New("vulkan call failed")
	ErrInvalidValue         = errors.New("invalid value")
	ErrInvalidState         = errors.New("invalid state")
	ErrNotInitialized       = errors.New("not initialized")
	ErrAccessFailed         = errors.New("access failed")
	ErrSynchronisation      = errors.New("synchronisation failed")
	ErrNotImplemented       = errors.New("not implemented")
	ErrDuplicate            = errors.New("duplicate")
)

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// newError converts a failing vk.Result into an error marked ErrVulkanFailed.
// Success maps to nil.
func newError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	return errors.Mark(
		errors.WithStackDepth(errors.Newf("vulkan error: %s (%d)", resultString(ret), int32(ret)), 1),
		ErrVulkanFailed)
}

// vkCall wraps a failing result with what was being attempted.
func vkCall(ret vk.Result, format string, args ...interface{}) error {
	if ret == vk.Success {
		return nil
	}
	return errors.Wrapf(newError(ret), format, args...)
}

// initFailed marks err as an initialization failure keeping its original class.
func initFailed(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrInitializationFailed)
}

func resultString(ret vk.Result) string {
	if err := vk.Error(ret); err != nil {
		return err.Error()
	}
	return "success"
}

func orPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// checkErr recovers a panic raised through orPanic into *err.
func checkErr(err *error) {
	if v := recover(); v != nil {
		if e, ok := v.(error); ok {
			*err = e
			return
		}
		*err = errors.Newf("%s", fmt.Sprint(v))
	}
}
