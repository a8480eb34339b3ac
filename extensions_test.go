package vkbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionSetEnabled(t *testing.T) {
	set := extensionSet{
		kind:     "instance extensions",
		required: []string{"VK_KHR_surface", "VK_KHR_xcb_surface"},
		wanted:   []string{"VK_KHR_portability_enumeration", "VK_KHR_get_surface_capabilities2"},
		actual:   []string{"VK_KHR_surface\x00", "VK_KHR_xcb_surface\x00", "VK_KHR_get_surface_capabilities2\x00"},
	}
	names, skipped, err := set.enabled()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"VK_KHR_surface\x00",
		"VK_KHR_xcb_surface\x00",
		"VK_KHR_get_surface_capabilities2\x00",
	}, names)
	assert.Equal(t, []string{"VK_KHR_portability_enumeration"}, skipped)
}

func TestExtensionSetMissingRequired(t *testing.T) {
	set := extensionSet{
		kind:     "validation layers",
		required: []string{validationLayer},
		actual:   []string{"VK_LAYER_LUNARG_api_dump"},
	}
	_, _, err := set.enabled()
	assertMarked(t, err, ErrInitializationFailed)
	assert.Contains(t, err.Error(), validationLayer)
}
