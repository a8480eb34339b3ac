package vkbackend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint32(2), cfg.Frames.MaxInFlight)
	assert.Equal(t, PresentModeMailbox, cfg.Swapchain.PresentMode)
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeConfig(t, "backend.toml", `
debug = true

[window]
width = 800
height = 600

[frames]
max_in_flight = 3

[swapchain]
present_mode = "fifo"

[pipeline]
wireframe = true
clear_color = [0.1, 0.2, 0.3, 1.0]

[log]
level = "debug"
format = "json"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, uint32(800), cfg.Window.Width)
	assert.Equal(t, uint32(600), cfg.Window.Height)
	assert.Equal(t, "vkbackend", cfg.Window.Title, "unset keys keep their defaults")
	assert.Equal(t, uint32(3), cfg.Frames.MaxInFlight)
	assert.Equal(t, PresentModeFifo, cfg.Swapchain.PresentMode)
	assert.True(t, cfg.Pipeline.Wireframe)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, cfg.Pipeline.ClearColor)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, "backend.yaml", `
app:
  name: demo
shaders:
  dir: /opt/shaders
device:
  require_discrete: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.App.Name)
	assert.Equal(t, "/opt/shaders", cfg.Shaders.Dir)
	assert.Equal(t, "builtin/object", cfg.Shaders.Object)
	assert.True(t, cfg.Device.RequireDiscrete)

	empty, err := LoadConfig(writeConfig(t, "empty.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), empty)
}

func TestLoadConfigRejects(t *testing.T) {
	for name, c := range map[string]struct{ file, body string }{
		"in flight":     {"a.toml", "[frames]\nmax_in_flight = 4\n"},
		"zero frames":   {"b.yaml", "frames:\n  max_in_flight: 0\n"},
		"present mode":  {"c.toml", "[swapchain]\npresent_mode = \"vsync\"\n"},
		"log format":    {"d.yaml", "log:\n  format: xml\n"},
		"log level":     {"e.toml", "[log]\nlevel = \"loud\"\n"},
		"unknown key":   {"f.toml", "[window]\ndepth = 3\n"},
		"unknown yaml":  {"g.yml", "colour: red\n"},
		"no shader":     {"h.toml", "[shaders]\nobject = \"\"\n"},
		"bad extension": {"i.json", "{}"},
	} {
		_, err := LoadConfig(writeConfig(t, c.file, c.body))
		assertMarked(t, err, ErrInvalidValue, name)
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
