package vkbackend

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// MaxFramesInFlight sizes every per-slot array. The runtime depth is Config.Frames.MaxInFlight.
const MaxFramesInFlight = 3

const (
	PresentModeMailbox   = "mailbox"
	PresentModeFifo      = "fifo"
	PresentModeImmediate = "immediate"
)

// Config holds every tunable of the backend and the demo window. It is read
// from TOML or YAML; zero values are filled from DefaultConfig by LoadConfig.
type Config struct {
	App       AppConfig       `toml:"app" yaml:"app"`
	Window    WindowConfig    `toml:"window" yaml:"window"`
	Debug     bool            `toml:"debug" yaml:"debug"`
	Frames    FramesConfig    `toml:"frames" yaml:"frames"`
	Swapchain SwapchainConfig `toml:"swapchain" yaml:"swapchain"`
	Device    DeviceConfig    `toml:"device" yaml:"device"`
	Pipeline  PipelineConfig  `toml:"pipeline" yaml:"pipeline"`
	Shaders   ShadersConfig   `toml:"shaders" yaml:"shaders"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

type AppConfig struct {
	Name string `toml:"name" yaml:"name"`
}

type WindowConfig struct {
	Title     string `toml:"title" yaml:"title"`
	Width     uint32 `toml:"width" yaml:"width"`
	Height    uint32 `toml:"height" yaml:"height"`
	Resizable bool   `toml:"resizable" yaml:"resizable"`
}

type FramesConfig struct {
	// MaxInFlight bounds how many frames the CPU may record ahead of the GPU.
	MaxInFlight uint32 `toml:"max_in_flight" yaml:"max_in_flight"`
}

type SwapchainConfig struct {
	PresentMode string `toml:"present_mode" yaml:"present_mode"`
}

type DeviceConfig struct {
	RequireDiscrete bool `toml:"require_discrete" yaml:"require_discrete"`
}

type PipelineConfig struct {
	Wireframe  bool       `toml:"wireframe" yaml:"wireframe"`
	ClearColor [4]float32 `toml:"clear_color" yaml:"clear_color"`
}

type ShadersConfig struct {
	Dir    string `toml:"dir" yaml:"dir"`
	Object string `toml:"object" yaml:"object"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	File   string `toml:"file" yaml:"file"`
}

func DefaultConfig() Config {
	return Config{
		App:    AppConfig{Name: "vkbackend"},
		Window: WindowConfig{Title: "vkbackend", Width: 1280, Height: 720, Resizable: true},
		Frames: FramesConfig{MaxInFlight: 2},
		Swapchain: SwapchainConfig{
			PresentMode: PresentModeMailbox,
		},
		Pipeline: PipelineConfig{ClearColor: [4]float32{0, 0, 0.2, 1}},
		Shaders:  ShadersConfig{Dir: "assets/shaders", Object: "builtin/object"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a .toml, .yaml or .yml file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(&cfg); errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return cfg, errors.Mark(errors.Newf("unsupported config format %q", filepath.Ext(path)), ErrInvalidValue)
	}
	if err != nil {
		return cfg, errors.Mark(errors.Wrapf(err, "decoding config %s", path), ErrInvalidValue)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the backend cannot honour.
func (c Config) Validate() error {
	if c.Frames.MaxInFlight < 1 || c.Frames.MaxInFlight > MaxFramesInFlight {
		return errors.Mark(errors.Newf("frames.max_in_flight must be in [1, %d], got %d",
			MaxFramesInFlight, c.Frames.MaxInFlight), ErrInvalidValue)
	}
	switch c.Swapchain.PresentMode {
	case PresentModeMailbox, PresentModeFifo, PresentModeImmediate:
	default:
		return errors.Mark(errors.Newf("unknown swapchain.present_mode %q", c.Swapchain.PresentMode), ErrInvalidValue)
	}
	if c.Shaders.Object == "" {
		return errors.Mark(errors.New("shaders.object must name the object shader"), ErrInvalidValue)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return errors.Mark(errors.Newf("unknown log.format %q", c.Log.Format), ErrInvalidValue)
	}
	return nil
}
