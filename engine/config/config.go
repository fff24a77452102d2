package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/vkcoaster/engine/core"
)

type Application struct {
	Name     string `toml:"name"`
	Width    uint32 `toml:"width"`
	Height   uint32 `toml:"height"`
	PosX     int32  `toml:"pos_x"`
	PosY     int32  `toml:"pos_y"`
	LogLevel string `toml:"log_level"`
	// Zero means unlimited.
	FrameLimit float64 `toml:"frame_limit"`
}

type Renderer struct {
	FramesInFlight uint32     `toml:"frames_in_flight"`
	APIVersion     string     `toml:"api_version"`
	Validation     bool       `toml:"validation"`
	ClearColor     [4]float32 `toml:"clear_color"`
	VSync          bool       `toml:"vsync"`
}

type Shaders struct {
	AssetsDir   string   `toml:"assets_dir"`
	IncludeDirs []string `toml:"include_dirs"`
	Glslc       string   `toml:"glslc"`
	HotReload   bool     `toml:"hot_reload"`
}

type Config struct {
	Application Application `toml:"application"`
	Renderer    Renderer    `toml:"renderer"`
	Shaders     Shaders     `toml:"shaders"`
}

func Default() *Config {
	return &Config{
		Application: Application{
			Name:     "vkcoaster",
			Width:    1600,
			Height:   900,
			PosX:     100,
			PosY:     100,
			LogLevel: "info",
		},
		Renderer: Renderer{
			FramesInFlight: 2,
			APIVersion:     "1.0",
			Validation:     true,
			ClearColor:     [4]float32{0.0, 0.0, 0.2, 1.0},
			VSync:          true,
		},
		Shaders: Shaders{
			AssetsDir:   "assets",
			IncludeDirs: []string{"assets/shaders/include"},
			Glslc:       "glslc",
			HotReload:   true,
		},
	}
}

// Load reads a TOML file on top of the defaults. A missing file is not an
// error: the defaults are returned as they are.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			core.LogWarn("config file `%s` not found, using defaults", path)
			return cfg, nil
		}
		err := fmt.Errorf("failed to read config `%s`: %w", path, err)
		core.LogError("%s", err)
		return nil, err
	}

	if err := Decode(data, cfg); err != nil {
		err := fmt.Errorf("failed to parse config `%s`: %w", path, err)
		core.LogError("%s", err)
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode overlays the TOML document onto cfg. Keys that do not map to a
// field are rejected.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%s", strict.String())
		}
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		err := fmt.Errorf("invalid window size %dx%d", c.Application.Width, c.Application.Height)
		core.LogError("%s", err)
		return err
	}
	if c.Renderer.FramesInFlight < 1 || c.Renderer.FramesInFlight > 4 {
		err := fmt.Errorf("frames_in_flight must be between 1 and 4, got %d", c.Renderer.FramesInFlight)
		core.LogError("%s", err)
		return err
	}
	if _, err := c.Renderer.VulkanAPIVersion(); err != nil {
		return err
	}
	if _, err := core.ParseLogLevel(c.Application.LogLevel); err != nil {
		core.LogError("%s", err)
		return err
	}
	return nil
}

// VulkanAPIVersion returns the (major, minor) pair of the configured api version.
func (r Renderer) VulkanAPIVersion() ([2]uint32, error) {
	switch r.APIVersion {
	case "1.0":
		return [2]uint32{1, 0}, nil
	case "1.1":
		return [2]uint32{1, 1}, nil
	case "1.2":
		return [2]uint32{1, 2}, nil
	case "1.3":
		return [2]uint32{1, 3}, nil
	}
	err := fmt.Errorf("unsupported vulkan api version `%s`", r.APIVersion)
	core.LogError("%s", err)
	return [2]uint32{}, err
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
