package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type WindowConfig struct {
	Title  string `toml:"title"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	MaxFPS uint32 `toml:"max_fps"`
}

type RendererConfig struct {
	FramesInFlight    uint32 `toml:"frames_in_flight"`
	Validation        bool   `toml:"validation"`
	TextureArraySize  uint32 `toml:"texture_array_size"`
	MaxInstances      uint32 `toml:"max_instances"`
	MaxLookupEntries  uint32 `toml:"max_lookup_entries"`
	MaxDrawCommands   uint32 `toml:"max_draw_commands"`
	VertexPoolBytes   uint64 `toml:"vertex_pool_bytes"`
	IndexPoolBytes    uint64 `toml:"index_pool_bytes"`
	InitialBatchSize  uint32 `toml:"initial_batch_size"`
	BatchGrowthFactor uint32 `toml:"batch_growth_factor"`
}

type CameraConfig struct {
	FOV         float32 `toml:"fov"`
	ZNear       float32 `toml:"znear"`
	ZFar        float32 `toml:"zfar"`
	Speed       float32 `toml:"speed"`
	Sensitivity float32 `toml:"sensitivity"`
}

type AssetsConfig struct {
	Root           string `toml:"root"`
	VertexShader   string `toml:"vertex_shader"`
	FragmentShader string `toml:"fragment_shader"`
	Watch          bool   `toml:"watch"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type EngineConfig struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Camera   CameraConfig   `toml:"camera"`
	Assets   AssetsConfig   `toml:"assets"`
	Log      LogConfig      `toml:"log"`
}

func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Window: WindowConfig{
			Title:  "Anima",
			X:      100,
			Y:      100,
			Width:  1440,
			Height: 900,
			MaxFPS: 144,
		},
		Renderer: RendererConfig{
			FramesInFlight:    2,
			Validation:        true,
			TextureArraySize:  2048,
			MaxInstances:      100_000,
			MaxLookupEntries:  1_000_000,
			MaxDrawCommands:   1024,
			VertexPoolBytes:   64 << 20,
			IndexPoolBytes:    32 << 20,
			InitialBatchSize:  10,
			BatchGrowthFactor: 10,
		},
		Camera: CameraConfig{
			FOV:         90,
			ZNear:       0.1,
			ZFar:        500,
			Speed:       3,
			Sensitivity: 0.1,
		},
		Assets: AssetsConfig{
			Root:           "assets",
			VertexShader:   "shaders/bindless.vert.spv",
			FragmentShader: "shaders/bindless.frag.spv",
			Watch:          true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig overlays the TOML file at path on top of DefaultConfig.
// A missing file yields the defaults.
func LoadConfig(path string) (*EngineConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			LogWarn("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EngineConfig) Validate() error {
	r := c.Renderer
	switch {
	case r.FramesInFlight == 0:
		return errors.New("renderer.frames_in_flight must be at least 1")
	case r.TextureArraySize == 0:
		return errors.New("renderer.texture_array_size must be at least 1")
	case r.InitialBatchSize == 0:
		return errors.New("renderer.initial_batch_size must be at least 1")
	case r.BatchGrowthFactor == 0:
		return errors.New("renderer.batch_growth_factor must be at least 1")
	case r.MaxInstances == 0 || r.MaxLookupEntries == 0 || r.MaxDrawCommands == 0:
		return errors.New("renderer table capacities must be non-zero")
	case c.Window.Width == 0 || c.Window.Height == 0:
		return errors.New("window size must be non-zero")
	}
	return nil
}
