// Package config holds the read-only settings consumed at start up.
package config

import (
	"bytes"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

type Window struct {
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	Title  string `toml:"title"`
}

type Application struct {
	Name          string `toml:"name"`
	Version       string `toml:"version"`
	EngineName    string `toml:"engine_name"`
	EngineVersion string `toml:"engine_version"`
}

type Renderer struct {
	EnableValidation bool       `toml:"enable_validation"`
	PresentMode      string     `toml:"present_mode"`
	AcquireTimeout   Duration   `toml:"acquire_timeout"`
	ClearColor       [4]float32 `toml:"clear_color"`
	MaxAnisotropy    float32    `toml:"max_anisotropy"`
	DynamicViewport  bool       `toml:"dynamic_viewport"`
}

type DescriptorPool struct {
	UniformBuffers        uint32 `toml:"uniform_buffers"`
	CombinedImageSamplers uint32 `toml:"combined_image_samplers"`
	MaxSets               uint32 `toml:"max_sets"`
}

type Assets struct {
	Root     string `toml:"root"`
	Shaders  string `toml:"shaders"`
	Models   string `toml:"models"`
	Textures string `toml:"textures"`
	Watch    bool   `toml:"watch"`
}

type Scene struct {
	Template string `toml:"template"`
	Model    string `toml:"model"`
	Texture  string `toml:"texture"`
}

type Settings struct {
	Window         Window         `toml:"window"`
	Application    Application    `toml:"application"`
	Renderer       Renderer       `toml:"renderer"`
	DescriptorPool DescriptorPool `toml:"descriptor_pool"`
	Assets         Assets         `toml:"assets"`
	Scene          Scene          `toml:"scene"`
	LogLevel       string         `toml:"log_level"`
	Workers        int            `toml:"workers"`
}

// Duration is a time.Duration written as a string ("1s", "500ms") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func Default() *Settings {
	return &Settings{
		Window: Window{
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
			Title:  "Vista",
		},
		Application: Application{
			Name:          "Vista",
			Version:       "0.1.0",
			EngineName:    "Vista Engine",
			EngineVersion: "0.1.0",
		},
		Renderer: Renderer{
			EnableValidation: false,
			PresentMode:      "mailbox",
			AcquireTimeout:   Duration{time.Second},
			ClearColor:       [4]float32{0.3, 0.5, 0.5, 1.0},
			MaxAnisotropy:    16,
		},
		DescriptorPool: DescriptorPool{
			UniformBuffers:        100,
			CombinedImageSamplers: 100,
			MaxSets:               100,
		},
		Assets: Assets{
			Root:     "assets",
			Shaders:  "assets/shaders",
			Models:   "assets/models",
			Textures: "assets/textures",
			Watch:    true,
		},
		Scene: Scene{
			Template: "triangle",
			Texture:  "checker.png",
		},
		LogLevel: "info",
		Workers:  2,
	}
}

// Load reads the TOML file at path on top of the defaults. A missing file is
// not an error: the defaults are returned as they are.
func Load(path string) (*Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading settings %s", path)
	}
	if err := Decode(data, s); err != nil {
		return nil, errors.Wrapf(err, "parsing settings %s", path)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Decode overlays the TOML document onto s. Unknown keys are rejected.
func Decode(data []byte, s *Settings) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(s)
}

func (s *Settings) Encode() ([]byte, error) {
	return toml.Marshal(s)
}

func (s *Settings) Validate() error {
	if s.Window.Width == 0 || s.Window.Height == 0 {
		return errors.Newf("window size must be non-zero, got %dx%d", s.Window.Width, s.Window.Height)
	}
	if s.Application.Name == "" {
		return errors.New("application name must be set")
	}
	if s.DescriptorPool.MaxSets == 0 {
		return errors.New("descriptor pool max_sets must be non-zero")
	}
	if s.DescriptorPool.UniformBuffers == 0 && s.DescriptorPool.CombinedImageSamplers == 0 {
		return errors.New("descriptor pool has no capacity")
	}
	switch s.Renderer.PresentMode {
	case "mailbox", "fifo", "fifo_relaxed", "immediate":
	default:
		return errors.Newf("unknown present mode %q", s.Renderer.PresentMode)
	}
	if s.Renderer.AcquireTimeout.Duration <= 0 {
		return errors.New("acquire timeout must be positive")
	}
	if s.Workers < 1 {
		return errors.Newf("workers must be at least 1, got %d", s.Workers)
	}
	return nil
}
