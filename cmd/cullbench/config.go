package main

import (
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

// benchConfig extends the scene configuration with the instance grid.
type benchConfig struct {
	scene.Config `yaml:",inline"`
	Bench        gridConfig    `yaml:"bench"`
	Display      displayConfig `yaml:"display"`
}

// displayConfig selects renderer options.
type displayConfig struct {
	// VSync caps presentation at the display's refresh rate.
	VSync bool `yaml:"vsync"`
	// NoMSAA renders without multisampling.
	NoMSAA bool `yaml:"no_msaa"`
	// Software asks for a software adapter such as lavapipe.
	Software bool `yaml:"software"`
	// ValidateShaders compiles every shader with naga before running it headless.
	ValidateShaders bool `yaml:"validate_shaders"`
}

// options maps the display settings onto renderer options.
func (d displayConfig) options() []renderer.RendererBuilderOption {
	mode, msaa := renderer.PresentModeUncapped, renderer.MSAA4x
	if d.VSync {
		mode = renderer.PresentModeVSync
	}
	if d.NoMSAA {
		msaa = renderer.MSAAOff
	}
	return []renderer.RendererBuilderOption{
		renderer.WithPresentMode(mode),
		renderer.WithMSAA(msaa),
		renderer.WithForceSoftwareRenderer(d.Software),
		renderer.WithShaderValidation(d.ValidateShaders),
	}
}

type gridConfig struct {
	// Instances is the number of instances spawned.
	Instances int `yaml:"instances"`
	// Side is the number of instances per row on the XZ plane before a new layer starts.
	Side int `yaml:"side"`
	// Spacing is the distance between neighbouring instances.
	Spacing float32 `yaml:"spacing"`
	// MaxSpin is the largest rotation speed in radians per second.
	MaxSpin float32 `yaml:"max_spin"`
	// HiddenEvery hides every n-th instance. 0 hides none.
	HiddenEvery int `yaml:"hidden_every"`
}

func (g *gridConfig) normalize() {
	if g.Instances <= 0 {
		g.Instances = 4096
	}
	if g.Side <= 0 {
		g.Side = 64
	}
	if g.Spacing <= 0 {
		g.Spacing = 3
	}
	if g.MaxSpin == 0 {
		g.MaxSpin = 1
	}
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (benchConfig, error) {
	var cfg benchConfig
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return benchConfig{}, fmt.Errorf("failed to read config %q: %w", path, err)
		}
	}
	if err := scene.DecodeConfig(data, &cfg); err != nil {
		return benchConfig{}, fmt.Errorf("config %q: %w", path, err)
	}
	cfg.Bench.normalize()
	if uint32(cfg.Bench.Instances) > cfg.Arenas.Instances {
		return benchConfig{}, fmt.Errorf("%w: %d instances exceed the instance arena capacity %d",
			scene.ErrInvalidConfig, cfg.Bench.Instances, cfg.Arenas.Instances)
	}
	return cfg, nil
}
