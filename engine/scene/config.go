package scene

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/cull"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"gopkg.in/yaml.v3"
)

// Default arena capacities used when a configuration leaves them unset.
const (
	DefaultVertexCapacity    = 1 << 16
	DefaultIndexCapacity     = 3 << 16
	DefaultPrimitiveCapacity = 1 << 10
	DefaultInstanceCapacity  = 1 << 14
	DefaultGroupCapacity     = 1 << 12
)

// ErrInvalidConfig is returned when a configuration cannot be normalized.
var ErrInvalidConfig = errors.New("invalid scene config")

// ArenaConfig sizes the scene arenas. Transforms holds instance and node transforms and defaults
// to Instances, which leaves no room for nodes.
type ArenaConfig struct {
	Vertices   uint32 `yaml:"vertices"`
	Indices    uint32 `yaml:"indices"`
	Primitives uint32 `yaml:"primitives"`
	Instances  uint32 `yaml:"instances"`
	Transforms uint32 `yaml:"transforms"`
}

// GroupConfig is the per-frustum command capacity of one draw group.
type GroupConfig struct {
	Group    string `yaml:"group"`
	Capacity uint32 `yaml:"capacity"`
}

// CullingConfig configures the culling pass.
type CullingConfig struct {
	Groups  []GroupConfig `yaml:"groups"`
	Verbose bool          `yaml:"verbose"`
}

// Config is the YAML scene and culling configuration.
//
//	frames_in_flight: 2
//	workers: 4
//	arenas:
//	  instances: 16384
//	culling:
//	  groups:
//	    - group: brdf
//	      capacity: 4096
type Config struct {
	FramesInFlight uint32        `yaml:"frames_in_flight"`
	Workers        int           `yaml:"workers"`
	Arenas         ArenaConfig   `yaml:"arenas"`
	Culling        CullingConfig `yaml:"culling"`
}

// DefaultConfig returns a normalized configuration with every default applied.
func DefaultConfig() Config {
	var c Config
	_ = c.Normalize()
	return c
}

// LoadConfig reads and normalizes a YAML configuration file.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - Config: the normalized configuration
//   - error: an error if the file cannot be read or is invalid
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read scene config %q: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("scene config %q: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and normalizes a YAML configuration. Unknown keys are rejected.
//
// Parameters:
//   - data: the YAML document
//
// Returns:
//   - Config: the normalized configuration
//   - error: a decode error or ErrInvalidConfig
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := DecodeConfig(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DecodeConfig decodes a YAML document into v, which embeds or is a Config, and normalizes
// every Config it reaches through v. It lets binaries extend the scene configuration with their
// own keys.
//
// Parameters:
//   - data: the YAML document
//   - v: a pointer to the destination
//
// Returns:
//   - error: a decode error or ErrInvalidConfig
func DecodeConfig(data []byte, v interface{ SceneConfig() *Config }) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode scene config: %w", err)
	}
	return v.SceneConfig().Normalize()
}

// SceneConfig returns c, so a *Config can be passed to DecodeConfig directly.
func (c *Config) SceneConfig() *Config {
	return c
}

// Normalize fills unset fields with defaults and validates group names.
//
// Returns:
//   - error: ErrInvalidConfig for an unknown or repeated group, or a zero capacity arena
func (c *Config) Normalize() error {
	if c.FramesInFlight == 0 {
		c.FramesInFlight = renderer.DefaultFramesInFlight
	}
	if c.Workers <= 0 {
		c.Workers = max(runtime.NumCPU()-1, 1)
	}
	c.Arenas.Vertices = common.Coalesce(c.Arenas.Vertices, DefaultVertexCapacity)
	c.Arenas.Indices = common.Coalesce(c.Arenas.Indices, DefaultIndexCapacity)
	c.Arenas.Primitives = common.Coalesce(c.Arenas.Primitives, DefaultPrimitiveCapacity)
	c.Arenas.Instances = common.Coalesce(c.Arenas.Instances, DefaultInstanceCapacity)
	c.Arenas.Transforms = common.Coalesce(c.Arenas.Transforms, c.Arenas.Instances)

	if len(c.Culling.Groups) == 0 {
		c.Culling.Groups = []GroupConfig{{Group: common.DrawGroupBRDF.String(), Capacity: DefaultGroupCapacity}}
	}
	_, err := c.CullGroups()
	return err
}

// CullGroups resolves the configured groups for cull.NewCullPass.
//
// Returns:
//   - []cull.GroupCapacity: the groups in configuration order
//   - error: ErrInvalidConfig for an unknown or repeated group name
func (c *Config) CullGroups() ([]cull.GroupCapacity, error) {
	out := make([]cull.GroupCapacity, 0, len(c.Culling.Groups))
	seen := make(map[common.DrawGroup]bool, len(c.Culling.Groups))
	for _, gc := range c.Culling.Groups {
		g, ok := common.ParseDrawGroup(gc.Group)
		if !ok {
			return nil, fmt.Errorf("%w: unknown draw group %q", ErrInvalidConfig, gc.Group)
		}
		if seen[g] {
			return nil, fmt.Errorf("%w: draw group %q listed twice", ErrInvalidConfig, gc.Group)
		}
		seen[g] = true
		out = append(out, cull.GroupCapacity{Group: g, Capacity: common.Coalesce(gc.Capacity, DefaultGroupCapacity)})
	}
	return out, nil
}
