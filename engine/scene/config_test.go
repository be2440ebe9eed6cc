package scene

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/cull"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	if err != nil {
		t.Fatalf("ParseConfig(nil): %v", err)
	}
	if cfg.FramesInFlight != 2 || cfg.Workers < 1 {
		t.Errorf("frames %d workers %d", cfg.FramesInFlight, cfg.Workers)
	}
	if cfg.Arenas.Instances != DefaultInstanceCapacity || cfg.Arenas.Transforms != DefaultInstanceCapacity {
		t.Errorf("arenas = %+v", cfg.Arenas)
	}
	groups, err := cfg.CullGroups()
	if err != nil {
		t.Fatalf("CullGroups: %v", err)
	}
	if !reflect.DeepEqual(groups, []cull.GroupCapacity{{Group: common.DrawGroupBRDF, Capacity: DefaultGroupCapacity}}) {
		t.Errorf("groups = %+v", groups)
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
frames_in_flight: 3
workers: 2
arenas:
  instances: 100
culling:
  verbose: true
  groups:
    - group: unlit
      capacity: 10
    - group: transparent_lines
`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.FramesInFlight != 3 || cfg.Workers != 2 || !cfg.Culling.Verbose {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Arenas.Instances != 100 || cfg.Arenas.Transforms != 100 || cfg.Arenas.Vertices != DefaultVertexCapacity {
		t.Errorf("arenas = %+v", cfg.Arenas)
	}
	groups, _ := cfg.CullGroups()
	want := []cull.GroupCapacity{
		{Group: common.DrawGroupUnlit, Capacity: 10},
		{Group: common.DrawGroupTransparentLines, Capacity: DefaultGroupCapacity},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("groups = %+v, want %+v", groups, want)
	}
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		invalid bool
	}{
		{"unknown group", "culling:\n  groups:\n    - group: glass\n", true},
		{"duplicate group", "culling:\n  groups:\n    - group: brdf\n    - group: brdf\n", true},
		{"unknown key", "frames: 2\n", false},
		{"bad type", "workers: many\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.doc))
			if err == nil {
				t.Fatal("ParseConfig accepted the document")
			}
			if got := errors.Is(err, ErrInvalidConfig); got != tt.invalid {
				t.Errorf("errors.Is(%v, ErrInvalidConfig) = %v, want %v", err, got, tt.invalid)
			}
		})
	}
}

type extendedConfig struct {
	Config `yaml:",inline"`
	Grid   int `yaml:"grid"`
}

func TestDecodeConfigInline(t *testing.T) {
	var cfg extendedConfig
	if err := DecodeConfig([]byte("grid: 12\nworkers: 3\n"), &cfg); err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Grid != 12 || cfg.Workers != 3 || cfg.FramesInFlight != 2 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	if err := os.WriteFile(path, []byte("workers: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want 5", cfg.Workers)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig(missing) = %v, want os.ErrNotExist", err)
	}
}
