package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Bench.Instances != 4096 || cfg.Bench.Side != 64 || cfg.Bench.Spacing != 3 {
		t.Errorf("grid defaults = %+v", cfg.Bench)
	}
	if cfg.Arenas.Instances != scene.DefaultInstanceCapacity {
		t.Errorf("scene defaults not applied: %+v", cfg.Arenas)
	}
}

func TestLoadConfigSceneAndBenchKeys(t *testing.T) {
	path := writeConfig(t, `frames_in_flight: 3
arenas:
  instances: 64
culling:
  groups:
    - group: unlit
      capacity: 8
    - group: brdf
bench:
  instances: 20
  side: 4
  hidden_every: 5
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.FramesInFlight != 3 || cfg.Arenas.Instances != 64 || len(cfg.Culling.Groups) != 2 {
		t.Errorf("scene config = %+v", cfg.Config)
	}
	if cfg.Bench.Instances != 20 || cfg.Bench.Side != 4 || cfg.Bench.HiddenEvery != 5 {
		t.Errorf("bench config = %+v", cfg.Bench)
	}
}

func TestDisplayOptions(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "display:\n  vsync: true\n  validate_shaders: true\n"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.Display.VSync || !cfg.Display.ValidateShaders || cfg.Display.NoMSAA {
		t.Errorf("display = %+v", cfg.Display)
	}
	if got := len(cfg.Display.options()); got != 4 {
		t.Errorf("got %d renderer options, want 4", got)
	}
	// The headless renderer accepts every display option.
	r := renderer.NewRenderer(renderer.BackendTypeHeadless, nil, cfg.Display.options()...)
	r.Release()
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "bench:\n  cubes: 3\n"},
		{"too many instances", "arenas:\n  instances: 4\nbench:\n  instances: 5\n"},
		{"unknown group", "culling:\n  groups:\n    - group: glass\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(writeConfig(t, tt.body)); err == nil {
				t.Error("loadConfig accepted an invalid config")
			}
		})
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file = %v, want os.ErrNotExist", err)
	}
}

func TestSpawnGrid(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `culling:
  groups:
    - group: unlit
    - group: terrain
bench:
  instances: 10
  side: 3
  hidden_every: 4
`))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	r := renderer.NewRenderer(renderer.BackendTypeHeadless, nil, renderer.WithComputeWorkers(2))
	t.Cleanup(r.Release)
	sc := scene.NewScene("grid", r, cfg.Config)
	t.Cleanup(sc.Release)

	groups, err := cfg.CullGroups()
	if err != nil {
		t.Fatal(err)
	}
	spins, err := spawnGrid(sc, cfg.Bench, groups)
	if err != nil {
		t.Fatalf("spawnGrid: %v", err)
	}
	if len(spins) != 10 || sc.InstanceCount() != 10 {
		t.Fatalf("spawned %d instances with %d spins, want 10", sc.InstanceCount(), len(spins))
	}

	// Instance 9 is on the second layer, first column of its row.
	m, err := sc.Transform(9)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Col(3).Vec3(); got[1] != 3 || got[0] != -3 {
		t.Errorf("instance 9 at %v, want x=-3 y=3", got)
	}
	for _, s := range spins {
		if s < -1 || s > 1 {
			t.Errorf("spin %v outside [-1, 1]", s)
		}
	}
	if groups[1].Group != common.DrawGroupTerrain {
		t.Errorf("groups = %v", groups)
	}
}
