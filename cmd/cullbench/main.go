// Command cullbench spawns a grid of spinning instances and renders them through the culling
// frame graph: scene upload, camera frustums, GPU frustum culling with indirect-draw compaction,
// and indirect draws.
//
// With -headless it runs the CPU backend and logs how many commands each draw group received.
//
// Keys (windowed): W/S zoom, A/D orbit, Space pauses spinning, H toggles the hidden instances,
// G moves every instance to the next configured draw group, P toggles profiler output,
// Escape quits.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine"
	"github.com/Carmen-Shannon/oxy-graph/engine/camera"
	"github.com/Carmen-Shannon/oxy-graph/engine/cull"
	"github.com/Carmen-Shannon/oxy-graph/engine/framegraph"
	"github.com/Carmen-Shannon/oxy-graph/engine/profiler"
	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
	"github.com/Carmen-Shannon/oxy-graph/engine/window"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/schollz/progressbar/v3"
)

const windowTitle = "oxy-graph cullbench"

func main() {
	configPath := flag.String("config", "", "YAML scene configuration (defaults when empty)")
	headless := flag.Bool("headless", false, "run the CPU backend without a window")
	frames := flag.Uint64("frames", 0, "frames to render before exiting (0 renders until the window closes; headless defaults to 120)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("[Bench] %v", err)
	}
	if *headless && *frames == 0 {
		*frames = 120
	}

	prof := profiler.NewProfiler()

	// ── Renderer ────────────────────────────────────────────────────
	var (
		win    window.Window
		r      renderer.Renderer
		aspect float32 = 16.0 / 9.0
	)
	if *headless {
		r = renderer.NewRenderer(renderer.BackendTypeHeadless, nil, append(cfg.Display.options(),
			renderer.WithFramesInFlight(cfg.FramesInFlight),
			renderer.WithComputeWorkers(cfg.Workers),
		)...)
	} else {
		win = window.NewWindow(
			window.WithTitle(windowTitle),
			window.WithSize(1600, 900),
		)
		aspect = float32(win.Width()) / float32(win.Height())
		r = renderer.NewRenderer(renderer.BackendTypeWGPU, win, append(cfg.Display.options(),
			renderer.WithFramesInFlight(cfg.FramesInFlight),
		)...)
	}
	defer r.Release()

	// ── Camera ──────────────────────────────────────────────────────
	view := newOrbit(cfg.Bench)
	cam := camera.NewCamera(
		camera.WithPerspective(mgl32.DegToRad(60), aspect),
		camera.WithClip(0.1, view.radius*4),
	)
	view.apply(cam)

	// ── Scene ───────────────────────────────────────────────────────
	sc := scene.NewScene("bench", r, cfg.Config,
		scene.WithComputeWorkers(cfg.Workers),
		scene.WithVerbose(cfg.Culling.Verbose),
	)
	defer sc.Release()

	groups, err := cfg.CullGroups()
	if err != nil {
		log.Fatalf("[Bench] %v", err)
	}
	spins, err := spawnGrid(sc, cfg.Bench, groups)
	if err != nil {
		log.Fatalf("[Bench] failed to spawn instances: %v", err)
	}
	log.Printf("[Bench] spawned %d instances over %d draw groups", sc.InstanceCount(), len(groups))

	// ── Frame graph ─────────────────────────────────────────────────
	g := framegraph.NewFrameGraph(
		framegraph.WithProfiler(prof),
		framegraph.WithVerbose(cfg.Culling.Verbose),
	)
	defer g.Release()
	if _, err := scene.AddPasses(g, sc, cfg.Config, cam); err != nil {
		log.Fatalf("[Bench] failed to build frame graph: %v", err)
	}
	if err := g.Validate(); err != nil {
		log.Fatalf("[Bench] %v", err)
	}
	log.Printf("[Bench] passes: %v", g.Passes())

	// ── Engine ──────────────────────────────────────────────────────
	opts := []engine.EngineBuilderOption{
		engine.WithProfiler(prof),
		engine.WithProfiling(!*headless),
		engine.WithTickRate(60),
		engine.WithMaxFrames(*frames),
		engine.WithCameras(cam),
	}
	if win != nil {
		opts = append(opts, engine.WithWindow(win))
	}
	eng := engine.NewEngine(r, g, opts...)

	var paused atomic.Bool
	eng.SetTickCallback(func(dt float32) {
		view.apply(cam)
		if paused.Load() {
			return
		}
		sc.UpdateTransforms(func(id scene.InstanceID, m *mgl32.Mat4) {
			*m = m.Mul4(mgl32.HomogRotate3DY(spins[id] * dt))
		})
	})

	if *headless {
		bar := progressbar.Default(int64(*frames), "culling")
		defer bar.Close()
		eng.SetRenderCallback(func(float32) {
			_ = bar.Add(1)
			if f := eng.Frame(); f == 1 || f == *frames {
				logDraws(f, r.DrawLog())
			}
		})
	} else {
		bindInput(win, eng, sc, view, groups, spins, &paused)
		eng.SetRenderCallback(func(dt float32) {
			if f := eng.Frame(); f%60 == 0 && dt > 0 {
				win.SetTitle(fmt.Sprintf("%s | %d instances | %.0f fps", windowTitle, sc.InstanceCount(), 1/dt))
			}
		})
	}

	log.Println("[Bench] starting")
	if err := eng.Run(); err != nil {
		log.Fatalf("[Bench] stopped: %v", err)
	}
	log.Printf("[Bench] rendered %d frames", eng.Frame())
}

// spawnGrid fills an XZ grid of Side instances per row, stacking layers upward once a layer is
// full. Boxes and spheres alternate, and instances cycle through the configured draw groups.
// The returned slice holds each instance's spin speed, indexed by InstanceID.
func spawnGrid(sc scene.Scene, grid gridConfig, groups []cull.GroupCapacity) ([]float32, error) {
	box, err := sc.AddMesh(scene.NewBoxMesh(0.5))
	if err != nil {
		return nil, err
	}
	sphere, err := sc.AddMesh(scene.NewSphereMesh(0.5, 8, 12))
	if err != nil {
		return nil, err
	}
	meshes := []scene.Mesh{box, sphere}

	spins := make([]float32, grid.Instances)
	center := float32(grid.Side-1) / 2
	for i := range grid.Instances {
		col := i % grid.Side
		row := (i / grid.Side) % grid.Side
		layer := i / (grid.Side * grid.Side)
		pos := mgl32.Vec3{
			(float32(col) - center) * grid.Spacing,
			float32(layer) * grid.Spacing,
			(float32(row) - center) * grid.Spacing,
		}
		id, err := sc.AddInstance(scene.InstanceDesc{
			Mesh:      meshes[i%len(meshes)],
			Transform: mgl32.Translate3D(pos[0], pos[1], pos[2]),
			Group:     groups[i%len(groups)].Group,
			Hidden:    grid.HiddenEvery > 0 && i%grid.HiddenEvery == 0,
		})
		if err != nil {
			return nil, err
		}
		if int(id) >= len(spins) {
			spins = append(spins, make([]float32, int(id)+1-len(spins))...)
		}
		spins[id] = (rand.Float32()*2 - 1) * grid.MaxSpin
	}
	return spins, nil
}

// logDraws reports the draws of the last completed frame. Draws arrive per frustum and group in
// graph order, opaque groups first.
func logDraws(frame uint64, draws []renderer.DrawRecord) {
	var total uint32
	for i, d := range draws {
		total += d.Count
		log.Printf("[Bench] frame %d draw %d (%s): %d commands", frame, i, d.Pipeline, d.Count)
	}
	log.Printf("[Bench] frame %d: %d draws, %d commands", frame, len(draws), total)
}

// orbit is a camera orbiting the grid's center, driven by key input on the window thread and
// applied on the tick goroutine.
type orbit struct {
	mu        sync.Mutex
	target    mgl32.Vec3
	radius    float32
	azimuth   float32
	elevation float32
}

func newOrbit(grid gridConfig) *orbit {
	layers := grid.Instances/(grid.Side*grid.Side) + 1
	side := min(grid.Side, int(math.Ceil(math.Sqrt(float64(grid.Instances)))))
	extent := float32(side) * grid.Spacing
	return &orbit{
		target:    mgl32.Vec3{0, float32(layers) * grid.Spacing / 2, 0},
		radius:    extent * 0.6,
		azimuth:   0.3,
		elevation: 0.5,
	}
}

func (o *orbit) apply(cam camera.Camera) {
	o.mu.Lock()
	defer o.mu.Unlock()
	pos := mgl32.SphericalToCartesian(o.radius, math.Pi/2-o.elevation, o.azimuth)
	// SphericalToCartesian is Z-up; the camera is Y-up.
	cam.LookAt(o.target.Add(mgl32.Vec3{pos[0], pos[2], pos[1]}), o.target)
}

func (o *orbit) zoom(factor float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.radius = mgl32.Clamp(o.radius*factor, 1, 1e5)
}

func (o *orbit) rotate(delta float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.azimuth += delta
}

func bindInput(win window.Window, eng engine.Engine, sc scene.Scene, view *orbit, groups []cull.GroupCapacity, spins []float32, paused *atomic.Bool) {
	hidden, profiling := false, true
	group := 0
	win.SetScrollCallback(func(delta float32) {
		view.zoom(float32(math.Pow(0.9, float64(delta))))
	})
	win.SetKeyDownCallback(func(key uint32) {
		switch key {
		case common.KeyW:
			view.zoom(0.95)
		case common.KeyS:
			view.zoom(1.05)
		case common.KeyA:
			view.rotate(-0.05)
		case common.KeyD:
			view.rotate(0.05)
		case common.KeySpace:
			paused.Store(!paused.Load())
		case common.KeyH:
			hidden = !hidden
			for id := range spins {
				if id%2 == 1 {
					_ = sc.SetVisible(scene.InstanceID(id), !hidden)
				}
			}
			log.Printf("[Bench] odd instances hidden: %v", hidden)
		case common.KeyG:
			group = (group + 1) % len(groups)
			for id := range spins {
				_ = sc.SetDrawGroup(scene.InstanceID(id), groups[group].Group)
			}
			log.Printf("[Bench] all instances moved to %s", groups[group].Group)
		case common.KeyP:
			profiling = !profiling
			if profiling {
				eng.EnableProfiler()
			} else {
				eng.DisableProfiler()
			}
		}
	})
}
