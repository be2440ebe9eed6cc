package profiler

import (
	"log"
	"runtime"
	"sync"
	"time"
)

// Phase identifies the frame graph phase a pass timing belongs to.
type Phase int

const (
	PhaseCompile Phase = iota
	PhaseExecute
)

// PassTiming accumulates the time spent in one pass since the last report.
type PassTiming struct {
	Compile time.Duration
	Execute time.Duration
	Frames  int
}

// Profiler tracks frame rate and memory statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	// passMu guards the pass timings, which the frame graph records from the render goroutine.
	passMu      *sync.Mutex
	passOrder   []string
	passTimings map[string]*PassTiming
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		frameCount:     0,
		lastTime:       time.Now(),
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
		passMu:         &sync.Mutex{},
		passTimings:    make(map[string]*PassTiming),
	}
}

// SetUpdateInterval changes how often Tick logs statistics.
//
// Parameters:
//   - interval: the reporting interval, ignored if not positive
func (p *Profiler) SetUpdateInterval(interval time.Duration) {
	if interval > 0 {
		p.updateInterval = interval
	}
}

// RecordPass adds the duration of one pass callback to the pass's running totals.
// A compile sample counts one frame for the pass.
//
// Parameters:
//   - name: the pass name
//   - phase: PhaseCompile or PhaseExecute
//   - d: the time spent in the callback
func (p *Profiler) RecordPass(name string, phase Phase, d time.Duration) {
	p.passMu.Lock()
	defer p.passMu.Unlock()

	t, ok := p.passTimings[name]
	if !ok {
		t = &PassTiming{}
		p.passTimings[name] = t
		p.passOrder = append(p.passOrder, name)
	}
	switch phase {
	case PhaseCompile:
		t.Compile += d
		t.Frames++
	case PhaseExecute:
		t.Execute += d
	}
}

// PassTimings returns a copy of the pass totals accumulated since the last report.
//
// Returns:
//   - map[string]PassTiming: totals keyed by pass name
func (p *Profiler) PassTimings() map[string]PassTiming {
	p.passMu.Lock()
	defer p.passMu.Unlock()

	out := make(map[string]PassTiming, len(p.passTimings))
	for name, t := range p.passTimings {
		out[name] = *t
	}
	return out
}

// logPassTimings logs the average compile and execute time of each pass and resets the totals.
func (p *Profiler) logPassTimings() {
	p.passMu.Lock()
	defer p.passMu.Unlock()

	for _, name := range p.passOrder {
		t := p.passTimings[name]
		if t.Frames == 0 {
			continue
		}
		log.Printf("[Profiler] Pass %q | compile: %v | execute: %v",
			name, t.Compile/time.Duration(t.Frames), t.Execute/time.Duration(t.Frames))
		*t = PassTiming{}
	}
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed >= p.updateInterval {
		fps := float64(p.frameCount) / elapsed.Seconds()

		runtime.ReadMemStats(&p.memStats)
		// Alloc: Bytes of allocated heap objects (live memory)
		// TotalAlloc: Cumulative bytes allocated for heap objects (increases forever, tracks churn)
		// Sys: Total bytes of memory obtained from the OS (actual process footprint)
		allocMB := float64(p.memStats.Alloc) / 1024 / 1024
		sysMB := float64(p.memStats.Sys) / 1024 / 1024

		// Calculate allocation rate (MB/sec)
		allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
		allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

		// Calculate GC pause stats (last pause and max recent pause)
		gcCount := p.memStats.NumGC
		var lastPauseUs, maxPauseUs uint64
		if gcCount > 0 {
			// PauseNs is a circular buffer of last 256 GC pauses
			lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

			// Find max pause since last tick
			startIdx := p.lastGCCount
			if gcCount-startIdx > 256 {
				startIdx = gcCount - 256
			}
			for i := startIdx; i < gcCount; i++ {
				pause := p.memStats.PauseNs[i%256] / 1000
				if pause > maxPauseUs {
					maxPauseUs = pause
				}
			}
		}

		log.Printf("[Profiler] FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
			fps, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)
		p.logPassTimings()

		p.frameCount = 0
		p.lastTime = currentTime
		p.lastGCCount = gcCount
		p.lastTotalAlloc = p.memStats.TotalAlloc
		return true
	}

	return false
}
