package profiler

import (
	"testing"
	"time"
)

func TestRecordPassAccumulates(t *testing.T) {
	p := NewProfiler()
	p.RecordPass("cull", PhaseCompile, 2*time.Millisecond)
	p.RecordPass("cull", PhaseExecute, 3*time.Millisecond)
	p.RecordPass("cull", PhaseCompile, 4*time.Millisecond)
	p.RecordPass("draw", PhaseExecute, time.Millisecond)

	got := p.PassTimings()
	cull := got["cull"]
	if cull.Frames != 2 || cull.Compile != 6*time.Millisecond || cull.Execute != 3*time.Millisecond {
		t.Errorf("cull timing = %+v", cull)
	}
	if draw := got["draw"]; draw.Frames != 0 || draw.Execute != time.Millisecond {
		t.Errorf("draw timing = %+v", draw)
	}
}

func TestTickResetsPassTimings(t *testing.T) {
	p := NewProfiler()
	p.SetUpdateInterval(time.Nanosecond)
	p.RecordPass("cull", PhaseCompile, time.Millisecond)
	time.Sleep(time.Millisecond)

	if !p.Tick() {
		t.Fatal("Tick did not report after the interval elapsed")
	}
	if got := p.PassTimings()["cull"]; got.Frames != 0 || got.Compile != 0 {
		t.Errorf("timings not reset after report: %+v", got)
	}
}
