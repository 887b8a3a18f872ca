package mixgraph

import (
	"time"

	"github.com/gopxl/beep/v2"
)

// Generator is a one-shot playback unit bound to one stem's buffer, started
// at a given offset. Once stopped or drained it never produces audio again.
type Generator struct {
	name    string
	src     beep.Streamer
	onEnded func()

	// Guarded by the output lock.
	stopped bool
	ended   bool
}

// Name returns the stem the generator plays.
func (g *Generator) Name() string {
	return g.name
}

// Stream implements beep.Streamer. Natural completion fires onEnded exactly
// once, on its own goroutine so the handler may call back into the graph
// without deadlocking against the device lock.
func (g *Generator) Stream(samples [][2]float64) (n int, ok bool) {
	if g.stopped || g.ended {
		return 0, false
	}
	n, ok = g.src.Stream(samples)
	if !ok {
		g.ended = true
		if g.onEnded != nil {
			go g.onEnded()
		}
	}
	return n, ok
}

func (g *Generator) Err() error {
	return g.src.Err()
}

// stop silences the generator without firing onEnded. Must be called with the
// output lock held.
func (g *Generator) stop() {
	g.stopped = true
}

// offsetSamples converts a position in seconds to a sample index within buf,
// clamped to the buffer.
func offsetSamples(buf *beep.Buffer, offsetSeconds float64) int {
	if offsetSeconds <= 0 {
		return 0
	}
	n := buf.Format().SampleRate.N(time.Duration(offsetSeconds * float64(time.Second)))
	if n > buf.Len() {
		return buf.Len()
	}
	return n
}
