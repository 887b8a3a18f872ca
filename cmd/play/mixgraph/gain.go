package mixgraph

import "github.com/gopxl/beep/v2"

// gainNode multiplies its source by a gain that can either jump or ramp
// linearly to a new target.
type gainNode struct {
	src     beep.Streamer
	current float64
	target  float64
	step    float64
}

func newGainNode(src beep.Streamer, gain float64) *gainNode {
	return &gainNode{src: src, current: gain, target: gain}
}

// set changes the target gain. rampSamples <= 0 applies it immediately.
// Must be called with the output lock held.
func (g *gainNode) set(target float64, rampSamples int) {
	g.target = target
	if rampSamples <= 0 {
		g.current = target
		g.step = 0
		return
	}
	g.step = (target - g.current) / float64(rampSamples)
}

func (g *gainNode) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = g.src.Stream(samples)
	for i := 0; i < n; i++ {
		if g.current != g.target {
			g.current += g.step
			if (g.step > 0 && g.current > g.target) || (g.step < 0 && g.current < g.target) || g.step == 0 {
				g.current = g.target
			}
		}
		samples[i][0] *= g.current
		samples[i][1] *= g.current
	}
	return n, ok
}

func (g *gainNode) Err() error {
	return g.src.Err()
}
