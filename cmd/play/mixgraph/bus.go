package mixgraph

// channel is one stem's path into the bus: generator -> stem gain.
type channel struct {
	name string
	gen  *Generator
	gain *gainNode
}

// bus sums every attached channel. It never drains, so the device keeps
// pulling it between generations and the master chain stays connected.
type bus struct {
	channels []*channel
	scratch  [][2]float64
}

func (b *bus) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		samples[i] = [2]float64{}
	}
	if cap(b.scratch) < len(samples) {
		b.scratch = make([][2]float64, len(samples))
	}
	tmp := b.scratch[:len(samples)]
	for _, ch := range b.channels {
		m, _ := ch.gain.Stream(tmp)
		for i := 0; i < m; i++ {
			samples[i][0] += tmp[i][0]
			samples[i][1] += tmp[i][1]
		}
	}
	return len(samples), true
}

func (b *bus) Err() error {
	return nil
}
