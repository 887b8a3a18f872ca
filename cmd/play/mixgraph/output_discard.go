//go:build !((linux && cgo) || windows || darwin)

package mixgraph

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// AudioAvailable indicates whether this build drives a real sound device.
// Native audio on Linux needs cgo; without it the graph still runs in real
// time but the rendered samples are discarded.
const AudioAvailable = false

// discardOutput pulls from its streamers at the device rate and drops the
// result, so positions and completion events behave as with a real device.
type discardOutput struct {
	mu        sync.Mutex
	once      sync.Once
	streamers []beep.Streamer
	buf       [][2]float64
	interval  time.Duration
}

var sharedDiscard = &discardOutput{}

// DefaultOutput returns the process-wide output.
func DefaultOutput() Output {
	return sharedDiscard
}

func (d *discardOutput) Open(sampleRate beep.SampleRate, bufferSize int) error {
	d.once.Do(func() {
		d.buf = make([][2]float64, bufferSize)
		d.interval = sampleRate.D(bufferSize)
		go d.pump()
	})
	return nil
}

func (d *discardOutput) pump() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for range ticker.C {
		d.mu.Lock()
		for i := range d.buf {
			d.buf[i] = [2]float64{}
		}
		mixInto(d.streamers, d.buf)
		d.mu.Unlock()
	}
}

func (d *discardOutput) Play(s beep.Streamer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streamers = append(d.streamers, s)
}

func (d *discardOutput) Lock()   { d.mu.Lock() }
func (d *discardOutput) Unlock() { d.mu.Unlock() }
