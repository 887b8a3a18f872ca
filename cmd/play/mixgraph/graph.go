// Package mixgraph routes stem generators to the output device.
//
// Every stem plays through its own gain node into a shared bus. The bus feeds
// a master gain, then an analysis tap, then the device:
//
//	generator -> stem gain -\
//	generator -> stem gain --+-> bus -> master gain -> analyser -> output
//	generator -> stem gain -/
//
// The device, the master gain and the analyser are created once, on the
// first AcquireDevice, and survive every teardown. Stem gains and generators
// live for a single generation.
package mixgraph

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

var ErrDeviceNotAcquired = errors.New("output device not acquired")

// Options configures a Graph. Zero fields take the defaults below.
type Options struct {
	SampleRate     beep.SampleRate // device rate, default 44100
	BufferDuration time.Duration   // device buffer, default 100ms
	Quality        int             // beep.Resample quality 1-64, default 4
	MuteRamp       time.Duration   // mute/unmute ramp, default 0 (instant)
	FFTSize        int             // analyser frame size, default 2048
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = 44100
	}
	if o.BufferDuration <= 0 {
		o.BufferDuration = 100 * time.Millisecond
	}
	if o.Quality <= 0 {
		o.Quality = 4
	}
	if o.Quality > 64 {
		o.Quality = 64
	}
	if o.FFTSize <= 0 {
		o.FFTSize = 2048
	}
	return o
}

// Graph owns the per-stem gains, the master gain and the analysis tap.
// It never touches transport state.
type Graph struct {
	mu   sync.Mutex
	out  Output
	opts Options

	acquired bool
	bus      *bus
	master   *effects.Gain
	analyser *Analyser
	volume   float64

	stems map[string]*channel
}

// New creates a Graph on top of out. Nothing is opened until AcquireDevice.
func New(out Output, opts Options) *Graph {
	return &Graph{
		out:    out,
		opts:   opts.withDefaults(),
		volume: 1,
		stems:  make(map[string]*channel),
	}
}

// SampleRate returns the device rate every generator is resampled to.
func (g *Graph) SampleRate() beep.SampleRate {
	return g.opts.SampleRate
}

// AcquireDevice opens the output and connects the master chain on the first
// call; later calls return the same analyser. It must run in response to an
// explicit user action, never at import time.
func (g *Graph) AcquireDevice() (*Analyser, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.acquired {
		return g.analyser, nil
	}

	bufferSize := g.opts.SampleRate.N(g.opts.BufferDuration)
	if err := g.out.Open(g.opts.SampleRate, bufferSize); err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}

	g.bus = &bus{}
	g.master = &effects.Gain{Streamer: g.bus, Gain: g.volume - 1}
	g.analyser = newAnalyser(g.master, g.opts.FFTSize, g.opts.SampleRate)
	g.out.Play(g.analyser)
	g.acquired = true

	slog.Debug("output device acquired", "sample_rate", int(g.opts.SampleRate), "buffer_size", bufferSize)
	return g.analyser, nil
}

// Analyser returns the analysis tap, or nil before AcquireDevice.
func (g *Graph) Analyser() *Analyser {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.analyser
}

// NewGenerator prepares a generator that plays buf from offsetSeconds. The
// device must be acquired so the buffer can be resampled to the device rate.
// onEnded may be nil; it only fires on natural completion.
func (g *Graph) NewGenerator(name string, buf *beep.Buffer, offsetSeconds float64, onEnded func()) (*Generator, error) {
	g.mu.Lock()
	acquired := g.acquired
	g.mu.Unlock()
	if !acquired {
		return nil, ErrDeviceNotAcquired
	}

	var src beep.Streamer = buf.Streamer(offsetSamples(buf, offsetSeconds), buf.Len())
	if rate := buf.Format().SampleRate; rate != g.opts.SampleRate {
		src = beep.Resample(g.opts.Quality, rate, g.opts.SampleRate, src)
	}
	return &Generator{name: name, src: src, onEnded: onEnded}, nil
}

// AttachStem connects one generator under name, muted or not.
func (g *Graph) AttachStem(name string, gen *Generator, muted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.acquired {
		return
	}
	g.out.Lock()
	g.attachLocked(name, gen, muted)
	g.out.Unlock()
}

// Start attaches a whole generation within one device lock, so every stem
// starts on the same output frame.
func (g *Graph) Start(gens []*Generator, isMuted func(name string) bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.acquired {
		return
	}
	g.out.Lock()
	for _, gen := range gens {
		g.attachLocked(gen.name, gen, isMuted(gen.name))
	}
	g.out.Unlock()
}

// attachLocked needs both g.mu and the output lock.
func (g *Graph) attachLocked(name string, gen *Generator, muted bool) {
	gain := 1.0
	if muted {
		gain = 0
	}
	if ch, ok := g.stems[name]; ok {
		ch.gen.stop()
		ch.gen = gen
		ch.gain.src = gen
		ch.gain.set(gain, 0)
		return
	}
	ch := &channel{name: name, gen: gen, gain: newGainNode(gen, gain)}
	g.stems[name] = ch
	g.bus.channels = append(g.bus.channels, ch)
}

// SetMute sets the stem's gain to 0 or 1. The generator keeps running.
// Unknown names are ignored.
func (g *Graph) SetMute(name string, muted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.stems[name]
	if !ok {
		return
	}
	target := 1.0
	if muted {
		target = 0
	}
	g.out.Lock()
	ch.gain.set(target, g.opts.SampleRate.N(g.opts.MuteRamp))
	g.out.Unlock()
}

// SetMasterVolume clamps v to [0,1], applies it and returns the applied value.
func (g *Graph) SetMasterVolume(v float64) float64 {
	v = ClampVolume(v)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.volume = v
	if g.acquired {
		g.out.Lock()
		g.master.Gain = v - 1
		g.out.Unlock()
	}
	return v
}

// MasterVolume returns the current master multiplier.
func (g *Graph) MasterVolume() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.volume
}

// TeardownGeneration stops every live generator and drops the stem gains.
// When it returns, no old generator will be pulled again.
func (g *Graph) TeardownGeneration() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.acquired || len(g.stems) == 0 {
		return
	}
	g.out.Lock()
	for _, ch := range g.bus.channels {
		ch.gen.stop()
	}
	g.bus.channels = nil
	g.out.Unlock()
	g.stems = make(map[string]*channel)
}

// Live returns the names of the stems attached in the current generation.
func (g *Graph) Live() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.stems))
	if g.bus == nil {
		return names
	}
	for _, ch := range g.bus.channels {
		names = append(names, ch.name)
	}
	return names
}

// ClampVolume limits v to [0,1]. NaN maps to 0.
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
