package mixgraph

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
	DefaultSmoothing   = 0.8
)

// Analyser is the spectral tap between the master gain and the device. It
// keeps the most recent FFT-size frames of the mono mix; readers take
// frequency snapshots without touching the audio path.
type Analyser struct {
	src        beep.Streamer
	sampleRate beep.SampleRate

	mu   sync.Mutex // ring
	ring []float64
	pos  int

	readMu      sync.Mutex // smoothing state
	window      []float64
	smoothed    []float64
	minDecibels float64
	maxDecibels float64
	smoothing   float64
}

func newAnalyser(src beep.Streamer, fftSize int, sampleRate beep.SampleRate) *Analyser {
	return &Analyser{
		src:         src,
		sampleRate:  sampleRate,
		ring:        make([]float64, fftSize),
		window:      window.Blackman(fftSize),
		smoothed:    make([]float64, fftSize/2),
		minDecibels: DefaultMinDecibels,
		maxDecibels: DefaultMaxDecibels,
		smoothing:   DefaultSmoothing,
	}
}

// Stream passes audio through while capturing the mono mix.
func (a *Analyser) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = a.src.Stream(samples)
	a.mu.Lock()
	for i := 0; i < n; i++ {
		a.ring[a.pos] = (samples[i][0] + samples[i][1]) / 2
		a.pos = (a.pos + 1) % len(a.ring)
	}
	a.mu.Unlock()
	return n, ok
}

func (a *Analyser) Err() error {
	return a.src.Err()
}

// FFTSize returns the analysis frame length.
func (a *Analyser) FFTSize() int {
	return len(a.ring)
}

// FrequencyBinCount returns the number of bins in every snapshot.
func (a *Analyser) FrequencyBinCount() int {
	return len(a.smoothed)
}

// BinFrequency returns the centre frequency of bin i in Hz.
func (a *Analyser) BinFrequency(i int) float64 {
	return float64(i) * float64(a.sampleRate) / float64(len(a.ring))
}

// SetDecibelRange sets the range ByteFrequencyData maps onto 0..255.
func (a *Analyser) SetDecibelRange(minDB, maxDB float64) {
	if minDB >= maxDB {
		return
	}
	a.readMu.Lock()
	defer a.readMu.Unlock()
	a.minDecibels, a.maxDecibels = minDB, maxDB
}

// SetSmoothing sets the time constant blending each snapshot with the last,
// clamped to [0,1].
func (a *Analyser) SetSmoothing(s float64) {
	a.readMu.Lock()
	defer a.readMu.Unlock()
	a.smoothing = math.Max(0, math.Min(1, s))
}

// Samples returns the captured frame in chronological order.
func (a *Analyser) Samples() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.ring))
	n := copy(out, a.ring[a.pos:])
	copy(out[n:], a.ring[:a.pos])
	return out
}

// FloatFrequencyData returns the smoothed magnitude spectrum in dBFS.
// Silent bins report -Inf.
func (a *Analyser) FloatFrequencyData() []float64 {
	frame := a.Samples()

	a.readMu.Lock()
	defer a.readMu.Unlock()

	for i := range frame {
		frame[i] *= a.window[i]
	}
	spectrum := fft.FFTReal(frame)

	size := float64(len(frame))
	out := make([]float64, len(a.smoothed))
	for k := range a.smoothed {
		mag := cmplx.Abs(spectrum[k]) / size
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		out[k] = 20 * math.Log10(a.smoothed[k])
	}
	return out
}

// ByteFrequencyData fills dst with the spectrum scaled over the decibel range
// to 0..255 and returns the number of bins written.
func (a *Analyser) ByteFrequencyData(dst []byte) int {
	db := a.FloatFrequencyData()

	a.readMu.Lock()
	minDB, maxDB := a.minDecibels, a.maxDecibels
	a.readMu.Unlock()

	n := min(len(dst), len(db))
	for i := 0; i < n; i++ {
		v := 255 * (db[i] - minDB) / (maxDB - minDB)
		switch {
		case math.IsInf(db[i], -1) || v <= 0:
			dst[i] = 0
		case v >= 255:
			dst[i] = 255
		default:
			dst[i] = byte(v)
		}
	}
	return n
}
