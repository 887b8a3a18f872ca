package mixgraph

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// Output is the device end of the graph. Play hands a streamer to the device,
// which pulls from it on its own goroutine while holding the lock exposed by
// Lock/Unlock. Anything the audio goroutine reads must only be mutated with
// that lock held.
type Output interface {
	Open(sampleRate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Lock()
	Unlock()
}

// ManualOutput is an Output that never pulls on its own. Tests call Pull to
// render audio deterministically.
type ManualOutput struct {
	mu         sync.Mutex
	opens      int
	sampleRate beep.SampleRate
	streamers  []beep.Streamer
}

// NewManualOutput creates an unopened ManualOutput.
func NewManualOutput() *ManualOutput {
	return &ManualOutput{}
}

func (m *ManualOutput) Open(sampleRate beep.SampleRate, bufferSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	m.sampleRate = sampleRate
	return nil
}

func (m *ManualOutput) Play(s beep.Streamer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamers = append(m.streamers, s)
}

func (m *ManualOutput) Lock()   { m.mu.Lock() }
func (m *ManualOutput) Unlock() { m.mu.Unlock() }

// Opens returns how many times Open was called.
func (m *ManualOutput) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// SampleRate returns the rate the output was opened with.
func (m *ManualOutput) SampleRate() beep.SampleRate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sampleRate
}

// Pull renders n frames from every playing streamer, summed, the same way a
// device callback would.
func (m *ManualOutput) Pull(n int) [][2]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mixInto(m.streamers, make([][2]float64, n))
}

// mixInto sums every streamer into out. Drained streamers contribute silence.
func mixInto(streamers []beep.Streamer, out [][2]float64) [][2]float64 {
	tmp := make([][2]float64, len(out))
	for _, s := range streamers {
		n, _ := s.Stream(tmp)
		for i := 0; i < n; i++ {
			out[i][0] += tmp[i][0]
			out[i][1] += tmp[i][1]
		}
	}
	return out
}
