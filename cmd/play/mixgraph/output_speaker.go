//go:build (linux && cgo) || windows || darwin

package mixgraph

import (
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// AudioAvailable indicates whether this build drives a real sound device.
const AudioAvailable = true

// speakerOutput drives the process-wide beep speaker.
type speakerOutput struct {
	once sync.Once
	err  error
}

var sharedSpeaker = &speakerOutput{}

// DefaultOutput returns the process-wide sound device. The speaker can only be
// initialized once per process, so every Graph shares it.
func DefaultOutput() Output {
	return sharedSpeaker
}

func (s *speakerOutput) Open(sampleRate beep.SampleRate, bufferSize int) error {
	s.once.Do(func() {
		s.err = speaker.Init(sampleRate, bufferSize)
	})
	return s.err
}

func (s *speakerOutput) Play(st beep.Streamer) { speaker.Play(st) }
func (s *speakerOutput) Lock()                 { speaker.Lock() }
func (s *speakerOutput) Unlock()               { speaker.Unlock() }
