package transport

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
)

// Status is the transport's playback state.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

// Stem is one decoded audio source of a load. It is never modified after
// being handed to the engine.
type Stem struct {
	Name   string
	Buffer *beep.Buffer
}

// Duration returns the stem's length in seconds.
func (s Stem) Duration() float64 {
	if s.Buffer == nil {
		return 0
	}
	return s.Buffer.Format().SampleRate.D(s.Buffer.Len()).Seconds()
}

// State is the transport's mutable state. SessionStart is the clock anchor of
// the current playing session and only has meaning while Status is playing.
type State struct {
	Status       Status
	PausedOffset float64
	SessionStart float64
	MasterVolume float64
	Muted        map[string]bool
}

// StemInfo describes one loaded stem for display.
type StemInfo struct {
	Name     string
	Duration float64
	Muted    bool
}

// Snapshot is a read-only copy of the engine taken at one instant.
type Snapshot struct {
	Status       Status
	Position     float64
	Duration     float64
	MasterVolume float64
	Stems        []StemInfo
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s %s/%s vol=%.2f", s.Status, FormatSeconds(s.Position), FormatSeconds(s.Duration), s.MasterVolume)
}

// FormatSeconds renders seconds as m:ss.
func FormatSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
