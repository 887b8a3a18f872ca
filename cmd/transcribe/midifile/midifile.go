// Package midifile writes note events as a Standard MIDI File.
package midifile

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/gigurra/stemdeck/cmd/transcribe/notes"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	DefaultTempo      = 120.0
	DefaultResolution = smf.MetricTicks(960)
)

// Encoder writes a single-track SMF at a fixed tempo.
type Encoder struct {
	Tempo      float64
	Resolution smf.MetricTicks
	Channel    uint8
	TrackName  string
}

// New returns an encoder at 120 BPM and 960 ticks per quarter note.
func New() *Encoder {
	return &Encoder{Tempo: DefaultTempo, Resolution: DefaultResolution, TrackName: "transcription"}
}

type event struct {
	tick uint32
	on   bool
	key  uint8
	vel  uint8
}

// Encode implements notes.Encoder.
func (e *Encoder) Encode(events []notes.NoteEvent) ([]byte, error) {
	tempo := e.Tempo
	if tempo <= 0 {
		tempo = DefaultTempo
	}
	res := e.Resolution
	if res == 0 {
		res = DefaultResolution
	}
	ticksPerSecond := tempo / 60 * float64(res.Ticks4th())
	toTicks := func(sec float64) uint32 {
		return uint32(math.Round(sec * ticksPerSecond))
	}

	timeline := make([]event, 0, 2*len(events))
	for i, n := range events {
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("note %d: %w", i, err)
		}
		key := uint8(n.PitchMIDI)
		vel := uint8(min(max(math.Round(n.Velocity*127), 1), 127))
		on, off := toTicks(n.Start), toTicks(n.End())
		if off <= on {
			off = on + 1
		}
		timeline = append(timeline,
			event{tick: on, on: true, key: key, vel: vel},
			event{tick: off, key: key})
	}
	// Offs sort before ons on the same tick so repeated pitches retrigger.
	slices.SortStableFunc(timeline, func(a, b event) int {
		if c := cmp.Compare(a.tick, b.tick); c != 0 {
			return c
		}
		switch {
		case a.on == b.on:
			return 0
		case !a.on:
			return -1
		default:
			return 1
		}
	})

	var tr smf.Track
	if e.TrackName != "" {
		tr.Add(0, smf.MetaTrackSequenceName(e.TrackName))
	}
	tr.Add(0, smf.MetaTempo(tempo))
	var prev uint32
	for _, ev := range timeline {
		delta := ev.tick - prev
		prev = ev.tick
		if ev.on {
			tr.Add(delta, midi.NoteOn(e.Channel, ev.key, ev.vel))
		} else {
			tr.Add(delta, midi.NoteOff(e.Channel, ev.key))
		}
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = res
	if err := s.Add(tr); err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write smf: %w", err)
	}
	return buf.Bytes(), nil
}
