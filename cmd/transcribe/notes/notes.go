// Package notes defines the transcription protocol: the messages a
// transcription service emits for one submission, the note events it
// produces, and the MIDI export step that consumes them.
package notes

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrNoNotesDetected  = errors.New("no notes detected")
	ErrIncompleteStream = errors.New("transcription ended without a result")
	ErrInvalidNote      = errors.New("invalid note event")
)

// NoteEvent is one detected note.
type NoteEvent struct {
	PitchMIDI int     // 0-127
	Start     float64 // seconds, >= 0
	Duration  float64 // seconds, > 0
	Velocity  float64 // 0-1
}

// End returns the note-off time in seconds.
func (n NoteEvent) End() float64 {
	return n.Start + n.Duration
}

// Validate reports whether the note is within range.
func (n NoteEvent) Validate() error {
	switch {
	case n.PitchMIDI < 0 || n.PitchMIDI > 127:
		return fmt.Errorf("%w: pitch %d out of range [0, 127]", ErrInvalidNote, n.PitchMIDI)
	case math.IsNaN(n.Start) || n.Start < 0:
		return fmt.Errorf("%w: negative start %v", ErrInvalidNote, n.Start)
	case math.IsNaN(n.Duration) || n.Duration <= 0:
		return fmt.Errorf("%w: non-positive duration %v", ErrInvalidNote, n.Duration)
	case math.IsNaN(n.Velocity) || n.Velocity < 0 || n.Velocity > 1:
		return fmt.Errorf("%w: velocity %v out of range [0, 1]", ErrInvalidNote, n.Velocity)
	}
	return nil
}

// Message is one event of a transcription stream. Exactly one Result or
// Failure terminates a stream.
type Message interface {
	message()
}

// InitComplete signals the model is loaded.
type InitComplete struct{}

// Progress reports completion in [0,1].
type Progress struct {
	Fraction float64
}

// Result carries the detected notes.
type Result struct {
	Notes []NoteEvent
}

// Failure carries the reason the transcription failed.
type Failure struct {
	Err error
}

func (InitComplete) message() {}
func (Progress) message()     {}
func (Result) message()       {}
func (Failure) message()      {}

// Service transcribes mono samples. Submit starts one transcription and
// returns the stream of its messages; the channel is closed after the
// terminal message.
type Service interface {
	Submit(ctx context.Context, samples []float32, sampleRate int) (<-chan Message, error)
}

// TranscriptionError reports a failed transcription.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// Collect consumes one submission's stream. Progress is clamped to [0,1],
// never goes backwards, and is forwarded to onProgress when it is non-nil.
// A Failure, a stream that closes without a terminal message, or a done
// context all come back as *TranscriptionError.
func Collect(ctx context.Context, msgs <-chan Message, onProgress func(float64)) ([]NoteEvent, error) {
	last := 0.0
	report := func(p float64) {
		if math.IsNaN(p) {
			return
		}
		p = math.Max(last, math.Min(1, math.Max(0, p)))
		last = p
		if onProgress != nil {
			onProgress(p)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, &TranscriptionError{Err: ctx.Err()}
		case msg, ok := <-msgs:
			if !ok {
				return nil, &TranscriptionError{Err: ErrIncompleteStream}
			}
			switch m := msg.(type) {
			case InitComplete:
			case Progress:
				report(m.Fraction)
			case Result:
				for i, n := range m.Notes {
					if err := n.Validate(); err != nil {
						return nil, &TranscriptionError{Err: fmt.Errorf("note %d: %w", i, err)}
					}
				}
				report(1)
				return m.Notes, nil
			case Failure:
				err := m.Err
				if err == nil {
					err = errors.New("unknown error")
				}
				return nil, &TranscriptionError{Err: err}
			}
		}
	}
}

// Encoder serializes notes into a Standard MIDI File.
type Encoder interface {
	Encode(notes []NoteEvent) ([]byte, error)
}

// Export encodes notes with enc. An empty list is reported as
// ErrNoNotesDetected and never reaches the encoder.
func Export(enc Encoder, notes []NoteEvent) ([]byte, error) {
	if len(notes) == 0 {
		return nil, ErrNoNotesDetected
	}
	data, err := enc.Encode(notes)
	if err != nil {
		return nil, fmt.Errorf("encode midi: %w", err)
	}
	return data, nil
}
