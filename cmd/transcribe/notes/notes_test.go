package notes

import (
	"context"
	"errors"
	"testing"
	"time"
)

func stream(msgs ...Message) <-chan Message {
	ch := make(chan Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return ch
}

func TestCollect_Result(t *testing.T) {
	want := []NoteEvent{{PitchMIDI: 60, Start: 0, Duration: 0.5, Velocity: 0.8}}
	var progress []float64

	got, err := Collect(context.Background(), stream(
		InitComplete{},
		Progress{Fraction: 0.2},
		Progress{Fraction: 0.1}, // regress
		Progress{Fraction: 1.5}, // overshoot
		Result{Notes: want},
	), func(p float64) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("expected %v, got %v", want, got)
	}

	expected := []float64{0.2, 0.2, 1, 1}
	if len(progress) != len(expected) {
		t.Fatalf("expected progress %v, got %v", expected, progress)
	}
	for i := range expected {
		if progress[i] != expected[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], expected[i])
		}
	}
}

func TestCollect_EmptyResultIsNotAnError(t *testing.T) {
	got, err := Collect(context.Background(), stream(Result{}), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result, got %v, %v", got, err)
	}
}

func TestCollect_Failure(t *testing.T) {
	cause := errors.New("model exploded")
	_, err := Collect(context.Background(), stream(InitComplete{}, Failure{Err: cause}), nil)

	var te *TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped, got %v", err)
	}
}

func TestCollect_ClosedWithoutTerminal(t *testing.T) {
	_, err := Collect(context.Background(), stream(Progress{Fraction: 0.5}), nil)
	if !errors.Is(err, ErrIncompleteStream) {
		t.Errorf("expected ErrIncompleteStream, got %v", err)
	}
}

func TestCollect_InvalidNote(t *testing.T) {
	_, err := Collect(context.Background(), stream(Result{Notes: []NoteEvent{{PitchMIDI: 200, Duration: 1}}}), nil)
	if !errors.Is(err, ErrInvalidNote) {
		t.Errorf("expected ErrInvalidNote, got %v", err)
	}
}

func TestCollect_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Collect(ctx, make(chan Message), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestNoteEvent_Validate(t *testing.T) {
	tests := []struct {
		name  string
		note  NoteEvent
		valid bool
	}{
		{"ok", NoteEvent{PitchMIDI: 64, Start: 1, Duration: 0.25, Velocity: 0.5}, true},
		{"edges", NoteEvent{PitchMIDI: 127, Start: 0, Duration: 1e-3, Velocity: 1}, true},
		{"negative pitch", NoteEvent{PitchMIDI: -1, Duration: 1}, false},
		{"negative start", NoteEvent{PitchMIDI: 60, Start: -0.1, Duration: 1}, false},
		{"zero duration", NoteEvent{PitchMIDI: 60}, false},
		{"loud", NoteEvent{PitchMIDI: 60, Duration: 1, Velocity: 1.1}, false},
	}
	for _, tt := range tests {
		if err := tt.note.Validate(); (err == nil) != tt.valid {
			t.Errorf("%s: Validate() = %v, want valid=%v", tt.name, err, tt.valid)
		}
	}
}

type countingEncoder struct {
	calls int
}

func (c *countingEncoder) Encode(notes []NoteEvent) ([]byte, error) {
	c.calls++
	return []byte("MThd"), nil
}

func TestExport_NoNotes(t *testing.T) {
	enc := &countingEncoder{}
	_, err := Export(enc, nil)
	if !errors.Is(err, ErrNoNotesDetected) {
		t.Errorf("expected ErrNoNotesDetected, got %v", err)
	}
	if enc.calls != 0 {
		t.Errorf("encoder must not be invoked for an empty list")
	}
}

func TestExport_Encodes(t *testing.T) {
	enc := &countingEncoder{}
	data, err := Export(enc, []NoteEvent{{PitchMIDI: 60, Duration: 1, Velocity: 1}})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if string(data) != "MThd" || enc.calls != 1 {
		t.Errorf("expected one encode call, got %d calls and %q", enc.calls, data)
	}
}
