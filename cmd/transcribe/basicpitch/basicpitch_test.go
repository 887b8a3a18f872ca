package basicpitch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gigurra/stemdeck/cmd/common"
	"github.com/gigurra/stemdeck/cmd/transcribe/notes"
)

const sampleCSV = `start_time_s,end_time_s,pitch_midi,velocity,pitch_bend
1.5,2.0,64,127,0,1,2
0.25,0.75,60,64
3.0,3.0,62,100
`

func fakeRunner(t *testing.T, csv string) common.Runner {
	return func(ctx context.Context, timeout time.Duration, name string, args ...string) error {
		if name != "basic-pitch" {
			t.Errorf("expected basic-pitch, got %s", name)
		}
		if len(args) != 3 || args[0] != "--save-note-events" {
			t.Errorf("unexpected args %v", args)
			return errors.New("bad args")
		}
		if _, err := os.Stat(args[2]); err != nil {
			t.Errorf("expected input wav to exist: %v", err)
		}
		if csv == "" {
			return nil
		}
		return os.WriteFile(filepath.Join(args[1], "input_basic_pitch.csv"), []byte(csv), 0644)
	}
}

func samples(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.1
	}
	return s
}

func TestSubmit_Result(t *testing.T) {
	work := t.TempDir()
	svc := &Service{WorkDir: work, Run: fakeRunner(t, sampleCSV)}

	msgs, err := svc.Submit(context.Background(), samples(2205), 22050)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	var progress []float64
	got, err := notes.Collect(context.Background(), msgs, func(p float64) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 playable notes, got %v", got)
	}
	if got[0].PitchMIDI != 60 || got[0].Start != 0.25 || got[0].Duration != 0.5 {
		t.Errorf("unexpected first note %+v", got[0])
	}
	if got[1].Velocity != 1 {
		t.Errorf("expected velocity 127 to map to 1, got %v", got[1].Velocity)
	}

	want := []float64{0, 0.1, 0.9, 1, 1}
	if len(progress) != len(want) {
		t.Fatalf("expected progress %v, got %v", want, progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}

	entries, _ := os.ReadDir(work)
	if len(entries) != 0 {
		t.Errorf("expected scratch dir removed, found %d entries", len(entries))
	}
}

func TestSubmit_RunnerFailure(t *testing.T) {
	svc := &Service{WorkDir: t.TempDir(), Run: func(context.Context, time.Duration, string, ...string) error {
		return errors.New("exit status 1")
	}}
	msgs, err := svc.Submit(context.Background(), samples(100), 22050)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	_, err = notes.Collect(context.Background(), msgs, nil)

	var te *notes.TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "exit status 1") {
		t.Errorf("expected runner error in message, got %v", err)
	}
}

func TestSubmit_NoOutput(t *testing.T) {
	svc := &Service{WorkDir: t.TempDir(), Run: fakeRunner(t, "")}
	msgs, _ := svc.Submit(context.Background(), samples(100), 22050)
	_, err := notes.Collect(context.Background(), msgs, nil)
	if !errors.Is(err, ErrNoNoteEventFile) {
		t.Errorf("expected ErrNoNoteEventFile, got %v", err)
	}
}

func TestSubmit_RejectsBadInput(t *testing.T) {
	svc := New("basic-pitch", time.Minute)
	if _, err := svc.Submit(context.Background(), nil, 22050); !errors.Is(err, ErrNoSamples) {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}
	if _, err := svc.Submit(context.Background(), samples(10), 0); err == nil {
		t.Errorf("expected error for zero sample rate")
	}
}

func TestParseNoteEvents_Empty(t *testing.T) {
	got, err := ParseNoteEvents(strings.NewReader("start_time_s,end_time_s,pitch_midi,velocity,pitch_bend\n"))
	if err != nil || len(got) != 0 {
		t.Errorf("expected no notes, got %v, %v", got, err)
	}
}

func TestParseNoteEvents_Malformed(t *testing.T) {
	tests := []string{
		"0.1,0.2\n",
		"0.1,0.2,60,100\n0.3,abc,60,100\n",
		"0.1,0.2,60,100\nnope,0.5,60,100\n",
	}
	for _, in := range tests {
		if _, err := ParseNoteEvents(strings.NewReader(in)); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}
