// Package basicpitch transcribes audio with Spotify's Basic Pitch command
// line tool.
package basicpitch

import (
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/gigurra/stemdeck/cmd/common"
	"github.com/gigurra/stemdeck/cmd/common/audio/resample"
	"github.com/gigurra/stemdeck/cmd/transcribe/notes"
)

var (
	ErrNoSamples       = errors.New("no samples to transcribe")
	ErrNoNoteEventFile = errors.New("basic-pitch produced no note events file")
)

// Service implements notes.Service on top of the basic-pitch binary.
type Service struct {
	Binary  string        // default "basic-pitch"
	Timeout time.Duration // per run, default 10 minutes
	WorkDir string        // parent for scratch directories, default os.TempDir()
	Run     common.Runner // default common.RunCommand
}

// New returns a Service running binary.
func New(binary string, timeout time.Duration) *Service {
	return &Service{Binary: binary, Timeout: timeout}
}

// Submit writes samples to a scratch WAV, runs basic-pitch on it and streams
// the outcome. The channel always ends with a Result or a Failure and is then
// closed.
func (s *Service) Submit(ctx context.Context, samples []float32, sampleRate int) (<-chan notes.Message, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", resample.ErrInvalidRate, sampleRate)
	}

	out := make(chan notes.Message, 4)
	go func() {
		defer close(out)
		send := func(m notes.Message) bool {
			select {
			case out <- m:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(notes.InitComplete{}) || !send(notes.Progress{Fraction: 0}) {
			return
		}
		events, err := s.transcribe(ctx, samples, sampleRate, func(p float64) { send(notes.Progress{Fraction: p}) })
		if err != nil {
			slog.Warn("transcription failed", "error", err)
			send(notes.Failure{Err: err})
			return
		}
		if send(notes.Progress{Fraction: 1}) {
			send(notes.Result{Notes: events})
		}
	}()
	return out, nil
}

func (s *Service) transcribe(ctx context.Context, samples []float32, sampleRate int, progress func(float64)) ([]notes.NoteEvent, error) {
	dir, err := os.MkdirTemp(s.WorkDir, "stemdeck-transcribe-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "input.wav")
	if err := writeWAV(wavPath, samples, sampleRate); err != nil {
		return nil, err
	}
	progress(0.1)

	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0755); err != nil {
		return nil, err
	}

	binary := cmp.Or(s.Binary, "basic-pitch")
	timeout := cmp.Or(s.Timeout, 10*time.Minute)
	run := s.Run
	if run == nil {
		run = common.RunCommand
	}
	slog.Debug("running basic-pitch", "binary", binary, "samples", len(samples), "rate", sampleRate)
	if err := run(ctx, timeout, binary, "--save-note-events", outDir, wavPath); err != nil {
		return nil, err
	}
	progress(0.9)

	matches, err := filepath.Glob(filepath.Join(outDir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoNoteEventFile
	}
	f, err := os.Open(matches[0])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseNoteEvents(f)
}

func writeWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := resample.EncodeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// ParseNoteEvents reads basic-pitch's note events CSV:
// start_time_s,end_time_s,pitch_midi,velocity[,pitch_bend...]. Velocity is
// 0-127 in the file and 0-1 in the result. Rows that do not describe a
// playable note are skipped. Notes come back ordered by start time.
func ParseNoteEvents(r io.Reader) ([]notes.NoteEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var events []notes.NoteEvent
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("note events csv: %w", err)
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("note events csv line %d: expected at least 4 fields, got %d", line, len(rec))
		}
		start, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("note events csv line %d: start: %w", line, err)
		}
		end, err1 := strconv.ParseFloat(rec[1], 64)
		pitch, err2 := strconv.ParseFloat(rec[2], 64)
		vel, err3 := strconv.ParseFloat(rec[3], 64)
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, fmt.Errorf("note events csv line %d: %w", line, err)
		}

		ev := notes.NoteEvent{
			PitchMIDI: int(pitch),
			Start:     start,
			Duration:  end - start,
			Velocity:  min(max(vel/127, 0), 1),
		}
		if err := ev.Validate(); err != nil {
			slog.Debug("skipping note event", "line", line, "error", err)
			continue
		}
		events = append(events, ev)
	}

	slices.SortStableFunc(events, func(a, b notes.NoteEvent) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return events, nil
}
