package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/stemdeck/cmd/common"
	"github.com/gigurra/stemdeck/cmd/common/audio/decode"
	"github.com/gigurra/stemdeck/cmd/common/audio/resample"
	"github.com/gigurra/stemdeck/cmd/common/config"
	"github.com/gigurra/stemdeck/cmd/transcribe/basicpitch"
	"github.com/gigurra/stemdeck/cmd/transcribe/midifile"
	"github.com/gigurra/stemdeck/cmd/transcribe/notes"
	"github.com/gopxl/beep/v2"
	"github.com/spf13/cobra"
)

type Params struct {
	File     string `pos:"true" required:"true" help:"Audio file (usually a single stem) to transcribe."`
	Output   string `short:"o" optional:"true" help:"MIDI file to write. Defaults to <file>.mid next to the input."`
	Rate     int    `short:"r" optional:"true" help:"Sample rate handed to the model. Defaults to config (22050)."`
	Tempo    int    `optional:"true" help:"Tempo written to the MIDI file in BPM." default:"120"`
	LogLevel string `optional:"true" help:"Log level (debug, info, warn, error). Defaults to config."`
}

func Cmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:   "transcribe",
		Short: "Turn a stem into a MIDI file",
		Long: `Detect the notes in an audio file with Basic Pitch and save them as MIDI.

Needs the 'basic-pitch' command ('pip install basic-pitch').`,
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			err := run(params)
			if errors.Is(err, notes.ErrNoNotesDetected) {
				fmt.Println("No notes detected, nothing written.")
				return
			}
			common.ExitOnError("transcribe", err)
		},
	}.ToCobra()
}

func run(params *Params) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if params.LogLevel != "" {
		cfg.LogLevel = params.LogLevel
	}
	if params.Rate > 0 {
		cfg.TranscriptionRate = params.Rate
	}
	closer, err := common.SetupLogging(cfg.LogLevel, false)
	if err != nil {
		return err
	}
	defer closer.Close()

	buf, err := decode.DecodeFile(params.File)
	if err != nil {
		return err
	}

	enc := midifile.New()
	enc.Tempo = float64(params.Tempo)
	enc.TrackName = decode.StemName(params.File)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	job := Job{
		Service:   basicpitch.New(cfg.BasicPitchBinary, cfg.TranscribeTimeout()),
		Encoder:   enc,
		Resampler: resample.Resampler{Quality: cfg.ResampleQuality},
		Rate:      cfg.TranscriptionRate,
		OnProgress: func(p float64) {
			fmt.Fprintf(os.Stderr, "\rTranscribing... %3.0f%%", p*100)
		},
	}
	data, count, err := job.Run(ctx, buf)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	out := params.Output
	if out == "" {
		out = strings.TrimSuffix(params.File, filepath.Ext(params.File)) + ".mid"
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Printf("Wrote %d notes to %s\n", count, out)
	return nil
}

// Job is one transcription from decoded audio to MIDI bytes.
type Job struct {
	Service    notes.Service
	Encoder    notes.Encoder
	Resampler  resample.Resampler
	Rate       int
	OnProgress func(float64)
}

// Run down-mixes buf to mono at the job's rate, submits it and encodes the
// detected notes. It returns the encoded file and the number of notes.
func (j Job) Run(ctx context.Context, buf *beep.Buffer) ([]byte, int, error) {
	samples, err := j.Resampler.ToMono(buf, j.Rate)
	if err != nil {
		return nil, 0, err
	}
	msgs, err := j.Service.Submit(ctx, samples, j.Rate)
	if err != nil {
		return nil, 0, &notes.TranscriptionError{Err: err}
	}
	events, err := notes.Collect(ctx, msgs, j.OnProgress)
	if err != nil {
		return nil, 0, err
	}
	data, err := notes.Export(j.Encoder, events)
	if err != nil {
		return nil, 0, err
	}
	return data, len(events), nil
}
