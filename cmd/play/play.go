package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/stemdeck/cmd/common"
	"github.com/gigurra/stemdeck/cmd/common/audio/decode"
	"github.com/gigurra/stemdeck/cmd/common/config"
	"github.com/gigurra/stemdeck/cmd/export/bundle"
	"github.com/gigurra/stemdeck/cmd/play/mixgraph"
	"github.com/gigurra/stemdeck/cmd/play/session"
	"github.com/gigurra/stemdeck/cmd/play/transport"
	"github.com/gigurra/stemdeck/cmd/separate/separation"
	"github.com/gopxl/beep/v2"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type Params struct {
	Paths    []string `pos:"true" required:"true" help:"Audio files to play together, directories of stems or stem archives."`
	Volume   float64  `short:"v" optional:"true" help:"Initial master volume 0-1. Negative uses the configured value." default:"-1"`
	Headless bool     `optional:"true" help:"Play without the interactive UI and exit when finished."`
	Watch    bool     `short:"w" optional:"true" help:"Reload the session when the stem files change."`
	LogLevel string   `optional:"true" help:"Log level (debug, info, warn, error). Defaults to config."`
}

func Cmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:   "play",
		Short: "Play stems in sync",
		Long: `Play several audio files as one synchronized timeline.

Controls:
  SPACE        - Play/pause
  LEFT/RIGHT   - Seek -/+ 5 seconds
  1-9          - Mute/unmute stem
  +/-          - Master volume
  s            - Stop and unload
  q or ESC     - Quit

Directories are expanded to the audio files they contain, so the output of
'stemdeck separate' can be played directly. Archives written by
'stemdeck export' are unpacked into the cache first.`,
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			common.ExitOnError("play", run(params))
		},
	}.ToCobra()
}

func run(params *Params) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if params.Volume >= 0 {
		cfg.MasterVolume = params.Volume
	}
	if params.LogLevel != "" {
		cfg.LogLevel = params.LogLevel
	}

	sources, err := ResolveSources(context.Background(), params.Paths)
	if err != nil {
		return err
	}

	interactive := !params.Headless && term.IsTerminal(int(os.Stdout.Fd()))
	closer, err := common.SetupLogging(cfg.LogLevel, interactive)
	if err != nil {
		return err
	}
	defer closer.Close()

	opts := Options{Interactive: interactive}
	if params.Watch {
		opts.Watch = params.Paths
	}
	return Run(cfg, sources, opts)
}

// ResolveSources expands directories and stem archives into their audio
// files. Plain files are taken as they are.
func ResolveSources(ctx context.Context, paths []string) ([]session.Source, error) {
	var sources []session.Source
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() && bundle.IsBundle(p) {
			unpacked, err := unpackBundle(ctx, p)
			if err != nil {
				return nil, err
			}
			sources = append(sources, unpacked...)
			continue
		}
		if !info.IsDir() {
			sources = append(sources, session.FileSources([]string{p})...)
			continue
		}
		res, err := separation.DirService{}.Separate(ctx, separation.Request{AudioPath: p})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		sources = append(sources, session.ResultSources(res)...)
	}
	if len(sources) == 0 {
		return nil, transport.ErrNoStems
	}
	return sources, nil
}

// unpackBundle extracts an archive of stems into its own directory below
// common.BundleDir, replacing an earlier unpack of the same name.
func unpackBundle(ctx context.Context, path string) ([]session.Source, error) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(strings.TrimSuffix(name, filepath.Ext(name)), ".tar")
	dir := filepath.Join(common.BundleDir(), name)
	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}
	files, err := bundle.Extract(ctx, path, dir)
	if err != nil {
		return nil, err
	}
	files = lo.Filter(files, func(f string, _ int) bool { return decode.Supported(f) })
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", path, separation.ErrNoStemsFound)
	}
	slices.Sort(files)
	slog.Debug("bundle unpacked", "archive", path, "dir", dir, "stems", len(files))
	return session.FileSources(files), nil
}

// NewEngine builds the playback stack described by cfg on the default
// output device.
func NewEngine(cfg *config.Config) *transport.Engine {
	graph := mixgraph.New(mixgraph.DefaultOutput(), mixgraph.Options{
		SampleRate:     beep.SampleRate(cfg.SampleRate),
		BufferDuration: cfg.BufferDuration(),
		Quality:        cfg.ResampleQuality,
		MuteRamp:       cfg.MuteRamp(),
		FFTSize:        cfg.FFTSize,
	})
	engine := transport.New(graph, transport.Options{
		CompletionTolerance: cfg.CompletionToleranceSeconds,
	})
	engine.SetMasterVolume(cfg.MasterVolume)
	return engine
}

// Options controls how Run presents a session.
type Options struct {
	// Interactive runs the terminal UI instead of logging progress.
	Interactive bool
	// Watch lists paths to re-resolve and reload whenever their audio
	// files change.
	Watch []string
}

// Run decodes sources, starts playback and blocks until the user quits or,
// when not interactive, until playback finishes.
func Run(cfg *config.Config, sources []session.Source, opts Options) error {
	if !mixgraph.AudioAvailable {
		slog.Warn("audio output not available in this build, playing silently")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := NewEngine(cfg)
	defer engine.Stop()

	if opts.Interactive {
		fmt.Printf("Decoding %d stems...\n", len(sources))
	}
	loader := session.NewLoader(engine)
	stems, err := loader.Load(ctx, sources)
	if err != nil {
		return err
	}

	if len(opts.Watch) > 0 {
		w, err := NewWatcher(opts.Watch)
		if err != nil {
			return err
		}
		go w.Run(ctx, 500*time.Millisecond, func() { reload(ctx, loader, opts.Watch) })
	}

	if opts.Interactive {
		return runInteractive(engine)
	}
	return runHeadless(ctx, engine, len(stems))
}

// reload re-resolves paths and replaces the session. A failed reload keeps
// the current session playing.
func reload(ctx context.Context, loader *session.Loader, paths []string) {
	sources, err := ResolveSources(ctx, paths)
	if err == nil {
		_, err = loader.Load(ctx, sources)
	}
	if err != nil {
		slog.Warn("reload failed", "error", err)
		return
	}
	slog.Info("session reloaded", "stems", len(sources))
}

func runHeadless(ctx context.Context, engine *transport.Engine, stems int) error {
	finished := make(chan struct{}, 1)
	engine.OnChange(func(s transport.Snapshot) {
		if s.Status != transport.StatusPlaying {
			select {
			case finished <- struct{}{}:
			default:
			}
		}
	})

	slog.Info("playing", "stems", stems, "duration", transport.FormatSeconds(engine.SessionDuration()))
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("interrupted", "position", transport.FormatSeconds(engine.CurrentPosition()))
			return nil
		case <-finished:
			slog.Info("finished")
			return nil
		case <-ticker.C:
			slog.Info("position", "at", engine.Snapshot().String())
		}
	}
}
