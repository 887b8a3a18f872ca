package separate

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/stemdeck/cmd/common"
	"github.com/gigurra/stemdeck/cmd/common/config"
	"github.com/gigurra/stemdeck/cmd/play"
	"github.com/gigurra/stemdeck/cmd/play/session"
	"github.com/gigurra/stemdeck/cmd/separate/separation"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type Params struct {
	File     string `pos:"true" required:"true" help:"Audio file to split into stems."`
	Model    string `short:"m" optional:"true" help:"Demucs model. Defaults to config (htdemucs_6s)."`
	Output   string `short:"o" optional:"true" help:"Directory for separation sessions. Defaults to config or the cache dir."`
	Play     bool   `short:"p" optional:"true" help:"Play the stems when done."`
	LogLevel string `optional:"true" help:"Log level (debug, info, warn, error). Defaults to config."`
}

func Cmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:   "separate",
		Short: "Split a song into stems with Demucs",
		Long: `Run Demucs on an audio file and list the resulting stems.

Needs a Python with demucs installed ('pip install demucs'). Each run gets its
own session directory, which can later be passed to 'stemdeck play'.`,
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			common.ExitOnError("separate", run(params))
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
	interactive := playsInTerminal(params, term.IsTerminal(int(os.Stdout.Fd())))
	closer, err := common.SetupLogging(cfg.LogLevel, interactive)
	if err != nil {
		return err
	}
	defer closer.Close()

	outDir := cmp.Or(params.Output, cfg.SeparationOutputDir, common.SeparationDir())
	svc := separation.NewDemucs(cfg.DemucsPython, outDir, cfg.SeparateTimeout())
	req := separation.Request{AudioPath: params.File, Model: cmp.Or(params.Model, cfg.SeparationModel)}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	res, err := Separate(ctx, svc, req, os.Stdout)
	stop()
	if err != nil {
		return err
	}

	if !params.Play {
		fmt.Printf("\nPlay with: stemdeck play %s\n", res.Dir)
		return nil
	}
	return play.Run(cfg, session.ResultSources(res), play.Options{Interactive: interactive})
}

// playsInTerminal reports whether the run ends in the TUI, in which case
// logs must go to the log file.
func playsInTerminal(params *Params, stdoutIsTerminal bool) bool {
	return params.Play && stdoutIsTerminal
}

// Separate runs svc on req and prints the stems it produced to w.
func Separate(ctx context.Context, svc separation.Service, req separation.Request, w io.Writer) (separation.Result, error) {
	fmt.Fprintf(w, "Separating %s (this can take a while)...\n", req.AudioPath)
	res, err := svc.Separate(ctx, req)
	if err != nil {
		return separation.Result{}, err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Stem", "Location"})
	for _, name := range res.Names() {
		t.AppendRow(table.Row{name, res.Stems[name]})
	}
	if res.SessionID != "" {
		t.AppendFooter(table.Row{"session", res.SessionID})
	}
	t.Render()
	return res, nil
}
