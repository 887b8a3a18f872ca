package info

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/stemdeck/cmd/common"
	"github.com/gigurra/stemdeck/cmd/play"
	"github.com/gigurra/stemdeck/cmd/play/session"
	"github.com/gigurra/stemdeck/cmd/play/transport"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type Params struct {
	Paths []string `pos:"true" required:"true" help:"Audio files or directories of stems."`
	JSON  bool     `long:"json" help:"Output as JSON"`
}

func Cmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:         "info",
		Short:       "Show what a set of stems would play like",
		Long:        "Decode the given stems and show their formats and durations. The longest stem sets the session length.",
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			common.ExitOnError("info", run(params, os.Stdout))
		},
	}.ToCobra()
}

// StemInfo describes one decoded stem.
type StemInfo struct {
	Name       string  `json:"name"`
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
	Frames     int     `json:"frames"`
	Duration   float64 `json:"duration"`
	Longest    bool    `json:"longest"`
}

// Summary is the result of inspecting a stem set.
type Summary struct {
	Stems    []StemInfo `json:"stems"`
	Duration float64    `json:"duration"`
}

// Describe decodes sources and reports their formats. Decoding failures
// abort the whole set.
func Describe(ctx context.Context, sources []session.Source) (Summary, error) {
	stems, err := session.Decode(ctx, sources)
	if err != nil {
		return Summary{}, err
	}
	if len(stems) == 0 {
		return Summary{}, transport.ErrNoStems
	}
	longest := lo.MaxBy(stems, func(a, b transport.Stem) bool { return a.Duration() > b.Duration() })

	infos := lo.Map(stems, func(s transport.Stem, _ int) StemInfo {
		format := s.Buffer.Format()
		return StemInfo{
			Name:       s.Name,
			SampleRate: int(format.SampleRate),
			Channels:   format.NumChannels,
			Frames:     s.Buffer.Len(),
			Duration:   s.Duration(),
			Longest:    s.Name == longest.Name,
		}
	})
	return Summary{Stems: infos, Duration: longest.Duration()}, nil
}

func run(params *Params, w io.Writer) error {
	ctx := context.Background()
	sources, err := play.ResolveSources(ctx, params.Paths)
	if err != nil {
		return err
	}
	summary, err := Describe(ctx, sources)
	if err != nil {
		return err
	}

	if params.JSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	Render(w, summary, termWidth(), isTerminal(w))
	return nil
}

// Render prints summary as a table. The longest stem is highlighted when
// color is set.
func Render(w io.Writer, summary Summary, width int, color bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.SetAllowedRowLength(width)

	t.AppendHeader(table.Row{"#", "Stem", "Rate", "Channels", "Duration"})
	for i, s := range summary.Stems {
		name := s.Name
		if s.Longest && color {
			name = text.FgGreen.Sprint(name)
		}
		t.AppendRow(table.Row{i + 1, name, fmt.Sprintf("%d Hz", s.SampleRate), s.Channels, transport.FormatSeconds(s.Duration)})
	}
	t.AppendFooter(table.Row{"", "session", "", "", transport.FormatSeconds(summary.Duration)})
	t.Render()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func termWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 120
}
