package export

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/stemdeck/cmd/common"
	"github.com/gigurra/stemdeck/cmd/export/bundle"
	"github.com/gigurra/stemdeck/cmd/play"
	"github.com/gigurra/stemdeck/cmd/separate/separation"
	"github.com/spf13/cobra"
)

type Params struct {
	Paths   []string `pos:"true" required:"true" help:"Stem files or directories of stems to bundle."`
	Output  string   `short:"o" required:"true" help:"Archive to write (format from extension: zip, tar, tar.gz, tar.xz, tar.zst)."`
	Format  string   `short:"f" optional:"true" help:"Archive format, overriding the extension."`
	Verbose bool     `short:"v" optional:"true" help:"List stems as they are added."`
}

func Cmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:   "export",
		Short: "Bundle stems into one archive",
		Long: `Pack a stem set into a single archive, one file per stem at the top level.

The archive can be passed straight to 'stemdeck play'.

Examples:
  stemdeck export -o song.zip ~/.cache/stemdeck/separated/<session>/htdemucs_6s/song
  stemdeck export -o band.tar.gz drums.wav bass.flac vocals.mp3`,
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			common.ExitOnError("export", run(context.Background(), params))
		},
	}.ToCobra()
}

func run(ctx context.Context, params *Params) error {
	format, err := bundle.Format(params.Output, params.Format)
	if err != nil {
		return err
	}
	sources, err := play.ResolveSources(ctx, params.Paths)
	if err != nil {
		return err
	}

	files := make(map[string]string, len(sources))
	for _, src := range sources {
		path, err := separation.LocatorPath(src.Locator)
		if err != nil {
			return fmt.Errorf("stem %q: %w", src.Name, err)
		}
		name := src.Name + filepath.Ext(path)
		for _, taken := range files {
			if taken == name {
				return fmt.Errorf("stem %q appears more than once", src.Name)
			}
		}
		files[path] = name
		if params.Verbose {
			fmt.Printf("a %s\n", name)
		}
	}

	if err := bundle.Create(ctx, params.Output, format, files); err != nil {
		return err
	}
	fmt.Printf("Wrote %d stems to %s\n", len(files), params.Output)
	return nil
}
