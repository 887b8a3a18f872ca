package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/stemdeck/cmd/common"
	appconfig "github.com/gigurra/stemdeck/cmd/common/config"
	"github.com/spf13/cobra"
)

type Params struct {
	Init  bool `optional:"true" help:"Write the default config to ~/.stemdeck/config.json unless a config exists."`
	Force bool `short:"f" optional:"true" help:"With --init, reset the existing config file in place."`
	Path  bool `optional:"true" help:"Only print the config directory."`
}

func Cmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:         "config",
		Short:       "Show or initialize the stemdeck config",
		Long:        "Print the effective configuration as YAML. Settings are read from config.yaml, config.yml or config.json in ~/.stemdeck.",
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			common.ExitOnError("config", run(params, appconfig.ConfigDir(), os.Stdout))
		},
	}.ToCobra()
}

func run(params *Params, dir string, w io.Writer) error {
	if params.Path {
		fmt.Fprintln(w, dir)
		return nil
	}

	if params.Init {
		target := findConfig(dir)
		if target != "" && !params.Force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", target)
		}
		if target == "" {
			target = filepath.Join(dir, "config.json")
		}
		// The file that would be loaded is the one reset.
		if err := appconfig.SaveFile(target, appconfig.DefaultConfig()); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Fprintf(w, "Wrote %s\n", target)
		return nil
	}

	cfg, err := appconfig.LoadFrom(dir)
	if err != nil {
		return err
	}
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	if existing := findConfig(dir); existing != "" {
		fmt.Fprintf(w, "# %s\n", existing)
	} else {
		fmt.Fprintln(w, "# defaults (no config file)")
	}
	fmt.Fprint(w, out)
	return nil
}

func findConfig(dir string) string {
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil || !errors.Is(err, os.ErrNotExist) {
			return path
		}
	}
	return ""
}
