package main

import (
	"runtime/debug"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gigurra/stemdeck/cmd/config"
	"github.com/gigurra/stemdeck/cmd/export"
	"github.com/gigurra/stemdeck/cmd/info"
	"github.com/gigurra/stemdeck/cmd/play"
	"github.com/gigurra/stemdeck/cmd/separate"
	"github.com/gigurra/stemdeck/cmd/transcribe"
	"github.com/spf13/cobra"
)

func main() {
	boa.CmdT[boa.NoParams]{
		Use:     "stemdeck",
		Short:   "Play, split and transcribe multitrack stems",
		Version: appVersion(),
		SubCmds: []*cobra.Command{
			play.Cmd(),
			info.Cmd(),
			separate.Cmd(),
			transcribe.Cmd(),
			export.Cmd(),
			config.Cmd(),
		},
	}.Run()
}

func appVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown-(no build info)"
	}
	if bi.Main.Version == "" {
		return "unknown-(no version)"
	}
	return bi.Main.Version
}
