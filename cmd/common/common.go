// Package common holds the plumbing every stemdeck command shares: flag
// conventions, logging, cache directories and external process execution.
package common

import (
	"fmt"
	"os"

	"github.com/GiGurra/boa/pkg/boa"
)

// DefaultParamEnricher derives flag names and short flags from the params
// struct fields.
func DefaultParamEnricher() boa.ParamEnricher {
	return boa.ParamEnricherCombine(
		boa.ParamEnricherBool,
		boa.ParamEnricherName,
		boa.ParamEnricherShort,
	)
}

// ExitOnError prints err as "<cmd>: <err>" to stderr and exits with status 1.
// A nil err does nothing.
func ExitOnError(cmd string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
	os.Exit(1)
}
