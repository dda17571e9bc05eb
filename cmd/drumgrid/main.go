// Package main is the entry point for the drumgrid CLI
package main

import (
	"fmt"
	"os"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver

	"github.com/james-see/drumgrid/pkg/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := cli.NewRootCmd(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)).Execute()
	midi.CloseDriver()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
