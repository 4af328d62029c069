package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "leosim",
		Short:         "LEO constellation channel simulator",
		Long:          "leosim builds satellite constellations, ground stations and their links from a scenario file and runs a discrete-event simulation of frame delivery over them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSimulateCmd())
	root.AddCommand(newProfilesCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
