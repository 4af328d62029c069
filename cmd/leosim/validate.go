package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/leo-simulator/internal/config"
)

func newValidateCmd() *cobra.Command {
	var (
		schemaPath  string
		printSchema bool
	)
	cmd := &cobra.Command{
		Use:   "validate [scenario.yaml...]",
		Short: "Check scenario files against the schema and semantic rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printSchema {
				_, err := cmd.OutOrStdout().Write(config.Schema())
				return err
			}
			if len(args) == 0 {
				return fmt.Errorf("at least one scenario file is required")
			}
			for _, path := range args {
				s, err := loadScenario(path, schemaPath)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%d satellites, %d ground stations, %d probes)\n",
					path, s.SatelliteCount(), len(s.GroundStations), len(s.Probes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Additional CUE schema file defining #Scenario")
	cmd.Flags().BoolVar(&printSchema, "print-schema", false, "Print the built-in CUE schema and exit")
	return cmd
}

// loadScenario loads path, checking it against an extra CUE schema first
// when one is given.
func loadScenario(path, schemaPath string) (*config.Scenario, error) {
	if schemaPath != "" {
		if err := config.ValidateWithCue(path, schemaPath); err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}
