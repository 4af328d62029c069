package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/leo-simulator/core"
)

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in link profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tEIRP_DBW\tRX_GAIN_DB\tFREQ_GHZ\tMIN_ELEV_DEG\tRATE_MBPS\tMAX_RANGE_KM")
			for _, name := range core.ProfileNames() {
				p, err := core.ProfileByName(name)
				if err != nil {
					return err
				}
				kind := "user-link"
				if p.InterSatellite {
					kind = "isl"
				}
				fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%.1f\t%.0f\t%.0f\t%.0f\n",
					p.Name, kind, p.EIRPDBW, p.RxGainDB, p.FrequencyHz/1e9,
					p.MinElevationDeg, p.DataRateBps/1e6, p.MaxRangeM/1e3)
			}
			return w.Flush()
		},
	}
}
