package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/rtlstream/radio"
	"github.com/chzchzchz/rtlstream/tuner"
)

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List attached RTL-SDR devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devs, err := radio.List()
			if err != nil {
				return fmt.Errorf("%w: %w", tuner.ErrDeviceUnavailable, err)
			}
			return writeDeviceTable(a.stdout, devs)
		},
	}
}

func writeDeviceTable(w io.Writer, devs []radio.DeviceInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tMANUFACTURER\tPRODUCT\tSERIAL")
	for _, d := range devs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", d.Index, d.Name, d.Manufacturer, d.Product, d.Serial)
	}
	return tw.Flush()
}
