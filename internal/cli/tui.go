package cli

import (
	"os"

	"github.com/KevinKickass/OpenWalkingPad/internal/tui"
	"github.com/spf13/cobra"
)

func newTUICommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stderr would draw over the dashboard
			if !cmd.Flags().Changed("log-output") {
				opts.Log.OutputPaths = []string{os.DevNull}
			}
			c, err := opts.session()
			if err != nil {
				return err
			}
			defer closeSession(c)

			sub := c.Service.Subscribe()
			defer sub.Close()

			if err := c.Service.StartPolling(c.Config.WalkingPad.PollingInterval); err != nil {
				return err
			}
			defer c.Service.StopPolling()

			return tui.Run(cmd.Context(), c.Service, sub, c.Config.WalkingPad.Model)
		},
	}
}
