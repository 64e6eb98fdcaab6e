package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/events"
	"github.com/KevinKickass/OpenWalkingPad/internal/pad"
	"github.com/spf13/cobra"
)

type padCommandDef struct {
	use     string
	short   string
	command pad.Command
}

var padCommands = []padCommandDef{
	{"start", "Start the belt (powers the pad on if needed)", pad.CommandStart},
	{"stop", "Stop the belt", pad.CommandStop},
	{"power-on", "Power the pad on", pad.CommandPowerOn},
	{"power-off", "Power the pad off", pad.CommandPowerOff},
	{"lock", "Lock the pad", pad.CommandLock},
	{"unlock", "Unlock the pad", pad.CommandUnlock},
	{"set-speed <0..6>", "Set the belt speed in km/h", pad.CommandSetSpeed},
	{"set-start-speed <0..6>", "Set the start speed in km/h", pad.CommandSetStartSpeed},
	{"set-mode <auto|manual|off>", "Set the operating mode", pad.CommandSetMode},
	{"set-sensitivity <high|medium|low>", "Set the auto mode sensitivity", pad.CommandSetSensitivity},
}

func newPadCommand(opts *Options, def padCommandDef) *cobra.Command {
	args := cobra.NoArgs
	if def.command.NeedsArgument() {
		args = cobra.ExactArgs(1)
	}
	return &cobra.Command{
		Use:   def.use,
		Short: def.short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.session()
			if err != nil {
				return err
			}
			defer closeSession(c)

			req := pad.CommandRequest{Command: def.command}
			if len(args) == 1 {
				req.Value = args[0]
			}
			result, err := c.Service.Dispatch(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			return err
		},
	}
}

func newStatusCommand(opts *Options) *cobra.Command {
	var quick bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Read the pad status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.session()
			if err != nil {
				return err
			}
			defer closeSession(c)

			status, err := c.Service.GetStatus(cmd.Context(), quick)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), opts.Output, status)
		},
	}
	cmd.Flags().BoolVar(&quick, "quick", false, "Use the quick status read")
	return cmd
}

func newCapabilitiesCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Show what the configured model supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.session()
			if err != nil {
				return err
			}
			defer closeSession(c)
			return printCapabilities(cmd.OutOrStdout(), opts.Output, c.Service.Capabilities())
		},
	}
}

// watchLine is one JSON line of the watch output.
type watchLine struct {
	Type      events.Kind  `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Data      events.Event `json:"data"`
}

func newWatchCommand(opts *Options) *cobra.Command {
	var (
		interval time.Duration
		count    int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the pad and stream events as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.session()
			if err != nil {
				return err
			}
			defer closeSession(c)

			if interval == 0 {
				interval = c.Config.WalkingPad.PollingInterval
			}

			// Subscribe before polling so the first read is not missed
			sub := c.Service.Subscribe()
			defer sub.Close()
			if err := c.Service.StartPolling(interval); err != nil {
				return err
			}
			defer c.Service.StopPolling()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for seen := 0; count == 0 || seen < count; seen++ {
				ev, err := sub.Next(cmd.Context())
				if err != nil {
					// Ctrl-C ends the stream normally
					return nil
				}
				if err := enc.Encode(watchLine{Type: ev.Kind(), Timestamp: ev.Time(), Data: ev}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Polling interval (default WALKINGPAD_POLLING_INTERVAL)")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many events (0 = until interrupted)")
	return cmd
}
