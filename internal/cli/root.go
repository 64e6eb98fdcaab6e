// Package cli implements the walkingpad command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/KevinKickass/OpenWalkingPad/internal/app"
	"github.com/KevinKickass/OpenWalkingPad/internal/config"
	"github.com/KevinKickass/OpenWalkingPad/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Options are the persistent flags shared by every subcommand.
type Options struct {
	EnvFile string
	Output  string
	Log     *logging.Options

	// Build is swapped in tests.
	Build func(cfg *config.Config, logger *zap.Logger) (*app.Container, error)
}

func NewOptions() *Options {
	log := logging.NewOptions()
	log.Level = "warn"
	return &Options{
		EnvFile: config.DefaultEnvFile,
		Output:  outputJSON,
		Log:     log,
		Build:   app.Build,
	}
}

// NewRootCommand creates the walkingpad command tree.
func NewRootCommand(opts *Options, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "walkingpad",
		Short:         "Control and monitor a WalkingPad treadmill",
		Long:          "walkingpad talks to a KingSmith WalkingPad over the local miio protocol.\nThe device is configured with WALKINGPAD_IP and WALKINGPAD_TOKEN.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateOutput(opts.Output)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	fs := cmd.PersistentFlags()
	fs.StringVar(&opts.EnvFile, "env-file", opts.EnvFile, "Optional dotenv file; real environment variables take precedence.")
	fs.StringVarP(&opts.Output, "output", "o", opts.Output, "Output format for status and capabilities (json, yaml or table).")
	opts.Log.AddFlags(fs)

	cmd.AddCommand(
		newStatusCommand(opts),
		newCapabilitiesCommand(opts),
		newWatchCommand(opts),
		newTUICommand(opts),
	)
	for _, def := range padCommands {
		cmd.AddCommand(newPadCommand(opts, def))
	}
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := NewOptions()
	cmd := NewRootCommand(opts, stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// session loads configuration and builds the pad service for one invocation.
func (o *Options) session() (*app.Container, error) {
	cfg, err := config.Load(o.EnvFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(o.Log)
	if err != nil {
		return nil, err
	}
	container, err := o.Build(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return container, nil
}

func closeSession(c *app.Container) {
	if err := c.Close(); err != nil {
		c.Logger.Debug("Close failed", zap.Error(err))
	}
	_ = c.Logger.Sync()
}
