package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var controlPIDFile string

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a local daemon",
	Long: `Send SIGTERM to the daemon recorded in the PID file and wait for it to exit.

The daemon stops its timers, closes sessions and flushes the last boss state
before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(cmd.Context(), pidController{pidFile: controlPIDFile, timeout: 15 * time.Second}, cmd.OutOrStdout())
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload configuration",
	Long:  `Send SIGHUP to the daemon recorded in the PID file. Only log settings are hot-reloaded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReload(cmd.Context(), pidController{pidFile: controlPIDFile}, cmd.OutOrStdout())
	},
}

func init() {
	for _, c := range []*cobra.Command{stopCmd, reloadCmd} {
		c.Flags().StringVarP(&controlPIDFile, "pidfile", "p", "/var/run/questchain.pid", "PID file path")
	}
}

func runStop(ctx context.Context, controller DaemonController, out io.Writer) error {
	if err := controller.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	fmt.Fprintln(out, "✓ Daemon stopped")
	return nil
}

func runReload(ctx context.Context, controller DaemonController, out io.Writer) error {
	if err := controller.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	fmt.Fprintln(out, "✓ Configuration reload requested")
	return nil
}
