package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/belulok/quest-chain/internal/config"
	"github.com/belulok/quest-chain/internal/daemon"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the raid server in foreground",
	Long: `Run the questchain raid server in foreground.

The daemon will:
  1. Load configuration from the config file and QUESTCHAIN_* environment
  2. Initialize logging, metrics and tracing
  3. Restore boss hit points from the persistence backend
  4. Serve /ws, /healthz, /api/raid/state and /api/sponsor
  5. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDaemon(); err != nil {
			slog.Error("daemon failed", "error", err)
			os.Exit(1)
		}
	},
}

var pidFile string

func init() {
	daemonCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (overrides control.pid_file)")
}

func runDaemon() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if pidFile != "" {
		cfg.Control.PIDFile = pidFile
	}

	d := daemon.NewWithConfig(cfg, configFile, Version)

	if err := d.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Run main loop (blocks until shutdown)
	return d.Run()
}
