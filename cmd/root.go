// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X ...cmd.Version=...".
var Version = "0.3.0"

var (
	// Global flags
	configFile string
	serverURL  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "questchain",
	Short: "QuestChain - real-time shared boss raid server",
	Long: `QuestChain runs a single shared boss raid: players connected over WebSocket
attack one boss whose hit points are authoritative on the server and broadcast to
everyone after every change.

Features:
  - Server-side damage clamping and per-client rate limiting
  - Periodic regeneration and timed respawn
  - Memory, file, SQLite or Redis persistence of boss hit points
  - Optional Kafka lifecycle events, Prometheus metrics and OTLP tracing`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and QUESTCHAIN_* env when empty)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:3001",
		"base URL of a running questchain server")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(attackCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
}

// wsURL derives the websocket endpoint from an http(s) base URL.
func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
