package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show raid server status",
	Long: `Query a running questchain server for its health and the current boss state.

Shows: version, boss hit points, lifecycle (ALIVE, DEFEATED, RESPAWNING) and
the number of connected sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		return runStatus(ctx, newHTTPStatusClient(serverURL), cmd.OutOrStdout())
	},
}

func runStatus(ctx context.Context, client StatusClient, out io.Writer) error {
	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("server is not reachable: %w", err)
	}
	state, err := client.State(ctx)
	if err != nil {
		return fmt.Errorf("failed to query raid state: %w", err)
	}

	fmt.Fprintf(out, "Status:    %s (version %s)\n", health.Status, health.Version)
	fmt.Fprintf(out, "Boss HP:   %d/%d\n", state.BossHP, state.MaxBossHP)
	fmt.Fprintf(out, "Lifecycle: %s\n", state.Lifecycle)
	fmt.Fprintf(out, "Sessions:  %d\n", state.Sessions)
	fmt.Fprintf(out, "Updated:   %s\n", time.UnixMilli(state.Timestamp).UTC().Format(time.RFC3339))
	return nil
}
