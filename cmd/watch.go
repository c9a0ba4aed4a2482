package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/belulok/quest-chain/internal/client"
	"github.com/belulok/quest-chain/internal/proto"
)

var reconnectInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream boss state from a running server",
	Long: `Connect to the server's WebSocket endpoint and print every gameState update.

The connection is re-established automatically until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err := runWatch(ctx, wsURL(serverURL), reconnectInterval, cmd.OutOrStdout())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().DurationVar(&reconnectInterval, "reconnect", 3*time.Second,
		"delay before reconnecting after the connection drops")
}

func runWatch(ctx context.Context, url string, reconnect time.Duration, out io.Writer) error {
	c := client.New(client.Options{
		URL:               url,
		ReconnectInterval: reconnect,
		OnState: func(m proto.GameStateMessage) {
			printState(out, m)
		},
		OnError: func(msg string) {
			fmt.Fprintf(out, "error: %s\n", msg)
		},
	})
	return c.Run(ctx)
}

func printState(out io.Writer, m proto.GameStateMessage) {
	fmt.Fprintf(out, "%s  boss %4d/%d\n",
		time.UnixMilli(m.Timestamp).Format("15:04:05.000"), m.BossHP, m.MaxBossHP)
}
