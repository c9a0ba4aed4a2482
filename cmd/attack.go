package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/belulok/quest-chain/internal/client"
	"github.com/belulok/quest-chain/internal/proto"
)

var (
	attackCount    int
	attackDamage   float64
	attackSender   string
	attackInterval time.Duration
)

var attackCmd = &cobra.Command{
	Use:   "attack",
	Short: "Send attacks to a running server",
	Long: `Open a WebSocket session and send one or more attack messages.

The server clamps the declared damage and rate limits per client address, so
the reported boss hit points may not drop by exactly the requested amount.

Examples:
  questchain attack -d 50
  questchain attack -n 10 -d 100 --interval 200ms --sender 0xabc`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second+time.Duration(attackCount)*attackInterval)
		defer cancel()
		return runAttack(ctx, wsURL(serverURL), attackCount, attackDamage, attackSender, attackInterval, cmd.OutOrStdout())
	},
}

func init() {
	attackCmd.Flags().IntVarP(&attackCount, "count", "n", 1, "number of attacks to send")
	attackCmd.Flags().Float64VarP(&attackDamage, "damage", "d", 10, "declared damage per attack")
	attackCmd.Flags().StringVar(&attackSender, "sender", "", "sender address to declare")
	attackCmd.Flags().DurationVar(&attackInterval, "interval", 100*time.Millisecond, "delay between attacks")
}

func runAttack(ctx context.Context, url string, count int, damage float64, sender string, interval time.Duration, out io.Writer) error {
	if count < 1 {
		return fmt.Errorf("count must be >= 1, got %d", count)
	}

	var mu sync.Mutex
	connected := make(chan struct{})
	var once sync.Once

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := client.New(client.Options{
		URL: url,
		OnConnect: func() {
			once.Do(func() { close(connected) })
		},
		OnState: func(m proto.GameStateMessage) {
			mu.Lock()
			defer mu.Unlock()
			printState(out, m)
		},
		OnError: func(msg string) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "rejected: %s\n", msg)
		},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	select {
	case <-connected:
	case <-ctx.Done():
		return fmt.Errorf("could not connect to %s: %w", url, ctx.Err())
	}

	for i := 0; i < count; i++ {
		if err := c.Attack(damage, sender); err != nil {
			return err
		}
		if i < count-1 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// leave time for the final broadcast to arrive
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
	}
	cancel()
	<-done
	return nil
}
