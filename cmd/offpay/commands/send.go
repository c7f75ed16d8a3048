package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// send <recipient> <amount>: broadcast a payment through the relay.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <recipient> <amount>",
		Short: "Send a payment to a peer over the relay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("invalid amount %q", args[1])
			}

			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := d.transport.Connect(ctx); err != nil {
				return err
			}
			if err := waitRegistered(ctx, d); err != nil {
				return err
			}

			if err := d.transport.SendTransaction(amount, userID, args[0]); err != nil {
				return err
			}
			// the echo lands in the feed; give it a moment so the user
			// sees the acknowledgment
			if err := waitFeedEcho(ctx, d); err != nil {
				fmt.Println("sent (no acknowledgment received)")
				return nil
			}
			fmt.Printf("sent %.2f to %s\n", amount, args[0])
			return nil
		},
	}
}

func waitRegistered(ctx context.Context, d *deps) error {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for {
		if d.transport.Connected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("registration not confirmed: %w", ctx.Err())
		case <-t.C:
		}
	}
}

func waitFeedEcho(ctx context.Context, d *deps) error {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for {
		for _, e := range d.transport.Feed() {
			if e.Type == "send" {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
