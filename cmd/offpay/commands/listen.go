package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/offpay/offpay/internal/bus"
	"github.com/offpay/offpay/internal/model"
)

// listen: connect to the relay and apply incoming payments until interrupted.
func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Stay connected and receive payments in real time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.transport.Connect(ctx); err != nil {
				return err
			}
			fmt.Println("listening for payments (ctrl-c to stop)")

			events, unsub := d.bus.Subscribe(bus.TopicTransactionAdded)
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					switch ev.Direction {
					case model.DirectionReceived:
						fmt.Printf("received %.2f from %s\n", ev.Transaction.Amount, ev.Transaction.Sender)
					case model.DirectionSent:
						fmt.Printf("sent %.2f to %s\n", ev.Transaction.Amount, ev.Transaction.Recipient)
					}
				}
			}
		},
	}
}
