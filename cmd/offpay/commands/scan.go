package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// scan <payload-file>: process a scanned QR payment request.
func scanCmd() *cobra.Command {
	var (
		code    string
		offline bool
	)
	cmd := &cobra.Command{
		Use:   "scan <payload-file>",
		Short: "Process a scanned QR payment request",
		Long: "Reads a payment-request payload (use - for stdin), confirms it with\n" +
			"the configured gate, verifies the signature, applies the payment to\n" +
			"the ledger and reports completion to the relay when reachable.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPayload(args[0])
			if err != nil {
				return err
			}

			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			ctx := cmd.Context()
			if !offline {
				// best effort: the payment still settles locally when the
				// relay is unreachable
				dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if err := d.transport.Connect(dialCtx); err == nil {
					_ = waitRegistered(dialCtx, d)
				}
				cancel()
			}

			tx, err := d.wallet.ProcessScannedPayment(ctx, raw, code)
			if err != nil {
				return err
			}
			fmt.Printf("paid %.2f to %s (transaction %s)\n", tx.Amount, tx.Recipient, tx.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "confirmation code or capability token")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the relay completion broadcast")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func readPayload(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}
