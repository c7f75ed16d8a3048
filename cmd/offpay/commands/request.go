package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/offpay/offpay/internal/gate"
)

// request <payer> <amount>: emit a signed QR payment-request payload.
func requestCmd() *cobra.Command {
	var desc string
	cmd := &cobra.Command{
		Use:   "request <payer> <amount>",
		Short: "Generate a signed QR payment request payload",
		Long: "Generates the JSON payload a QR renderer would encode: a signed\n" +
			"transaction billing <payer> for <amount>, payable to this wallet.",
		Args: cobra.ExactArgs(2),
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

			pr, err := d.wallet.NewPaymentRequest(amount, args[0], desc)
			if err != nil {
				return err
			}
			printJSON(pr)

			// with a token gate configured, hand the payer their
			// single-transaction confirmation token
			if tg, ok := d.gate.(*gate.TokenGate); ok {
				token, err := tg.Issue(pr.Transaction.ID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "confirmation token:", token)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&desc, "desc", "", "payment description")
	return cmd
}
