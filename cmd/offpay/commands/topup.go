package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// topup <amount>: credit the wallet through the payment gateway.
func topupCmd() *cobra.Command {
	var desc string
	cmd := &cobra.Command{
		Use:   "topup <amount>",
		Short: "Add credits to the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[0], 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("invalid amount %q", args[0])
			}

			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			tx, err := d.wallet.TopUp(amount, desc)
			if err != nil {
				return err
			}
			uc, err := d.ledger.Credit(userID)
			if err != nil {
				return err
			}
			fmt.Printf("added %.2f (transaction %s), balance %.2f\n", tx.Amount, tx.ID, uc.Balance)
			return nil
		},
	}
	cmd.Flags().StringVar(&desc, "desc", "", "history entry description")
	return cmd
}
