package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// balance: print the current credit balance.
func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the current credit balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			uc, err := d.ledger.Credit(userID)
			if err != nil {
				return err
			}
			fmt.Printf("%.2f\n", uc.Balance)
			return nil
		},
	}
}

// history: print the credit history, newest first.
func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the credit history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			uc, err := d.ledger.Credit(userID)
			if err != nil {
				return err
			}
			entries := uc.History
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			printJSON(entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "max entries to print (0 = all)")
	return cmd
}

// stats: print transaction-log statistics.
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show transaction statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			printJSON(d.store.Stats())
			return nil
		},
	}
}
