package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"economy/internal/bank"
	"economy/internal/economy"
)

func newBalanceCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account's purses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				out, err := a.economy.Balance(cmd.Context(), args[0])
				if err := outcomeErr(out, err); err != nil {
					return err
				}
				acct := out.Actor
				fmt.Fprintf(cmd.OutOrStdout(), "account: %s\ncash:    %d\nbank:    %d\ntotal:   %d\n",
					acct.ID, acct.Cash, acct.Bank, acct.Total())
				return nil
			})
		},
	}
}

func newLeaderboardCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the richest accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				out := a.economy.Leaderboard(cmd.Context())
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "RANK\tACCOUNT\tCASH\tBANK\tTOTAL")
				for _, r := range out.Leaderboard {
					fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\n", r.Rank, r.ID, r.Cash, r.Bank, r.Total)
				}
				return w.Flush()
			})
		},
	}
}

func newAuditCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Verify the ledger invariants",
		Long: `Audit checks that total_wealth equals the sum of every transaction
amount and that no purse is negative.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app) error {
				if err := a.ledger.Verify(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %d accounts, %d transactions, total_wealth %d\n",
					len(a.ledger.Accounts()), len(a.ledger.Transactions()), a.ledger.TotalWealth())
				return nil
			})
		},
	}
}

func newGiveCommand(opts *options) *cobra.Command {
	var purse string
	cmd := &cobra.Command{
		Use:   "give <caller> <target> <amount>",
		Short: "Credit an account (admin)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("amount: %w", bank.ErrInvalidAmount)
			}
			return opts.withApp(cmd.Context(), func(a *app) error {
				out, err := a.economy.AdminGive(cmd.Context(), args[0], args[1], amt, bank.Purse(purse))
				if err := outcomeErr(out, err); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "gave %d to %s (%s): cash %d, bank %d\n",
					out.Amount, out.Target.ID, purse, out.Target.Cash, out.Target.Bank)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&purse, "purse", string(bank.PurseCash), "purse to credit: cash or bank")
	return cmd
}

func newTakeCommand(opts *options) *cobra.Command {
	var purse string
	cmd := &cobra.Command{
		Use:   "take <caller> <target> <amount|all>",
		Short: "Debit an account without overdrawing (admin)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := economy.ParseAmount(args[2])
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			return opts.withApp(cmd.Context(), func(a *app) error {
				out, err := a.economy.AdminTake(cmd.Context(), args[0], args[1], amount, bank.Purse(purse))
				if err := outcomeErr(out, err); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "took %d from %s (%s): cash %d, bank %d\n",
					out.Amount, out.Target.ID, purse, out.Target.Cash, out.Target.Bank)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&purse, "purse", string(economy.PurseAll), "purse to debit: cash, bank or all")
	return cmd
}
