package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/copperline/ledgeriq/internal/coa"
	"github.com/copperline/ledgeriq/internal/model"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage chart-of-accounts mappings",
		Long:  `Map imported ledger accounts onto the canonical chart of accounts.`,
	}

	cmd.AddCommand(accountsAutomapCmd())
	cmd.AddCommand(accountsMapCmd())
	cmd.AddCommand(accountsListCmd())

	return cmd
}

func accountsAutomapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "automap <org-id>",
		Short: "Auto-map pending imported accounts",
		Long: `Run the mapping cascade (vertical rules, ledger-type map, trained
classifier) over every pending imported account.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			mapper, err := coa.NewMapper(store, coa.NewClassifier(store))
			if err != nil {
				return fmt.Errorf("failed to build mapper: %w", err)
			}

			result, err := mapper.AutoMap(ctx, args[0], orgVertical())
			if err != nil {
				return fmt.Errorf("auto-mapping failed: %w", err)
			}
			slog.Info("Auto-mapping finished",
				"processed", result.Processed,
				"auto_mapped", result.AutoMapped,
				"needs_review", result.NeedsReview)
			return nil
		},
	}
}

func accountsMapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map <org-id> <account-id> <canonical-code>",
		Short: "Manually map one imported account",
		Long: `Apply a manual mapping correction. The correction is recorded as a
training example for the fallback classifier.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			orgID, accountID, code := args[0], args[1], args[2]

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			accounts, err := store.GetImportedAccounts(ctx, orgID, "")
			if err != nil {
				return fmt.Errorf("failed to load accounts: %w", err)
			}
			var target *model.ImportedAccount
			for i := range accounts {
				if accounts[i].ID == accountID {
					target = &accounts[i]
					break
				}
			}
			if target == nil {
				return fmt.Errorf("account %s not found for organization %s", accountID, orgID)
			}

			mapper, err := coa.NewMapper(store, coa.NewClassifier(store))
			if err != nil {
				return fmt.Errorf("failed to build mapper: %w", err)
			}
			if err := mapper.UpdateMapping(ctx, target, code); err != nil {
				return fmt.Errorf("mapping update failed: %w", err)
			}
			slog.Info("Account mapped", "account", accountID, "code", code)
			return nil
		},
	}
}

func accountsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <org-id>",
		Short: "List imported accounts and their mappings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			status, _ := cmd.Flags().GetString("status")

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			accounts, err := store.GetImportedAccounts(ctx, args[0], model.MappingStatus(status))
			if err != nil {
				return fmt.Errorf("failed to load accounts: %w", err)
			}
			if len(accounts) == 0 {
				fmt.Fprintln(os.Stdout, "No imported accounts.")
				return nil
			}

			chart, err := store.GetCanonicalAccounts(ctx)
			if err != nil {
				return fmt.Errorf("failed to load chart of accounts: %w", err)
			}
			names := make(map[string]string, len(chart))
			for _, c := range chart {
				names[c.Code] = c.Name
			}

			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
			fmt.Fprintln(os.Stdout, headerStyle.Render(fmt.Sprintf("%-36s %-30s %-8s %-24s %-13s %-10s %s",
				"ID", "Raw Name", "Code", "Canonical", "Status", "Source", "Confidence")))
			for _, a := range accounts {
				fmt.Fprintf(os.Stdout, "%-36s %-30s %-8s %-24s %-13s %-10s %.2f\n",
					a.ID, a.RawName, a.CanonicalCode, names[a.CanonicalCode], a.Status, a.Source, a.Confidence)
			}
			return nil
		},
	}
	cmd.Flags().String("status", "", "filter by mapping status (pending, auto_mapped, needs_review, manual)")
	return cmd
}
