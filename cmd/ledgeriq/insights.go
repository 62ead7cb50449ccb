package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/copperline/ledgeriq/internal/anomaly"
	"github.com/copperline/ledgeriq/internal/forecast"
	"github.com/copperline/ledgeriq/internal/insight"
	"github.com/copperline/ledgeriq/internal/vendormatch"
)

func insightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insights <org-id>",
		Short: "Run the full analysis and rank insights",
		Long: `Run classification, vendor, anomaly, forecast, and benchmark analyses
concurrently and print the ranked insight list. With --sanitized, print
the categorical summary instead (no raw figures).`,
		Args: cobra.ExactArgs(1),
		RunE: runInsights,
	}

	cmd.Flags().Float64("cash", 0, "current cash balance for runway analysis")
	cmd.Flags().Bool("sanitized", false, "print the sanitized categorical summary")
	return cmd
}

func runInsights(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orgID := args[0]
	cash, _ := cmd.Flags().GetFloat64("cash")
	sanitized, _ := cmd.Flags().GetBool("sanitized")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	engine := insight.NewEngine(store,
		anomaly.NewService(store),
		vendormatch.NewMatcher(store),
		forecast.NewForecaster(store),
		orgVertical())

	if sanitized {
		analysis, err := engine.RunFullAnalysis(ctx, orgID, cash)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		fmt.Fprint(os.Stdout, insight.BuildSanitizedPrompt(analysis))
		return nil
	}

	insights, err := engine.ProprietaryInsights(ctx, orgID, cash)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if len(insights) == 0 {
		fmt.Fprintln(os.Stdout, "No insights.")
		return nil
	}

	titleStyle := lipgloss.NewStyle().Bold(true)
	for _, ins := range insights {
		fmt.Fprintf(os.Stdout, "%s %s %s\n    %s (confidence %.2f, source %s)\n",
			severityStyle(ins.Severity).Render(fmt.Sprintf("[%s]", ins.Severity)),
			fmt.Sprintf("(%s)", ins.Type),
			titleStyle.Render(ins.Title),
			ins.Description,
			ins.Confidence,
			ins.Source)
	}
	return nil
}
