package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/copperline/ledgeriq/internal/forecast"
)

func forecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast <org-id>",
		Short: "Project monthly cash flow",
		Long: `Project net monthly cash flow forward from the observed history, with
confidence bands, and optionally estimate runway against current cash.`,
		Args: cobra.ExactArgs(1),
		RunE: runForecast,
	}

	cmd.Flags().Int("months", forecast.DefaultHorizonMonths, "forecast horizon in months")
	cmd.Flags().Float64("cash", 0, "current cash balance for runway estimation")
	return cmd
}

func runForecast(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orgID := args[0]
	months, _ := cmd.Flags().GetInt("months")
	cash, _ := cmd.Flags().GetFloat64("cash")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	forecaster := forecast.NewForecaster(store)
	fc, err := forecaster.Forecast(ctx, orgID, months)
	if err != nil {
		return fmt.Errorf("forecast failed: %w", err)
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	fmt.Fprintln(os.Stdout, headerStyle.Render(fmt.Sprintf(
		"Cash flow forecast (burn trend: %s, model confidence %.2f)", fc.BurnTrend, fc.ModelConfidence)))
	for _, m := range fc.Forecasts {
		fmt.Fprintf(os.Stdout, "  %s  predicted %12.2f  [%12.2f, %12.2f]  confidence %.2f\n",
			m.Month, m.Predicted, m.Lower, m.Upper, m.Confidence)
	}

	if cash > 0 {
		runway, err := forecaster.RunwayProbabilities(ctx, orgID, cash)
		if err != nil {
			return fmt.Errorf("runway estimation failed: %w", err)
		}
		fmt.Fprintln(os.Stdout, headerStyle.Render("Runway estimate (months):"))
		fmt.Fprintf(os.Stdout, "  pessimistic %.1f   expected %.1f   optimistic %.1f\n",
			runway.P10Months, runway.P50Months, runway.P90Months)
	}
	return nil
}
