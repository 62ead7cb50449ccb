package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/copperline/ledgeriq/internal/anomaly"
	"github.com/copperline/ledgeriq/internal/model"
)

func detectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <org-id>",
		Short: "Detect spending anomalies",
		Long: `Run anomaly detection over the recent transaction window using the
organization's trained spending model.`,
		Args: cobra.ExactArgs(1),
		RunE: runDetect,
	}

	cmd.Flags().Int("days", anomaly.DefaultDetectWindowDays, "detection window in days")
	return cmd
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orgID := args[0]
	days, _ := cmd.Flags().GetInt("days")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	svc := anomaly.NewService(store)
	anomalies, err := svc.DetectAll(ctx, orgID, anomaly.DetectOptions{DaysBack: days})
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	if len(anomalies) == 0 {
		fmt.Fprintln(os.Stdout, "No anomalies detected.")
		return nil
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	fmt.Fprintln(os.Stdout, headerStyle.Render(fmt.Sprintf("Detected %d anomalies:", len(anomalies))))
	for _, a := range anomalies {
		fmt.Fprintf(os.Stdout, "  %s  %-14s %-8s %s (observed %.2f, expected %.2f, z=%.2f)\n",
			a.Date.Format("2006-01-02"),
			a.Type,
			severityStyle(a.Severity).Render(string(a.Severity)),
			a.Description,
			a.Observed,
			a.Expected,
			a.Score)
	}
	return nil
}

func severityStyle(severity model.AnomalySeverity) lipgloss.Style {
	switch severity {
	case model.SeverityCritical:
		return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	case model.SeverityHigh:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	case model.SeverityMedium:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	}
}
