package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func pipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Inspect and run the retraining pipeline",
		Long:  `Check which models have accumulated enough feedback to retrain, and run the sweep.`,
	}

	cmd.AddCommand(pipelineStatusCmd())
	cmd.AddCommand(pipelineRunCmd())

	return cmd
}

func pipelineStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show retraining status for all organizations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			p := initPipeline(store)
			orgIDs, err := store.ListOrgIDs(ctx)
			if err != nil {
				return fmt.Errorf("failed to list organizations: %w", err)
			}
			if len(orgIDs) == 0 {
				fmt.Fprintln(os.Stdout, "No organizations in the feed.")
				return nil
			}

			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
			staleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
			fmt.Fprintln(os.Stdout, headerStyle.Render(fmt.Sprintf("%-20s %-12s %-20s %11s %9s %9s  %s",
				"Org", "Model", "Last Trained", "Corrections", "Examples", "Feedback", "Stale")))

			for _, orgID := range orgIDs {
				statuses, err := p.CheckRetrainingNeeded(ctx, orgID)
				if err != nil {
					return fmt.Errorf("status check failed for %s: %w", orgID, err)
				}
				for _, s := range statuses {
					lastTrained := "never"
					if !s.LastTrainedAt.IsZero() {
						lastTrained = s.LastTrainedAt.Format("2006-01-02 15:04")
					}
					stale := "no"
					if s.NeedsTraining {
						stale = staleStyle.Render("yes")
					}
					fmt.Fprintf(os.Stdout, "%-20s %-12s %-20s %11d %9d %9d  %s\n",
						s.OrgID, s.ModelName, lastTrained,
						s.Corrections, s.VendorExamples, s.FeedbackItems, stale)
				}
			}
			return nil
		},
	}
}

func pipelineRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run auto-training across all organizations",
		Long: `Sweep every organization and retrain whichever models have crossed a
feedback threshold, respecting cooldowns and the concurrency cap.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			p := initPipeline(store)
			outcomes, err := p.RunAutoTraining(ctx)
			if err != nil {
				return fmt.Errorf("auto-training failed: %w", err)
			}

			started, skipped := 0, 0
			for _, o := range outcomes {
				if o.Skipped {
					skipped++
					slog.Warn("Training skipped", "org_id", o.OrgID, "model", o.ModelName, "reason", o.Reason)
					continue
				}
				started++
			}
			slog.Info("Auto-training sweep finished", "started", started, "skipped", skipped)
			return nil
		},
	}
}
