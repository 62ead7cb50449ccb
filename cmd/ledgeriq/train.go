package main

import (
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/copperline/ledgeriq/internal/model"
)

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train <org-id>",
		Short: "Train models for an organization",
		Long: `Train the anomaly, vendor, and classifier models for one organization
through the training pipeline. Cooldown and concurrency rules apply;
a refused run is reported, not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: runTrain,
	}

	cmd.Flags().StringSlice("models", []string{model.ModelAnomaly, model.ModelVendor, model.ModelClassifier}, "models to train")
	return cmd
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	orgID := args[0]
	models, _ := cmd.Flags().GetStringSlice("models")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	p := initPipeline(store)

	bar := progressbar.NewOptions(len(models),
		progressbar.OptionSetDescription("Training models"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	for _, name := range models {
		outcome, err := p.TrainModel(ctx, orgID, name, "manual")
		if err != nil {
			return fmt.Errorf("training %s: %w", name, err)
		}
		_ = bar.Add(1)

		switch {
		case outcome.Skipped:
			slog.Warn("Training skipped", "model", name, "reason", outcome.Reason)
		case outcome.Result != nil && !outcome.Result.Success:
			slog.Warn("Training did not produce a model", "model", name, "reason", outcome.Result.Reason)
		default:
			slog.Info("Model trained",
				"model", name,
				"version", outcome.Result.Version,
				"examples", outcome.Result.ExampleCount)
		}
	}
	return nil
}
