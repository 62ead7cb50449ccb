package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/copperline/ledgeriq/internal/anomaly"
	"github.com/copperline/ledgeriq/internal/coa"
	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/config"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/pipeline"
	"github.com/copperline/ledgeriq/internal/service"
	"github.com/copperline/ledgeriq/internal/storage"
	"github.com/copperline/ledgeriq/internal/vendormatch"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/ledgeriq/ledgeriq.db"
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, common.NewUserError(fmt.Sprintf("failed to open local database at %s", dbPath), err)
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initPipeline wires all three trainers into a training pipeline.
func initPipeline(store service.Storage) *pipeline.Pipeline {
	anomalySvc := anomaly.NewService(store)
	matcher := vendormatch.NewMatcher(store)
	classifier := coa.NewClassifier(store)

	p := pipeline.New(store, pipeline.Options{
		MaxConcurrent: viper.GetInt("pipeline.max_concurrent"),
	})
	p.RegisterTrainer(model.ModelAnomaly, func(ctx context.Context, orgID string) (*model.TrainResult, error) {
		return anomalySvc.Train(ctx, orgID, anomaly.TrainOptions{})
	})
	p.RegisterTrainer(model.ModelVendor, matcher.Train)
	p.RegisterTrainer(model.ModelClassifier, classifier.Train)
	return p
}

// orgVertical reads the configured business vertical, defaulting to generic.
func orgVertical() coa.Vertical {
	v := coa.Vertical(viper.GetString("org.vertical"))
	switch v {
	case coa.VerticalSaaS, coa.VerticalEcommerce, coa.VerticalServices, coa.VerticalRestaurant:
		return v
	default:
		return coa.VerticalGeneric
	}
}
