package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
	"github.com/copperline/ledgeriq/internal/vendormatch"
)

// minRecurringOccurrences is how many times a normalized vendor must appear
// in the annotation window before its transactions are flagged recurring.
const minRecurringOccurrences = 3

func vendorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "Manage vendor name normalization",
		Long:  `Train the vendor matcher and resolve raw vendor strings against it.`,
	}

	cmd.AddCommand(vendorsTrainCmd())
	cmd.AddCommand(vendorsNormalizeCmd())
	cmd.AddCommand(vendorsSimilarCmd())
	cmd.AddCommand(vendorsAnnotateCmd())

	return cmd
}

func vendorsTrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train <org-id>",
		Short: "Train the vendor matcher",
		Long:  `Train the TF-IDF vendor matcher from confirmed raw-to-canonical pairs.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			matcher := vendormatch.NewMatcher(store)
			result, err := matcher.Train(ctx, args[0])
			if err != nil {
				return fmt.Errorf("training failed: %w", err)
			}
			if !result.Success {
				slog.Warn("Training did not produce a model", "reason", result.Reason)
				return nil
			}
			slog.Info("Vendor matcher trained", "examples", result.ExampleCount)
			return nil
		},
	}
}

func vendorsNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <org-id> <raw-name>",
		Short: "Normalize a raw vendor string",
		Long:  `Resolve a raw vendor string to its canonical name using the trained matcher.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			matcher := vendormatch.NewMatcher(store)
			match, err := matcher.Normalize(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("normalization failed: %w", err)
			}
			if match == nil {
				fmt.Fprintln(os.Stdout, "No confident match.")
				return nil
			}
			fmt.Fprintf(os.Stdout, "%s (score %.2f, confidence %.2f)\n",
				match.CanonicalName, match.Score, match.Confidence)
			return nil
		},
	}
}

func vendorsSimilarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar <org-id> <name> [top-k]",
		Short: "List similar known vendors",
		Long:  `List the canonical vendors most similar to the given name by TF-IDF cosine.`,
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			topK := 0
			if len(args) == 3 {
				k, err := strconv.Atoi(args[2])
				if err != nil {
					return fmt.Errorf("invalid top-k %q: %w", args[2], err)
				}
				topK = k
			}

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			matcher := vendormatch.NewMatcher(store)
			similar, err := matcher.FindSimilar(ctx, args[0], args[1], topK)
			if err != nil {
				return fmt.Errorf("similarity search failed: %w", err)
			}
			if len(similar) == 0 {
				fmt.Fprintln(os.Stdout, "No similar vendors found.")
				return nil
			}
			for _, s := range similar {
				fmt.Fprintf(os.Stdout, "  %-30s %.3f\n", s.CanonicalName, s.Similarity)
			}
			return nil
		},
	}
	return cmd
}

func vendorsAnnotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate <org-id>",
		Short: "Write normalized vendor names back onto the feed",
		Long: `Resolve recent un-normalized transactions through the trained matcher
and annotate the feed with the canonical vendor, the match confidence,
and a recurring flag for vendors seen repeatedly in the window.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			orgID := args[0]
			days, _ := cmd.Flags().GetInt("days")

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			end := time.Now()
			start := end.AddDate(0, 0, -days)
			txns, err := store.GetTransactions(ctx, orgID, service.TransactionFilter{
				StartDate: &start,
				EndDate:   &end,
			})
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}

			matcher := vendormatch.NewMatcher(store)

			type resolved struct {
				txn        model.Transaction
				name       string
				confidence float64
			}
			var hits []resolved
			counts := make(map[string]int)
			for _, txn := range txns {
				name := txn.NormalizedVendor
				confidence := txn.Confidence
				if name == "" {
					match, err := matcher.Normalize(ctx, orgID, txn.VendorText)
					if err != nil {
						return fmt.Errorf("normalization failed: %w", err)
					}
					if match == nil {
						continue
					}
					name = match.CanonicalName
					confidence = match.Confidence
				}
				hits = append(hits, resolved{txn: txn, name: name, confidence: confidence})
				counts[name]++
			}

			annotated := 0
			for _, h := range hits {
				recurring := counts[h.name] >= minRecurringOccurrences
				if h.txn.NormalizedVendor == h.name && h.txn.IsRecurring == recurring {
					continue
				}
				if err := store.AnnotateTransaction(ctx, model.TransactionAnnotation{
					TransactionID:    h.txn.ID,
					NormalizedVendor: h.name,
					CategoryID:       h.txn.CategoryID,
					VendorID:         h.txn.VendorID,
					Confidence:       h.confidence,
					IsRecurring:      recurring,
				}); err != nil {
					return fmt.Errorf("failed to annotate transaction %s: %w", h.txn.ID, err)
				}
				annotated++
			}

			slog.Info("Vendor annotation finished",
				"org_id", orgID,
				"transactions", len(txns),
				"annotated", annotated)
			return nil
		},
	}
	cmd.Flags().Int("days", 90, "window of recent transactions to annotate")
	return cmd
}
