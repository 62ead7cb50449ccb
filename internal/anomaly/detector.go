package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
	"github.com/copperline/ledgeriq/internal/stats"
)

// DetectOptions configures a detection run.
type DetectOptions struct {
	// DaysBack is the recent window; 0 means DefaultDetectWindowDays.
	DaysBack int
	// Now overrides the reference time, for tests.
	Now time.Time
}

// Severity bucket cutoffs on |z|.
const (
	criticalZ = 4.0
	highZ     = 3.0
	mediumZ   = 2.5
)

// DetectAll scores the recent window against every trained baseline and
// returns anomalies sorted by severity bucket, then |score| descending.
// A missing model (never trained, or too little data) is a valid state
// that yields an empty result, not an error.
func (s *Service) DetectAll(ctx context.Context, orgID string, opts DetectOptions) ([]model.Anomaly, error) {
	trained, err := s.loadModel(ctx, orgID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	daysBack := opts.DaysBack
	if daysBack <= 0 {
		daysBack = DefaultDetectWindowDays
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	start := now.AddDate(0, 0, -daysBack)

	txns, err := s.store.GetTransactions(ctx, orgID, service.TransactionFilter{
		StartDate: &start,
		EndDate:   &now,
		DebitOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txns) == 0 {
		return nil, nil
	}

	var anomalies []model.Anomaly

	daily, dailyDates := detectDaily(trained, txns)
	anomalies = append(anomalies, daily...)
	anomalies = append(anomalies, detectDayOfWeek(trained, txns, dailyDates)...)
	anomalies = append(anomalies, detectCategories(trained, txns)...)
	anomalies = append(anomalies, detectVendors(trained, txns)...)

	sortAnomalies(anomalies)

	return anomalies, nil
}

// sortAnomalies orders by severity bucket, then |score| descending. The
// remaining keys only break exact ties, so equal findings come out in the
// same order regardless of map iteration order upstream.
func sortAnomalies(anomalies []model.Anomaly) {
	sort.Slice(anomalies, func(i, j int) bool {
		a, b := anomalies[i], anomalies[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra > rb
		}
		if sa, sb := math.Abs(a.Score), math.Abs(b.Score); sa != sb {
			return sa > sb
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.CategoryID != b.CategoryID {
			return a.CategoryID < b.CategoryID
		}
		return a.Vendor < b.Vendor
	})
}

// detectDaily scores whole-day spend totals against the daily baseline.
// It also returns the set of dates that fired, so the weaker day-of-week
// signal can be suppressed for those dates.
func detectDaily(trained *model.TrainedAnomalyModel, txns []model.Transaction) ([]model.Anomaly, map[string]struct{}) {
	fired := make(map[string]struct{})
	if trained.Daily.SampleSize < MinDailySamples {
		return nil, fired
	}

	var anomalies []model.Anomaly
	for day, total := range dailyTotals(txns) {
		z := stats.ZScore(total, trained.Daily.Mean, trained.Daily.StdDev)
		if math.Abs(z) <= trained.Thresholds.DailyZ {
			continue
		}

		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		fired[day] = struct{}{}
		anomalies = append(anomalies, model.Anomaly{
			Date:        date,
			Type:        model.AnomalyDailySpike,
			Severity:    severityFor(z),
			Description: fmt.Sprintf("Daily spend of %.2f deviates from the typical %.2f", total, trained.Daily.Mean),
			Observed:    total,
			Expected:    trained.Daily.Mean,
			Score:       z,
		})
	}
	return anomalies, fired
}

// detectDayOfWeek scores each day against its weekday baseline, skipping
// dates where the stronger whole-day signal already fired.
func detectDayOfWeek(trained *model.TrainedAnomalyModel, txns []model.Transaction, suppressed map[string]struct{}) []model.Anomaly {
	var anomalies []model.Anomaly
	for day, total := range dailyTotals(txns) {
		if _, dup := suppressed[day]; dup {
			continue
		}
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}

		baseline := trained.DayOfWeek[int(date.Weekday())]
		if baseline.SampleSize < MinDayOfWeekSamples {
			continue
		}
		z := stats.ZScore(total, baseline.Mean, baseline.StdDev)
		if math.Abs(z) <= trained.Thresholds.DailyZ {
			continue
		}

		anomalies = append(anomalies, model.Anomaly{
			Date:        date,
			Type:        model.AnomalyDayOfWeek,
			Severity:    severityFor(z),
			Description: fmt.Sprintf("%s spend of %.2f is unusual for that weekday (typical %.2f)", date.Weekday(), total, baseline.Mean),
			Observed:    total,
			Expected:    baseline.Mean,
			Score:       z,
		})
	}
	return anomalies
}

// detectCategories scores the recent window's per-category spend totals
// against each category's monthly baseline. Patterns only exist for
// categories with enough non-zero periods, so the sample-size gate is
// inherent to the model.
func detectCategories(trained *model.TrainedAnomalyModel, txns []model.Transaction) []model.Anomaly {
	totals := make(map[string]float64)
	latest := make(map[string]time.Time)
	for i := range txns {
		txn := &txns[i]
		if txn.CategoryID == "" {
			continue
		}
		totals[txn.CategoryID] += txn.AbsAmount()
		if txn.Date.After(latest[txn.CategoryID]) {
			latest[txn.CategoryID] = txn.Date
		}
	}

	var anomalies []model.Anomaly
	for categoryID, total := range totals {
		pattern, ok := trained.Categories[categoryID]
		if !ok {
			continue
		}
		if pattern.Monthly.SampleSize < MinCategoryPeriods {
			continue
		}

		z := stats.ZScore(total, pattern.Monthly.Mean, pattern.Monthly.StdDev)
		if math.Abs(z) <= trained.Thresholds.CategoryZ {
			continue
		}

		anomalies = append(anomalies, model.Anomaly{
			Date:        latest[categoryID],
			Type:        model.AnomalyCategorySpike,
			Severity:    severityFor(z),
			Description: fmt.Sprintf("Category %s spend of %.2f deviates from its monthly baseline %.2f", categoryID, total, pattern.Monthly.Mean),
			CategoryID:  categoryID,
			Observed:    total,
			Expected:    pattern.Monthly.Mean,
			Score:       z,
		})
	}
	return anomalies
}

// detectVendors scores individual transactions against their vendor's
// learned per-transaction profile.
func detectVendors(trained *model.TrainedAnomalyModel, txns []model.Transaction) []model.Anomaly {
	var anomalies []model.Anomaly
	for i := range txns {
		txn := &txns[i]
		pattern, ok := trained.Vendors[vendorKey(txn)]
		if !ok {
			continue
		}

		z := stats.ZScore(txn.AbsAmount(), pattern.AvgTxn, pattern.StdDev)
		if math.Abs(z) <= trained.Thresholds.VendorZ {
			continue
		}

		anomalies = append(anomalies, model.Anomaly{
			Date:        txn.Date,
			Type:        model.AnomalyVendorAmount,
			Severity:    severityFor(z),
			Description: fmt.Sprintf("Charge of %.2f from %s deviates from the vendor's typical %.2f", txn.AbsAmount(), pattern.Vendor, pattern.AvgTxn),
			Vendor:      pattern.Vendor,
			Observed:    txn.AbsAmount(),
			Expected:    pattern.AvgTxn,
			Score:       z,
		})
	}
	return anomalies
}

func dailyTotals(txns []model.Transaction) map[string]float64 {
	totals := make(map[string]float64)
	for i := range txns {
		totals[txns[i].Date.Format("2006-01-02")] += txns[i].AbsAmount()
	}
	return totals
}

func severityFor(z float64) model.AnomalySeverity {
	abs := math.Abs(z)
	switch {
	case abs >= criticalZ:
		return model.SeverityCritical
	case abs >= highZ:
		return model.SeverityHigh
	case abs >= mediumZ:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
