package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/copperline/ledgeriq/internal/common"
	"github.com/copperline/ledgeriq/internal/model"
	"github.com/copperline/ledgeriq/internal/service"
	"github.com/copperline/ledgeriq/internal/stats"
)

// TrainOptions configures a training run.
type TrainOptions struct {
	// DaysBack is the historical window; 0 means DefaultTrainWindowDays.
	DaysBack int
	// Now overrides the reference time, for tests.
	Now time.Time
}

// Threshold learning parameters. Each threshold starts at its default and is
// nudged by the coefficient of variation of the relevant aggregate, then
// clamped to its safe band.
const (
	defaultDailyZ    = 2.5
	defaultCategoryZ = 2.0
	defaultVendorZ   = 2.5

	minDailyZ    = 2.0
	maxDailyZ    = 3.5
	minCategoryZ = 1.5
	maxCategoryZ = 3.0
	minVendorZ   = 2.0
	maxVendorZ   = 4.0

	// cvNudge scales how far dispersion moves a threshold off its default.
	cvNudge = 0.5
)

// Train rebuilds the spending model for one organization over the window.
// Fewer than MinTrainingTransactions debit transactions returns
// Success=false and leaves any previously persisted model untouched.
func (s *Service) Train(ctx context.Context, orgID string, opts TrainOptions) (*model.TrainResult, error) {
	daysBack := opts.DaysBack
	if daysBack <= 0 {
		daysBack = DefaultTrainWindowDays
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

	if len(txns) < MinTrainingTransactions {
		slog.Info("Not enough transactions to train anomaly model",
			"org_id", orgID,
			"transactions", len(txns),
			"required", MinTrainingTransactions)
		return &model.TrainResult{
			Success:      false,
			ExampleCount: len(txns),
			Reason:       fmt.Sprintf("need at least %d transactions in window, have %d", MinTrainingTransactions, len(txns)),
		}, nil
	}

	trained := buildModel(orgID, txns, start, now, daysBack)

	if err := s.persist(ctx, trained); err != nil {
		// Best-effort persistence: the in-memory model still serves.
		common.LogError(err, "Failed to persist anomaly model", common.Fields{"org_id": orgID})
	}

	s.mu.Lock()
	s.cache[orgID] = trained
	s.mu.Unlock()

	slog.Info("Trained anomaly model",
		"org_id", orgID,
		"transactions", len(txns),
		"categories", len(trained.Categories),
		"vendors", len(trained.Vendors),
		"daily_z", trained.Thresholds.DailyZ)

	return &model.TrainResult{Success: true, ExampleCount: len(txns)}, nil
}

func buildModel(orgID string, txns []model.Transaction, start, end time.Time, daysBack int) *model.TrainedAnomalyModel {
	dailyTotals := make(map[string]float64)
	weeklyTotals := make(map[string]float64)
	monthlyTotals := make(map[string]float64)

	for i := range txns {
		txn := &txns[i]
		amt := txn.AbsAmount()
		dailyTotals[txn.Date.Format("2006-01-02")] += amt
		year, week := txn.Date.ISOWeek()
		weeklyTotals[fmt.Sprintf("%04d-W%02d", year, week)] += amt
		monthlyTotals[txn.Date.Format("2006-01")] += amt
	}

	trained := &model.TrainedAnomalyModel{
		SchemaVersion: model.AnomalyModelSchemaVersion,
		OrgID:         orgID,
		TrainedAt:     time.Now(),
		WindowDays:    daysBack,
		SampleSize:    len(txns),
		Daily:         stats.Compute(mapValues(dailyTotals)),
		Weekly:        stats.Compute(mapValues(weeklyTotals)),
		Monthly:       stats.Compute(mapValues(monthlyTotals)),
		Categories:    buildCategoryPatterns(txns, start, end),
		Vendors:       buildVendorPatterns(txns),
		SeasonalIndex: buildSeasonalIndex(monthlyTotals),
	}

	for dow := 0; dow < 7; dow++ {
		var values []float64
		for day, total := range dailyTotals {
			d, err := time.Parse("2006-01-02", day)
			if err != nil {
				continue
			}
			if int(d.Weekday()) == dow {
				values = append(values, total)
			}
		}
		trained.DayOfWeek[dow] = stats.Compute(values)
	}

	trained.Thresholds = learnThresholds(trained)
	return trained
}

// buildCategoryPatterns materializes a pattern per category with at least
// MinCategoryPeriods non-zero months. The monthly and weekly series are
// zero-filled across the whole window so a category that stops spending
// still shows a strong negative trend and a valid lower baseline.
func buildCategoryPatterns(txns []model.Transaction, start, end time.Time) map[string]model.CategoryPattern {
	byCategoryMonth := make(map[string]map[string]float64)
	byCategoryWeek := make(map[string]map[string]float64)
	for i := range txns {
		txn := &txns[i]
		if txn.CategoryID == "" {
			continue
		}
		amt := txn.AbsAmount()
		if byCategoryMonth[txn.CategoryID] == nil {
			byCategoryMonth[txn.CategoryID] = make(map[string]float64)
			byCategoryWeek[txn.CategoryID] = make(map[string]float64)
		}
		byCategoryMonth[txn.CategoryID][txn.Date.Format("2006-01")] += amt
		year, week := txn.Date.ISOWeek()
		byCategoryWeek[txn.CategoryID][fmt.Sprintf("%04d-W%02d", year, week)] += amt
	}

	months := calendarMonths(start, end)
	weeks := calendarWeeks(start, end)

	patterns := make(map[string]model.CategoryPattern)
	for categoryID, monthTotals := range byCategoryMonth {
		nonZero := 0
		for _, v := range monthTotals {
			if v > 0 {
				nonZero++
			}
		}
		if nonZero < MinCategoryPeriods {
			continue
		}

		monthlySeries := make([]float64, len(months))
		for i, m := range months {
			monthlySeries[i] = monthTotals[m]
		}
		weeklySeries := make([]float64, len(weeks))
		for i, w := range weeks {
			weeklySeries[i] = byCategoryWeek[categoryID][w]
		}

		patterns[categoryID] = model.CategoryPattern{
			CategoryID: categoryID,
			Monthly:    stats.Compute(monthlySeries),
			Weekly:     stats.Compute(weeklySeries),
			Trend:      stats.Trend(monthlySeries),
		}
	}
	return patterns
}

// buildVendorPatterns materializes a pattern per vendor with at least
// MinVendorTransactions observed transactions.
func buildVendorPatterns(txns []model.Transaction) map[string]model.VendorPattern {
	byVendor := make(map[string][]*model.Transaction)
	for i := range txns {
		txn := &txns[i]
		key := vendorKey(txn)
		if key == "" {
			continue
		}
		byVendor[key] = append(byVendor[key], txn)
	}

	patterns := make(map[string]model.VendorPattern)
	for key, group := range byVendor {
		if len(group) < MinVendorTransactions {
			continue
		}

		sort.Slice(group, func(i, j int) bool { return group[i].Date.Before(group[j].Date) })

		amounts := make([]float64, len(group))
		for i, txn := range group {
			amounts[i] = txn.AbsAmount()
		}
		baseline := stats.Compute(amounts)

		patterns[key] = model.VendorPattern{
			Vendor:    key,
			AvgTxn:    baseline.Mean,
			StdDev:    baseline.StdDev,
			Frequency: classifyFrequency(group),
			LastSeen:  group[len(group)-1].Date.Format("2006-01-02"),
			TxnCount:  len(group),
		}
	}
	return patterns
}

// classifyFrequency labels a vendor's purchase cadence from the mean gap
// between consecutive transactions.
func classifyFrequency(group []*model.Transaction) string {
	if len(group) < 2 {
		return "irregular"
	}
	var totalGap float64
	for i := 1; i < len(group); i++ {
		totalGap += group[i].Date.Sub(group[i-1].Date).Hours() / 24
	}
	meanGap := totalGap / float64(len(group)-1)
	switch {
	case meanGap <= 10:
		return "weekly"
	case meanGap <= 45:
		return "monthly"
	default:
		return "irregular"
	}
}

// buildSeasonalIndex computes 12 calendar-month multipliers against the
// overall monthly mean. Months with no observation default to 1.0.
func buildSeasonalIndex(monthlyTotals map[string]float64) [12]float64 {
	var index [12]float64
	for i := range index {
		index[i] = 1.0
	}
	if len(monthlyTotals) == 0 {
		return index
	}

	var overall float64
	for _, v := range monthlyTotals {
		overall += v
	}
	overall /= float64(len(monthlyTotals))
	if overall == 0 {
		return index
	}

	sums := make(map[int]float64)
	counts := make(map[int]int)
	for month, total := range monthlyTotals {
		t, err := time.Parse("2006-01", month)
		if err != nil {
			continue
		}
		m := int(t.Month()) - 1
		sums[m] += total
		counts[m]++
	}
	for m, count := range counts {
		index[m] = (sums[m] / float64(count)) / overall
	}
	return index
}

// learnThresholds adapts each threshold by the coefficient of variation of
// its aggregate: dispersed spend earns a higher bar, steady spend a lower
// one. All results are clamped to their safe bands.
func learnThresholds(trained *model.TrainedAnomalyModel) model.AnomalyThresholds {
	return model.AnomalyThresholds{
		DailyZ:    clamp(defaultDailyZ+cvNudge*(coefficientOfVariation(trained.Daily)-1), minDailyZ, maxDailyZ),
		CategoryZ: clamp(defaultCategoryZ+cvNudge*(meanCategoryCV(trained.Categories)-1), minCategoryZ, maxCategoryZ),
		VendorZ:   clamp(defaultVendorZ+cvNudge*(meanVendorCV(trained.Vendors)-1), minVendorZ, maxVendorZ),
	}
}

func coefficientOfVariation(b model.StatisticalBaseline) float64 {
	if b.Mean == 0 {
		return 0
	}
	return b.StdDev / b.Mean
}

func meanCategoryCV(patterns map[string]model.CategoryPattern) float64 {
	if len(patterns) == 0 {
		return 1
	}
	var sum float64
	for _, p := range patterns {
		sum += coefficientOfVariation(p.Monthly)
	}
	return sum / float64(len(patterns))
}

func meanVendorCV(patterns map[string]model.VendorPattern) float64 {
	if len(patterns) == 0 {
		return 1
	}
	var sum float64
	for _, p := range patterns {
		if p.AvgTxn != 0 {
			sum += p.StdDev / p.AvgTxn
		}
	}
	return sum / float64(len(patterns))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mapValues(m map[string]float64) []float64 {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]float64, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return values
}

// calendarMonths lists every 2006-01 key in [start, end], including months
// with no spend.
func calendarMonths(start, end time.Time) []string {
	var months []string
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(last) {
		months = append(months, cur.Format("2006-01"))
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// calendarWeeks lists every ISO-week key in [start, end], including weeks
// with no spend.
func calendarWeeks(start, end time.Time) []string {
	seen := make(map[string]struct{})
	var weeks []string
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, 1) {
		year, week := cur.ISOWeek()
		key := fmt.Sprintf("%04d-W%02d", year, week)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		weeks = append(weeks, key)
	}
	return weeks
}
